package pipeline

import "github.com/dvloznov/expense-tracker/internal/domain"

// Fallback synthesizes the placeholder record stored when no model attempt
// produced a parseable reply. Confidence is nil.
func (r *Reconciler) Fallback() *ReconciledExpense {
	placeholder := r.placeholder().InexactFloat64()

	return &ReconciledExpense{
		StoreName: FallbackStoreName,
		Date:      r.today(),
		Items: []LineItem{
			{Description: FallbackItemDescription, Quantity: 1, Price: placeholder},
		},
		Subtotal: placeholder,
		Tax:      0,
		Total:    placeholder,
		Category: domain.CategoryOther,
	}
}
