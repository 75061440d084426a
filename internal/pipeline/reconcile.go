package pipeline

import (
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order when reading the model's date.
var dateLayouts = []string{
	dateLayout,
	"02/01/2006",
	"02-01-2006",
	"2006/01/02",
	time.RFC3339,
}

// Reconciler turns a RawExtraction into a ReconciledExpense. It is pure:
// the only outside input is Now, used for default dates.
type Reconciler struct {
	Tolerance        float64
	PlaceholderTotal float64
	Confidence       float64
	Now              func() time.Time
}

// NewReconciler returns a Reconciler with the default tolerance, placeholder
// and confidence.
func NewReconciler() *Reconciler {
	return &Reconciler{
		Tolerance:        DefaultTolerance,
		PlaceholderTotal: DefaultPlaceholderTotal,
		Confidence:       DefaultConfidence,
		Now:              time.Now,
	}
}

func (r *Reconciler) today() civil.Date {
	if r.Now == nil {
		return civil.DateOf(time.Now())
	}
	return civil.DateOf(r.Now())
}

func (r *Reconciler) placeholder() decimal.Decimal {
	if !finite(r.PlaceholderTotal) || r.PlaceholderTotal <= 0 {
		return decimal.NewFromFloat(DefaultPlaceholderTotal)
	}
	return decimal.NewFromFloat(r.PlaceholderTotal)
}

// Reconcile computes authoritative subtotal, tax and total for raw and
// reports every correction it made. A nil raw is treated as empty.
func (r *Reconciler) Reconcile(raw *RawExtraction) (*ReconciledExpense, []Adjustment) {
	if raw == nil {
		raw = &RawExtraction{}
	}
	var adj []Adjustment
	add := func(rule, format string, args ...any) {
		adj = append(adj, Adjustment{Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	items, itemsSum := normalizeItems(raw.Items)
	tax := nonNegative(raw.Tax)
	hasItems := len(items) > 0

	var subtotal, total decimal.Decimal
	subtotalSet := false

	declared, declaredValid := positive(raw.Total)
	switch {
	case !declaredValid && hasItems:
		subtotal = itemsSum
		subtotalSet = true
		total = itemsSum.Add(tax)
		add(RuleDerivedFromItems, "total missing or invalid, derived %s from %d items + tax %s",
			total.StringFixed(2), len(items), tax.StringFixed(2))

	case !declaredValid:
		if st, ok := positive(raw.Subtotal); ok {
			total = st
			add(RuleSubtotalAsTotal, "total missing or invalid, using subtotal %s", st.StringFixed(2))
		} else {
			total = r.placeholder()
			add(RulePlaceholder, "no total, subtotal or items, using placeholder %s", total.StringFixed(2))
		}

	default:
		total = declared
		if hasItems {
			calculated := itemsSum.Add(tax)
			tolerance := decimal.Zero
			if finite(r.Tolerance) && r.Tolerance > 0 {
				tolerance = decimal.NewFromFloat(r.Tolerance)
			}
			if declared.Sub(calculated).Abs().GreaterThan(tolerance) {
				total = decimal.Max(declared, calculated)
				subtotal = itemsSum
				subtotalSet = true
				add(RuleMismatchOverride, "declared %s vs calculated %s, using %s",
					declared.StringFixed(2), calculated.StringFixed(2), total.StringFixed(2))
			}
		}
	}

	totalF := total.InexactFloat64()
	if !finite(totalF) || total.Round(2).Sign() <= 0 {
		add(RuleFinalGuard, "total %v is not a positive number, using placeholder", totalF)
		total = r.placeholder()
		totalF = total.InexactFloat64()
	}

	if !subtotalSet {
		if raw.Subtotal != nil && finite(*raw.Subtotal) && *raw.Subtotal >= 0 {
			subtotal = decimal.NewFromFloat(*raw.Subtotal)
		} else {
			subtotal = decimal.Max(total.Sub(tax), decimal.Zero)
		}
	}

	date, ok := parseReceiptDate(raw.Date)
	if !ok {
		date = r.today()
		if raw.Date != nil {
			add(RuleDateDefaulted, "unrecognised date %q, using today", *raw.Date)
		}
	}

	category := domain.NormalizeCategory(deref(raw.Category))
	if raw.Category != nil && category == domain.CategoryOther && !strings.EqualFold(strings.TrimSpace(*raw.Category), category) {
		add(RuleCategoryOther, "category %q is not recognised", *raw.Category)
	}

	storeName := DefaultStoreName
	if raw.StoreName != nil {
		storeName = *raw.StoreName
	}

	confidence := r.Confidence
	return &ReconciledExpense{
		StoreName:  storeName,
		Date:       date,
		Items:      items,
		Subtotal:   subtotal.InexactFloat64(),
		Tax:        tax.InexactFloat64(),
		Total:      totalF,
		Category:   category,
		Confidence: &confidence,
	}, adj
}

// normalizeItems applies item defaults and returns the sum of price × quantity.
// Missing or non-positive quantity counts as 1; missing or negative price as 0.
func normalizeItems(raw []RawItem) ([]LineItem, decimal.Decimal) {
	items := make([]LineItem, 0, len(raw))
	sum := decimal.Zero
	for _, it := range raw {
		qty := 1.0
		if it.Quantity != nil && finite(*it.Quantity) && *it.Quantity > 0 {
			qty = *it.Quantity
		}
		price := 0.0
		if it.Price != nil && finite(*it.Price) && *it.Price > 0 {
			price = *it.Price
		}
		desc := DefaultItemDescription
		if it.Description != nil {
			desc = *it.Description
		}

		sum = sum.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty)))
		items = append(items, LineItem{Description: desc, Quantity: qty, Price: price})
	}
	return items, sum
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func positive(v *float64) (decimal.Decimal, bool) {
	if v == nil || !finite(*v) || *v <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*v), true
}

func nonNegative(v *float64) decimal.Decimal {
	if v == nil || !finite(*v) || *v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(*v)
}

func parseReceiptDate(s *string) (civil.Date, bool) {
	if s == nil {
		return civil.Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, *s); err == nil {
			return civil.DateOf(t), true
		}
	}
	return civil.Date{}, false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
