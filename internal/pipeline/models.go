package pipeline

import (
	"cloud.google.com/go/civil"
)

// RawExtraction is the model's reply after JSON decoding. Every field is
// optional; values that were missing or of the wrong type are nil.
type RawExtraction struct {
	StoreName *string
	Date      *string
	Items     []RawItem
	Subtotal  *float64
	Tax       *float64
	Total     *float64
	Category  *string
}

// RawItem is one line of RawExtraction.Items.
type RawItem struct {
	Description *string
	Quantity    *float64
	Price       *float64
}

// LineItem is a reconciled receipt line.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
}

// ReconciledExpense is the authoritative extraction result stored in
// extracted_data. Total is always finite and positive.
type ReconciledExpense struct {
	StoreName  string     `json:"store_name"`
	Date       civil.Date `json:"date"`
	Items      []LineItem `json:"items"`
	Subtotal   float64    `json:"subtotal"`
	Tax        float64    `json:"tax"`
	Total      float64    `json:"total"`
	Category   string     `json:"category"`
	Confidence *float64   `json:"confidence"`
}

// Adjustment records a correction the reconciler made to the model's numbers.
type Adjustment struct {
	Rule   string
	Detail string
}

// Reconciliation rule names, also used as metric labels.
const (
	RuleDerivedFromItems = "derived_from_items"
	RuleSubtotalAsTotal  = "subtotal_as_total"
	RulePlaceholder      = "placeholder"
	RuleMismatchOverride = "mismatch_override"
	RuleFinalGuard       = "final_guard"
	RuleDateDefaulted    = "date_defaulted"
	RuleCategoryOther    = "category_other"
)
