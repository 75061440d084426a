package pipeline

import (
	"math"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, time.May, 17, 9, 30, 0, 0, time.UTC)

func testReconciler() *Reconciler {
	r := NewReconciler()
	r.Now = func() time.Time { return fixedNow }
	return r
}

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

func item(price, qty *float64) RawItem {
	return RawItem{Description: s("thing"), Price: price, Quantity: qty}
}

func rules(adj []Adjustment) []string {
	out := make([]string, 0, len(adj))
	for _, a := range adj {
		out = append(out, a.Rule)
	}
	return out
}

func TestReconcile_Scenarios(t *testing.T) {
	tests := []struct {
		name         string
		raw          RawExtraction
		wantTotal    float64
		wantSubtotal float64
		wantRule     string
	}{
		{
			name:         "total zero derived from items plus tax",
			raw:          RawExtraction{Items: []RawItem{item(f(65), f(1))}, Tax: f(5), Total: f(0)},
			wantTotal:    70,
			wantSubtotal: 65,
			wantRule:     RuleDerivedFromItems,
		},
		{
			name:         "mismatch beyond tolerance takes larger declared",
			raw:          RawExtraction{Items: []RawItem{item(f(450), f(2))}, Tax: f(0), Total: f(1400)},
			wantTotal:    1400,
			wantSubtotal: 900,
			wantRule:     RuleMismatchOverride,
		},
		{
			name:         "nothing usable falls to placeholder",
			raw:          RawExtraction{},
			wantTotal:    10,
			wantSubtotal: 10,
			wantRule:     RulePlaceholder,
		},
		{
			name:         "mismatch beyond tolerance takes larger calculated",
			raw:          RawExtraction{Items: []RawItem{item(f(100), f(3))}, Tax: f(20), Total: f(50)},
			wantTotal:    320,
			wantSubtotal: 300,
			wantRule:     RuleMismatchOverride,
		},
		{
			name:         "within tolerance keeps declared",
			raw:          RawExtraction{Items: []RawItem{item(f(100), nil)}, Tax: f(10), Subtotal: f(100), Total: f(114)},
			wantTotal:    114,
			wantSubtotal: 100,
		},
		{
			name:         "exactly at tolerance keeps declared",
			raw:          RawExtraction{Items: []RawItem{item(f(100), f(1))}, Total: f(105)},
			wantTotal:    105,
			wantSubtotal: 105,
		},
		{
			name:         "missing total uses subtotal when no items",
			raw:          RawExtraction{Subtotal: f(250), Tax: f(10)},
			wantTotal:    250,
			wantSubtotal: 250,
			wantRule:     RuleSubtotalAsTotal,
		},
		{
			name:         "negative total with no items uses placeholder",
			raw:          RawExtraction{Total: f(-40)},
			wantTotal:    10,
			wantSubtotal: 10,
			wantRule:     RulePlaceholder,
		},
		{
			name:         "free items hit the final guard",
			raw:          RawExtraction{Items: []RawItem{item(f(0), f(2)), item(nil, nil)}},
			wantTotal:    10,
			wantSubtotal: 0,
			wantRule:     RuleFinalGuard,
		},
		{
			name:         "missing quantity counts as one",
			raw:          RawExtraction{Items: []RawItem{item(f(20), nil), item(f(5), f(0))}},
			wantTotal:    25,
			wantSubtotal: 25,
			wantRule:     RuleDerivedFromItems,
		},
		{
			name:         "empty items array is no items",
			raw:          RawExtraction{Items: []RawItem{}, Subtotal: f(30)},
			wantTotal:    30,
			wantSubtotal: 30,
			wantRule:     RuleSubtotalAsTotal,
		},
		{
			name:         "declared only, subtotal derived from tax",
			raw:          RawExtraction{Total: f(42.5), Tax: f(2.5)},
			wantTotal:    42.5,
			wantSubtotal: 40,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			got, adj := testReconciler().Reconcile(&raw)
			require.NotNil(t, got)
			assert.InDelta(t, tt.wantTotal, got.Total, 1e-9)
			assert.InDelta(t, tt.wantSubtotal, got.Subtotal, 1e-9)
			if tt.wantRule != "" {
				assert.Contains(t, rules(adj), tt.wantRule)
			} else {
				assert.Empty(t, adj)
			}
		})
	}
}

func TestReconcile_TotalAlwaysPositive(t *testing.T) {
	values := []*float64{nil, f(0), f(-1), f(math.NaN()), f(math.Inf(1)), f(math.Inf(-1)), f(0.001), f(1e6)}

	r := testReconciler()
	for _, total := range values {
		for _, sub := range values {
			for _, price := range values {
				raw := &RawExtraction{Total: total, Subtotal: sub, Tax: f(-3)}
				if price != nil {
					raw.Items = []RawItem{item(price, f(math.Inf(1)))}
				}
				var got *ReconciledExpense
				require.NotPanics(t, func() { got, _ = r.Reconcile(raw) })
				assert.True(t, got.Total > 0 && !math.IsInf(got.Total, 0) && !math.IsNaN(got.Total),
					"total=%v sub=%v price=%v -> %v", total, sub, price, got.Total)
				assert.GreaterOrEqual(t, got.Subtotal, 0.0)
				assert.Equal(t, 0.0, got.Tax)
			}
		}
	}
}

func TestReconcile_NilExtraction(t *testing.T) {
	r := testReconciler()

	var got *ReconciledExpense
	var adj []Adjustment
	require.NotPanics(t, func() { got, adj = r.Reconcile(nil) })
	assert.Equal(t, 10.0, got.Total)
	assert.Equal(t, DefaultStoreName, got.StoreName)
	assert.Equal(t, domain.CategoryOther, got.Category)
	assert.Equal(t, []string{RulePlaceholder}, rules(adj))
}

func TestReconcile_SubCentTotalUsesPlaceholder(t *testing.T) {
	got, adj := testReconciler().Reconcile(&RawExtraction{Total: f(0.004)})
	assert.Equal(t, 10.0, got.Total)
	assert.Equal(t, []string{RuleFinalGuard}, rules(adj))

	got, adj = testReconciler().Reconcile(&RawExtraction{Total: f(0.005)})
	assert.Equal(t, 0.005, got.Total, "rounds to 0.01 when stored")
	assert.Empty(t, adj)
}

func TestReconcile_ToleranceIsConfigurable(t *testing.T) {
	raw := &RawExtraction{Items: []RawItem{item(f(100), f(1))}, Total: f(101)}

	r := testReconciler()
	r.Tolerance = 0.5
	got, adj := r.Reconcile(raw)
	assert.Equal(t, 101.0, got.Total)
	assert.Equal(t, []string{RuleMismatchOverride}, rules(adj))

	r.Tolerance = 1
	got, adj = r.Reconcile(raw)
	assert.Equal(t, 101.0, got.Total)
	assert.Empty(t, adj)
}

func TestReconcile_PlaceholderIsConfigurable(t *testing.T) {
	r := testReconciler()
	r.PlaceholderTotal = 1
	got, _ := r.Reconcile(&RawExtraction{})
	assert.Equal(t, 1.0, got.Total)
}

func TestReconcile_CategoryClosure(t *testing.T) {
	tests := []struct {
		raw  *string
		want string
	}{
		{nil, "Other"},
		{s("Snacks"), "Other"},
		{s("dining"), "Dining"},
		{s("🚕 Transportation"), "Transportation"},
		{s("OTHER"), "Other"},
	}
	for _, tt := range tests {
		got, _ := testReconciler().Reconcile(&RawExtraction{Category: tt.raw})
		assert.Equal(t, tt.want, got.Category)
	}

	_, adj := testReconciler().Reconcile(&RawExtraction{Category: s("Snacks")})
	assert.Contains(t, rules(adj), RuleCategoryOther)
}

func TestReconcile_Dates(t *testing.T) {
	today := civil.DateOf(fixedNow)
	tests := []struct {
		raw  *string
		want civil.Date
	}{
		{nil, today},
		{s("2024-03-09"), civil.Date{Year: 2024, Month: 3, Day: 9}},
		{s("09/03/2024"), civil.Date{Year: 2024, Month: 3, Day: 9}},
		{s("09-03-2024"), civil.Date{Year: 2024, Month: 3, Day: 9}},
		{s("2024-03-09T18:22:00Z"), civil.Date{Year: 2024, Month: 3, Day: 9}},
		{s("yesterday"), today},
		{s("2024-13-45"), today},
	}
	for _, tt := range tests {
		got, _ := testReconciler().Reconcile(&RawExtraction{Date: tt.raw})
		assert.Equal(t, tt.want, got.Date)
	}
}

func TestReconcile_DefaultsAndConfidence(t *testing.T) {
	got, _ := testReconciler().Reconcile(&RawExtraction{
		Items: []RawItem{{Price: f(12)}},
		Total: f(12),
	})
	assert.Equal(t, DefaultStoreName, got.StoreName)
	require.Len(t, got.Items, 1)
	assert.Equal(t, LineItem{Description: DefaultItemDescription, Quantity: 1, Price: 12}, got.Items[0])
	require.NotNil(t, got.Confidence)
	assert.Equal(t, DefaultConfidence, *got.Confidence)
}

func TestReconcile_ParserToReconciler(t *testing.T) {
	raw := ParseRawExtraction(`Here is the data: {"total": 42.50, "category": "Snacks"} Thanks!`)
	require.NotNil(t, raw)

	got, _ := testReconciler().Reconcile(raw)
	assert.Equal(t, 42.5, got.Total)
	assert.Equal(t, "Other", got.Category)
}

func TestFallback(t *testing.T) {
	got := testReconciler().Fallback()

	assert.Equal(t, FallbackStoreName, got.StoreName)
	assert.Equal(t, civil.DateOf(fixedNow), got.Date)
	assert.Equal(t, []LineItem{{Description: FallbackItemDescription, Quantity: 1, Price: 10}}, got.Items)
	assert.Equal(t, 10.0, got.Subtotal)
	assert.Equal(t, 10.0, got.Total)
	assert.Equal(t, 0.0, got.Tax)
	assert.Equal(t, "Other", got.Category)
	assert.Nil(t, got.Confidence)
	assert.Equal(t, "2024-05-17", got.Date.String())
}
