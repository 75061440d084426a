package domain

import (
	"strings"

	"github.com/forPelevin/gomoji"
)

// CategoryOther is the catch-all every unknown category collapses to.
const CategoryOther = "Other"

// Category is one entry of the fixed expense taxonomy together with the
// keywords used to steer the extraction model.
type Category struct {
	Name  string   `json:"name"`
	Hints []string `json:"hints"`
}

// Categories is the closed set of expense categories, in display order.
var Categories = []Category{
	{Name: "Groceries", Hints: []string{"Big Bazaar", "DMart", "Reliance", "More", "supermarkets", "food items"}},
	{Name: "Dining", Hints: []string{"restaurants", "Swiggy", "Zomato", "cafes", "food delivery"}},
	{Name: "Transportation", Hints: []string{"petrol pumps (HP, BPCL, Indian Oil)", "metro", "taxi", "Ola", "Uber"}},
	{Name: "Shopping", Hints: []string{"clothing", "electronics", "Amazon", "Flipkart", "lifestyle stores"}},
	{Name: "Healthcare", Hints: []string{"Apollo", "MedPlus", "hospitals", "medical stores"}},
	{Name: "Entertainment", Hints: []string{"PVR", "INOX", "movies", "games"}},
	{Name: "Utilities", Hints: []string{"Jio", "Airtel", "Vi", "electricity", "water", "internet bills"}},
	{Name: "Travel", Hints: []string{"hotels", "flights", "IRCTC", "buses"}},
	{Name: "Gas", Hints: []string{"petrol/diesel ONLY (vehicle fuel)"}},
	{Name: CategoryOther, Hints: []string{"if none match"}},
}

// CategoryNames returns the names of Categories in order.
func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = c.Name
	}
	return names
}

// NormalizeCategory maps free-form model output onto the closed taxonomy.
// Emoji and surrounding whitespace are ignored and matching is
// case-insensitive; anything unrecognised becomes CategoryOther.
func NormalizeCategory(raw string) string {
	cleaned := strings.TrimSpace(gomoji.RemoveEmojis(raw))
	if cleaned == "" {
		return CategoryOther
	}
	for _, c := range Categories {
		if strings.EqualFold(c.Name, cleaned) {
			return c.Name
		}
	}
	return CategoryOther
}
