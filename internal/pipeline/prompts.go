package pipeline

import (
	"strings"
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
)

const receiptPromptHeader = `You are a professional receipt OCR scanner. Extract data with HIGH ACCURACY.

PRIORITY ORDER:
1. TOTAL amount (MOST CRITICAL)
2. Store name
3. Each item with exact price
4. Date

JSON FORMAT (strict):
{
  "store_name": "exact store name",
  "date": "YYYY-MM-DD",
  "items": [{"description": "product name", "quantity": 1, "price": 0.00}],
  "subtotal": 0.00,
  "tax": 0.00,
  "total": 0.00,
  "category": "category"
}

CRITICAL EXTRACTION RULES:

TOTAL (HIGHEST PRIORITY):
- Find the word "TOTAL" / "Grand Total" / "Net Amount" / "Amount Payable"
- This is THE MOST IMPORTANT number - get it RIGHT
- Usually at the bottom of receipt
- If you see ₹1,234 or Rs. 1234, extract as 1234.00
- Total must equal: (sum of all item prices) + tax
- Verify: total >= subtotal

ITEMS (IMPORTANT):
- Extract EVERY item listed on the receipt
- Format: {"description": "exact product name", "quantity": qty, "price": unit_price}
- Do NOT include tax, discounts, or totals as items
- Only actual products/services
- Examples:
  * "Milk 1L" → {"description": "Milk 1L", "quantity": 1, "price": 65.00}
  * "Rice 5kg x2" → {"description": "Rice 5kg", "quantity": 2, "price": 450.00}

STORE NAME:
- Usually at the TOP of receipt in large text
- Extract exact name (e.g., "Big Bazaar", "Reliance Fresh")

DATE:
- Look for date format: DD/MM/YYYY or DD-MM-YYYY
- Convert to YYYY-MM-DD
`

const receiptPromptFooter = `
VALIDATION:
✓ total = subtotal + tax (must match)
✓ subtotal = sum of (item.price × item.quantity)
✓ All numbers are positive
✓ Category is one of the listed options

Return ONLY valid JSON. NO explanations.`

// BuildReceiptPrompt returns the instruction sent with every receipt image.
// today fills the default date rule.
func BuildReceiptPrompt(today time.Time) string {
	var b strings.Builder
	b.WriteString(receiptPromptHeader)
	b.WriteString("- If unclear, use today's date: " + today.Format(dateLayout) + "\n\n")

	b.WriteString("CATEGORY (auto-detect):\n")
	for _, c := range domain.Categories {
		b.WriteString("- " + c.Name + ": " + strings.Join(c.Hints, ", ") + "\n")
	}

	b.WriteString(receiptPromptFooter)
	return b.String()
}
