package notionsync

import (
	"time"

	"github.com/dvloznov/expense-tracker/internal/domain"
	"github.com/jomei/notionapi"
)

// Property names of the expenses database.
const (
	PropName       = "Name"
	PropExpenseID  = "Expense ID"
	PropUserID     = "User ID"
	PropAmount     = "Amount"
	PropCategory   = "Category"
	PropDate       = "Date"
	PropStatus     = "Status"
	PropConfidence = "Confidence"
	PropReceipt    = "Receipt"
)

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

// ExpenseToNotionProperties converts an expense to page properties.
func ExpenseToNotionProperties(e *domain.Expense) notionapi.Properties {
	amount, _ := e.Amount.Round(2).Float64()
	date := notionapi.Date(time.Date(e.Date.Year, e.Date.Month, e.Date.Day, 0, 0, 0, 0, time.UTC))

	name := e.Description
	if name == "" {
		name = "Receipt"
	}

	props := notionapi.Properties{
		PropName: notionapi.TitleProperty{
			Title: richText(name),
		},
		PropExpenseID: notionapi.RichTextProperty{
			RichText: richText(e.ID),
		},
		PropUserID: notionapi.RichTextProperty{
			RichText: richText(e.UserID),
		},
		PropAmount: notionapi.NumberProperty{
			Number: amount,
		},
		PropCategory: notionapi.SelectProperty{
			Select: notionapi.Option{Name: e.Category},
		},
		PropDate: notionapi.DateProperty{
			Date: &notionapi.DateObject{Start: &date},
		},
		PropStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: e.ProcessingStatus},
		},
	}

	if e.AIConfidence != nil {
		props[PropConfidence] = notionapi.NumberProperty{Number: *e.AIConfidence}
	}
	if e.ReceiptURL != nil && *e.ReceiptURL != "" {
		props[PropReceipt] = notionapi.URLProperty{URL: *e.ReceiptURL}
	}
	return props
}

// richTextValue returns the plain text of a rich text property, or "".
func richTextValue(page notionapi.Page, name string) string {
	if prop, ok := page.Properties[name]; ok {
		if rt, ok := prop.(*notionapi.RichTextProperty); ok && len(rt.RichText) > 0 {
			return rt.RichText[0].PlainText
		}
	}
	return ""
}

// extractExpenseID returns the Expense ID property of a page, or "".
func extractExpenseID(page notionapi.Page) string {
	return richTextValue(page, PropExpenseID)
}

// extractUserID returns the User ID property of a page, or "".
func extractUserID(page notionapi.Page) string {
	return richTextValue(page, PropUserID)
}
