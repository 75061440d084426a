package pipeline

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseRawExtraction pulls the JSON object out of a model reply. It takes the
// span from the first '{' to the last '}' so prose and code fences around the
// object are ignored. It returns nil when there is no span, the span is not a
// JSON object, or text is empty. It never panics.
func ParseRawExtraction(text string) *RawExtraction {
	obj, ok := extractJSONObject(text)
	if !ok {
		return nil
	}

	raw := &RawExtraction{
		StoreName: getOptionalString(obj, "store_name"),
		Date:      getOptionalString(obj, "date"),
		Subtotal:  getOptionalNumber(obj, "subtotal"),
		Tax:       getOptionalNumber(obj, "tax"),
		Total:     getOptionalNumber(obj, "total"),
		Category:  getOptionalString(obj, "category"),
	}

	if items, ok := obj["items"].([]any); ok {
		raw.Items = make([]RawItem, 0, len(items))
		for _, it := range items {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			raw.Items = append(raw.Items, RawItem{
				Description: getOptionalString(m, "description"),
				Quantity:    getOptionalNumber(m, "quantity"),
				Price:       getOptionalNumber(m, "price"),
			})
		}
	}

	return raw
}

func extractJSONObject(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, false
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	// "null" decodes into a nil map without error.
	if obj == nil {
		return nil, false
	}
	return obj, true
}

func getOptionalString(m map[string]any, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// getOptionalNumber accepts JSON numbers and numeric strings such as "1,234.50"
// or "₹ 99". Anything else, including NaN and infinities, is nil.
func getOptionalNumber(m map[string]any, key string) *float64 {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}

	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(cleanNumericString(val), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func cleanNumericString(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"₹", "Rs.", "Rs", "$", "£", "€"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}
