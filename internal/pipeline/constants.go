package pipeline

import "time"

// Defaults used when a Processor or Reconciler is built without explicit values.
const (
	// DefaultTolerance is the allowed gap between a declared total and items + tax.
	DefaultTolerance = 5.0

	// DefaultPlaceholderTotal is stored when no trustworthy total exists.
	DefaultPlaceholderTotal = 10.0

	// DefaultConfidence is recorded for genuine extractions.
	DefaultConfidence = 0.85

	// DefaultAttemptTimeout bounds a single model call.
	DefaultAttemptTimeout = 45 * time.Second

	// DefaultStoreName labels an extraction with no store name.
	DefaultStoreName = "Receipt"

	// FallbackStoreName labels a record synthesized after every attempt failed.
	FallbackStoreName = "Receipt Upload"

	// FallbackItemDescription names the single synthetic line item of a fallback record.
	FallbackItemDescription = "Receipt item"

	// DefaultItemDescription names an extracted item the model left unnamed.
	DefaultItemDescription = "Item"

	dateLayout = "2006-01-02"
)

// DefaultModels is the extraction priority list.
var DefaultModels = []string{
	"gemini-2.5-flash",
	"gemini-1.5-flash",
	"gemini-1.5-pro",
	"gemini-pro",
	"gemini-pro-vision",
}
