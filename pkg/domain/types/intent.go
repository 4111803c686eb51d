package types

// Intent is the rating bias inferred from a query
type Intent string

const (
	IntentNeutral  Intent = "neutral"
	IntentPositive Intent = "positive"
	IntentNegative Intent = "negative"
)

// Prefers reports whether a record with the given rating matches the intent's bias.
// Neutral intent prefers every rating.
func (i Intent) Prefers(rating int) bool {
	switch i {
	case IntentPositive:
		return rating >= 4
	case IntentNegative:
		return rating <= 3
	default:
		return true
	}
}

// String returns the string representation of Intent
func (i Intent) String() string {
	return string(i)
}
