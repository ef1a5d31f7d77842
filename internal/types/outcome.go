package types

// Outcome separates a clean result from one that completed on a fallback path.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomePartial means the result is usable but part of the input was
	// not analyzed.
	OutcomePartial
	// OutcomeFallback means a default (centered) result replaced analysis.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomePartial:
		return "partial"
	case OutcomeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}
