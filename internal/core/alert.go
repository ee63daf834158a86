package core

const (
	AlertInfo    AlertKind = "info"
	AlertWarning AlertKind = "warning"
	AlertDanger  AlertKind = "danger"
)

type (
	AlertKind string

	// Alert is the single outbound notification an evaluation pass may produce.
	// Delivery is the dispatcher's job; the engine only decides content.
	Alert struct {
		Kind       AlertKind
		Message    string
		SubMessage string
	}
)

// KindForThreshold maps a crossed percentage threshold to an alert severity:
// 100 and above is danger, 80 and above is warning, everything else info.
func KindForThreshold(threshold int) AlertKind {
	switch {
	case threshold >= 100:
		return AlertDanger
	case threshold >= 80:
		return AlertWarning
	default:
		return AlertInfo
	}
}
