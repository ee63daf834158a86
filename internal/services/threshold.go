package services

import (
	"sort"

	"bilancio/internal/core"
)

// EvaluateThreshold is the single threshold-crossing primitive behind the
// global budget, category, and payment-method alert scopes.
//
// It compares the current percentage used against the scope's configured
// thresholds and reports the highest threshold newly crossed since the last
// alert in the same period. When spend jumps over several thresholds at once
// only the topmost one fires. A period-key change resets the scope before
// scanning, so the returned state must be persisted even when nothing fired.
func EvaluateThreshold(currentPercent int, periodKey string, state core.AlertThresholdState) (int, core.AlertThresholdState, bool) {
	if periodKey != state.LastAlertedPeriodKey {
		state.LastAlertedThreshold = 0
		state.LastAlertedPeriodKey = periodKey
	}

	thresholds := append([]int(nil), state.Thresholds...)
	sort.Ints(thresholds)

	crossed := 0
	for _, t := range thresholds {
		if t > state.LastAlertedThreshold && currentPercent >= t {
			crossed = t
		}
	}
	if crossed == 0 {
		return 0, state, false
	}

	state.LastAlertedThreshold = crossed
	return crossed, state, true
}
