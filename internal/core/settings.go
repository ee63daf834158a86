package core

// DefaultThresholds are assigned when a scope's state is created lazily on
// first evaluation.
var DefaultThresholds = []int{50, 80, 100}

// DefaultRecurringLeadDays is the fallback lead time for upcoming-recurring
// alerts when neither the settings blob nor the rule carries one.
const DefaultRecurringLeadDays = 3

type (
	// AlertThresholdState tracks which threshold was last alerted for one scope
	// entity (the global budget, a category, a payment method, or a rule).
	// LastAlertedThreshold only grows within a period and resets to zero
	// exactly when LastAlertedPeriodKey changes.
	AlertThresholdState struct {
		Enabled              bool
		Thresholds           []int
		LastAlertedThreshold int
		LastAlertedPeriodKey string
		LastAlertedDate      string // "2006-01-02", recurring-due scope only
	}

	// RecurringAlertState configures the upcoming-occurrence alert for one rule.
	RecurringAlertState struct {
		Enabled         bool
		DaysBefore      int // 0 means inherit the global lead time
		LastAlertedDate string
	}

	// Settings is the persisted alert configuration blob. Per-scope maps are
	// populated lazily; a missing entry means defaults.
	Settings struct {
		BudgetAlertEnabled     bool
		BudgetAlertThresholds  []int
		BudgetAlertState       AlertThresholdState
		CategoryAlertEnabled   bool
		CategoryAlertSettings  map[string]AlertThresholdState
		RecurringAlertEnabled  bool
		RecurringAlertDays     int
		RecurringAlertSettings map[string]RecurringAlertState
		MethodAlertEnabled     bool
		MethodAlertSettings    map[string]AlertThresholdState
	}
)

// NewThresholdState returns an enabled state with the default thresholds.
func NewThresholdState() AlertThresholdState {
	return AlertThresholdState{
		Enabled:    true,
		Thresholds: append([]int(nil), DefaultThresholds...),
	}
}

// DefaultSettings returns the configuration used before the user touches any
// alert preference.
func DefaultSettings() Settings {
	return Settings{
		BudgetAlertEnabled:     true,
		BudgetAlertThresholds:  append([]int(nil), DefaultThresholds...),
		BudgetAlertState:       NewThresholdState(),
		CategoryAlertEnabled:   true,
		CategoryAlertSettings:  make(map[string]AlertThresholdState),
		RecurringAlertEnabled:  true,
		RecurringAlertDays:     DefaultRecurringLeadDays,
		RecurringAlertSettings: make(map[string]RecurringAlertState),
		MethodAlertEnabled:     true,
		MethodAlertSettings:    make(map[string]AlertThresholdState),
	}
}

// LeadDaysFor resolves the upcoming-occurrence lead time for a rule: the
// per-rule override wins, then the global setting, then the default.
func (s Settings) LeadDaysFor(ruleID string) int {
	if rs, ok := s.RecurringAlertSettings[ruleID]; ok && rs.DaysBefore > 0 {
		return rs.DaysBefore
	}
	if s.RecurringAlertDays > 0 {
		return s.RecurringAlertDays
	}
	return DefaultRecurringLeadDays
}
