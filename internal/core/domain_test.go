package core

import "testing"

func validRule() RecurrenceRule {
	return RecurrenceRule{
		ID:            "rule-1",
		Type:          Expense,
		Amount:        Money{Cents: 1500},
		CategoryID:    "cat-rent",
		Frequency:     Monthly,
		DayOfMonth:    15,
		StartDate:     NewDate(2024, 1, 15),
		IsActive:      true,
		ExecutionMode: OnDate,
	}
}

func TestRecurrenceRule_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RecurrenceRule)
		wantErr bool
	}{
		{"valid monthly rule", func(r *RecurrenceRule) {}, false},
		{"zero amount", func(r *RecurrenceRule) { r.Amount = Money{} }, true},
		{"empty category", func(r *RecurrenceRule) { r.CategoryID = " " }, true},
		{"unknown frequency", func(r *RecurrenceRule) { r.Frequency = "fortnightly" }, true},
		{"day of month zero", func(r *RecurrenceRule) { r.DayOfMonth = 0 }, true},
		{"day of month 32", func(r *RecurrenceRule) { r.DayOfMonth = 32 }, true},
		{"weekly day of week 7", func(r *RecurrenceRule) {
			r.Frequency = Weekly
			r.DayOfWeek = 7
		}, true},
		{"biweekly valid day of week", func(r *RecurrenceRule) {
			r.Frequency = Biweekly
			r.DayOfWeek = 0
		}, false},
		{"end before start", func(r *RecurrenceRule) { r.EndDate = NewDate(2024, 1, 1) }, true},
		{"end equals start", func(r *RecurrenceRule) { r.EndDate = NewDate(2024, 1, 15) }, false},
		{"unknown execution mode", func(r *RecurrenceRule) { r.ExecutionMode = "quarterly_lump" }, true},
		{"income rule", func(r *RecurrenceRule) {
			r.Type = Income
			r.IncomeSourceID = "src-salary"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			err := rule.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("RecurrenceRule.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDate_MonthHelpers(t *testing.T) {
	d := NewDate(2024, 2, 10)
	if got := d.DaysInMonth(); got != 29 {
		t.Errorf("DaysInMonth() = %d, want 29 (leap year)", got)
	}
	if got := NewDate(2023, 2, 10).DaysInMonth(); got != 28 {
		t.Errorf("DaysInMonth() = %d, want 28", got)
	}
	if got := d.MonthKey(); got != "2024-02" {
		t.Errorf("MonthKey() = %q, want 2024-02", got)
	}
	if got := d.DayKey(); got != "2024-02-10" {
		t.Errorf("DayKey() = %q, want 2024-02-10", got)
	}
	if got := d.StartOfMonth(); !got.Equal(NewDate(2024, 2, 1)) {
		t.Errorf("StartOfMonth() = %v, want 2024-02-01", got)
	}
}

func TestKindForThreshold(t *testing.T) {
	tests := []struct {
		threshold int
		want      AlertKind
	}{
		{50, AlertInfo},
		{79, AlertInfo},
		{80, AlertWarning},
		{99, AlertWarning},
		{100, AlertDanger},
		{120, AlertDanger},
	}
	for _, tt := range tests {
		if got := KindForThreshold(tt.threshold); got != tt.want {
			t.Errorf("KindForThreshold(%d) = %v, want %v", tt.threshold, got, tt.want)
		}
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(Money{Cents: 85000000}, Money{Cents: 100000000}); got != 85 {
		t.Errorf("PercentOf() = %d, want 85", got)
	}
	if got := PercentOf(Money{Cents: 100}, Money{}); got != 0 {
		t.Errorf("PercentOf() with zero budget = %d, want 0", got)
	}
}

func TestSettings_LeadDaysFor(t *testing.T) {
	s := DefaultSettings()
	s.RecurringAlertDays = 5
	s.RecurringAlertSettings["rule-1"] = RecurringAlertState{Enabled: true, DaysBefore: 2}

	if got := s.LeadDaysFor("rule-1"); got != 2 {
		t.Errorf("LeadDaysFor(rule-1) = %d, want 2 (per-rule override)", got)
	}
	if got := s.LeadDaysFor("rule-2"); got != 5 {
		t.Errorf("LeadDaysFor(rule-2) = %d, want 5 (global setting)", got)
	}
	s.RecurringAlertDays = 0
	if got := s.LeadDaysFor("rule-2"); got != DefaultRecurringLeadDays {
		t.Errorf("LeadDaysFor(rule-2) = %d, want default %d", got, DefaultRecurringLeadDays)
	}
}
