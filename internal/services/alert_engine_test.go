package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"bilancio/internal/core"
	"bilancio/internal/storage/memory"
)

func newTestEngine(store *memory.Store) *AlertEngine {
	return NewAlertEngine(store, NewAggregator(store, store), store)
}

func seedExpense(store *memory.Store, cents int64, date core.Date, categoryID, methodID string) {
	store.PutTransaction(core.Transaction{
		ID:              "seed-" + date.DayKey() + categoryID,
		Type:            core.Expense,
		Amount:          core.Money{Cents: cents},
		CategoryID:      categoryID,
		PaymentMethodID: methodID,
		Date:            date,
		CreatedAt:       time.Now().UTC(),
	})
}

func TestAlertEngine_GlobalBudgetCrossing(t *testing.T) {
	store := memory.NewStore()
	store.SetMonthlyBudget(core.Money{Cents: 1_000_000})
	seedExpense(store, 850_000, core.NewDate(2024, 1, 18), "cat-1", "")
	engine := newTestEngine(store)

	asOf := core.NewDate(2024, 1, 20)
	alert, err := engine.Evaluate(context.Background(), TriggerTransaction, asOf)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if alert == nil {
		t.Fatal("Evaluate() returned no alert at 85% of budget")
	}
	if alert.Kind != core.AlertWarning {
		t.Errorf("Kind = %s, want warning", alert.Kind)
	}
	if want := "Monthly budget reached 80%"; alert.Message != want {
		t.Errorf("Message = %q, want %q", alert.Message, want)
	}
	if want := "1500.00 remaining, 11 days left"; alert.SubMessage != want {
		t.Errorf("SubMessage = %q, want %q", alert.SubMessage, want)
	}

	state := store.Settings().BudgetAlertState
	if state.LastAlertedThreshold != 80 {
		t.Errorf("LastAlertedThreshold = %d, want 80", state.LastAlertedThreshold)
	}
	if state.LastAlertedPeriodKey != "2024-01" {
		t.Errorf("LastAlertedPeriodKey = %q, want 2024-01", state.LastAlertedPeriodKey)
	}

	// Re-evaluating unchanged spend stays quiet.
	alert, err = engine.Evaluate(context.Background(), TriggerTransaction, asOf)
	if err != nil {
		t.Fatalf("second Evaluate() error = %v", err)
	}
	if alert != nil {
		t.Errorf("second Evaluate() = %+v, want nil", alert)
	}
}

func TestAlertEngine_BudgetExceededMessage(t *testing.T) {
	store := memory.NewStore()
	store.SetMonthlyBudget(core.Money{Cents: 100_000})
	seedExpense(store, 112_000, core.NewDate(2024, 3, 10), "cat-1", "")
	engine := newTestEngine(store)

	alert, err := engine.Evaluate(context.Background(), TriggerTransaction, core.NewDate(2024, 3, 10))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if alert == nil {
		t.Fatal("Evaluate() returned no alert above 100%")
	}
	if alert.Kind != core.AlertDanger {
		t.Errorf("Kind = %s, want danger", alert.Kind)
	}
	if want := "Monthly budget exceeded"; alert.Message != want {
		t.Errorf("Message = %q, want %q", alert.Message, want)
	}
	if want := "Over by 120.00"; alert.SubMessage != want {
		t.Errorf("SubMessage = %q, want %q", alert.SubMessage, want)
	}
}

func TestAlertEngine_GlobalWinsOverCategory(t *testing.T) {
	store := memory.NewStore()
	store.SetMonthlyBudget(core.Money{Cents: 100_000})
	store.SetCategories(core.Category{ID: "cat-1", Name: "Spesa", Budget: core.Money{Cents: 50_000}})
	// 90% of the global budget and 180% of the category budget.
	seedExpense(store, 90_000, core.NewDate(2024, 1, 10), "cat-1", "")
	engine := newTestEngine(store)

	alert, err := engine.Evaluate(context.Background(), TriggerTransaction, core.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if alert == nil {
		t.Fatal("Evaluate() returned no alert")
	}
	if want := "Monthly budget reached 80%"; alert.Message != want {
		t.Errorf("Message = %q, want %q (global scope has priority)", alert.Message, want)
	}

	// The category crossing was never consumed; it fires on the next pass.
	alert, err = engine.Evaluate(context.Background(), TriggerTransaction, core.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("second Evaluate() error = %v", err)
	}
	if alert == nil {
		t.Fatal("second Evaluate() returned no alert")
	}
	if want := "Spesa budget exceeded"; alert.Message != want {
		t.Errorf("Message = %q, want %q", alert.Message, want)
	}
}

func TestAlertEngine_CategoryCrossing(t *testing.T) {
	store := memory.NewStore()
	store.SetCategories(core.Category{ID: "cat-1", Name: "Ristoranti", Budget: core.Money{Cents: 40_000}})
	seedExpense(store, 22_000, core.NewDate(2024, 1, 10), "cat-1", "")
	engine := newTestEngine(store)

	// No global budget configured: the global scope skips silently.
	alert, err := engine.Evaluate(context.Background(), TriggerTransaction, core.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if alert == nil {
		t.Fatal("Evaluate() returned no alert at 55% of category budget")
	}
	if want := "Ristoranti spending reached 50%"; alert.Message != want {
		t.Errorf("Message = %q, want %q", alert.Message, want)
	}
	if want := "220.00 of 400.00 spent"; alert.SubMessage != want {
		t.Errorf("SubMessage = %q, want %q", alert.SubMessage, want)
	}
}

func TestAlertEngine_DisabledCategorySkipped(t *testing.T) {
	store := memory.NewStore()
	store.SetCategories(core.Category{ID: "cat-1", Name: "Spesa", Budget: core.Money{Cents: 10_000}})
	seedExpense(store, 9_500, core.NewDate(2024, 1, 10), "cat-1", "")

	settings := store.Settings()
	settings.CategoryAlertSettings["cat-1"] = core.AlertThresholdState{
		Enabled:    false,
		Thresholds: core.DefaultThresholds,
	}
	store.SetSettings(settings)
	engine := newTestEngine(store)

	alert, err := engine.Evaluate(context.Background(), TriggerTransaction, core.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if alert != nil {
		t.Errorf("Evaluate() = %+v, want nil for disabled category", alert)
	}
}

func TestAlertEngine_RecurringDueForegroundOnly(t *testing.T) {
	store := memory.NewStore()
	asOf := core.NewDate(2024, 1, 10)

	rule := core.RecurrenceRule{
		ID:                "rule-1",
		Type:              core.Expense,
		Amount:            core.Money{Cents: 120_000},
		CategoryID:        "cat-rent",
		Frequency:         core.Monthly,
		DayOfMonth:        12,
		StartDate:         core.NewDate(2024, 1, 1),
		IsActive:          true,
		ExecutionMode:     core.OnDate,
		Description:       "Affitto",
		NextExecutionDate: core.NewDate(2024, 1, 12),
	}
	store.PutRule(rule)
	engine := newTestEngine(store)

	t.Run("transaction trigger never fires it", func(t *testing.T) {
		alert, err := engine.Evaluate(context.Background(), TriggerTransaction, asOf)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if alert != nil {
			t.Errorf("Evaluate() = %+v, want nil on transaction trigger", alert)
		}
	})

	t.Run("foreground trigger fires within lead time", func(t *testing.T) {
		alert, err := engine.Evaluate(context.Background(), TriggerForeground, asOf)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if alert == nil {
			t.Fatal("Evaluate() returned no alert two days before the occurrence")
		}
		if alert.Kind != core.AlertInfo {
			t.Errorf("Kind = %s, want info", alert.Kind)
		}
		if want := "Affitto due in 2 days"; alert.Message != want {
			t.Errorf("Message = %q, want %q", alert.Message, want)
		}
	})

	t.Run("at most once per day", func(t *testing.T) {
		alert, err := engine.Evaluate(context.Background(), TriggerForeground, asOf)
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if alert != nil {
			t.Errorf("Evaluate() = %+v, want nil on the same day", alert)
		}
	})

	t.Run("next day fires again", func(t *testing.T) {
		alert, err := engine.Evaluate(context.Background(), TriggerForeground, asOf.AddDays(1))
		if err != nil {
			t.Fatalf("Evaluate() error = %v", err)
		}
		if alert == nil {
			t.Fatal("Evaluate() returned no alert the following day")
		}
		if want := "Affitto due tomorrow"; alert.Message != want {
			t.Errorf("Message = %q, want %q", alert.Message, want)
		}
	})
}

func TestAlertEngine_MethodCrossingForegroundOnly(t *testing.T) {
	store := memory.NewStore()
	store.SetPaymentMethods(core.PaymentMethod{ID: "pm-1", Name: "Carta", Budget: core.Money{Cents: 30_000}})
	seedExpense(store, 25_000, core.NewDate(2024, 1, 10), "cat-1", "pm-1")
	engine := newTestEngine(store)

	alert, err := engine.Evaluate(context.Background(), TriggerTransaction, core.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if alert != nil {
		t.Errorf("transaction trigger reached method scope: %+v", alert)
	}

	alert, err = engine.Evaluate(context.Background(), TriggerForeground, core.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if alert == nil {
		t.Fatal("Evaluate() returned no alert at 83% of method budget")
	}
	if want := "Carta spending reached 80%"; alert.Message != want {
		t.Errorf("Message = %q, want %q", alert.Message, want)
	}
}

type failingSettings struct{}

func (failingSettings) GetSettings(ctx context.Context) (core.Settings, error) {
	return core.Settings{}, errors.New("settings table locked")
}
func (failingSettings) SaveBudgetAlertState(ctx context.Context, state core.AlertThresholdState) error {
	return nil
}
func (failingSettings) SaveCategoryAlertState(ctx context.Context, categoryID string, state core.AlertThresholdState) error {
	return nil
}
func (failingSettings) SaveMethodAlertState(ctx context.Context, methodID string, state core.AlertThresholdState) error {
	return nil
}
func (failingSettings) SaveRecurringAlertState(ctx context.Context, ruleID string, state core.RecurringAlertState) error {
	return nil
}

func TestAlertEngine_FailSilentOnSettingsError(t *testing.T) {
	store := memory.NewStore()
	store.SetMonthlyBudget(core.Money{Cents: 100_000})
	seedExpense(store, 99_000, core.NewDate(2024, 1, 10), "cat-1", "")

	engine := NewAlertEngine(failingSettings{}, NewAggregator(store, store), store)

	alert, err := engine.Evaluate(context.Background(), TriggerForeground, core.NewDate(2024, 1, 10))
	if err != nil {
		t.Fatalf("Evaluate() error = %v, want nil (fail silent)", err)
	}
	if alert != nil {
		t.Errorf("Evaluate() = %+v, want nil when settings are unreadable", alert)
	}
}
