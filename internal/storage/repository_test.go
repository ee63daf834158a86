package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"bilancio/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "bilancio.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_RuleLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := core.RecurrenceRule{
		ID:            "rule-1",
		Type:          core.Expense,
		Amount:        core.Money{Cents: 120000},
		CategoryID:    "cat-rent",
		Frequency:     core.Monthly,
		DayOfMonth:    1,
		StartDate:     core.NewDate(2024, 1, 1),
		IsActive:      true,
		ExecutionMode: core.OnDate,
		Description:   "Affitto",
	}
	if err := repo.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	rules, err := repo.ListActiveRules(ctx)
	if err != nil {
		t.Fatalf("ListActiveRules() error = %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d active rules, want 1", len(rules))
	}
	got := rules[0]
	if got.Frequency != core.Monthly || got.DayOfMonth != 1 {
		t.Errorf("round-tripped rule = %+v", got)
	}
	if !got.StartDate.Equal(rule.StartDate) {
		t.Errorf("StartDate = %s, want %s", got.StartDate.DayKey(), rule.StartDate.DayKey())
	}
	if !got.EndDate.IsZero() {
		t.Errorf("EndDate = %s, want zero", got.EndDate.DayKey())
	}

	next := core.NewDate(2024, 2, 1)
	if err := repo.UpdateRuleSchedule(ctx, "rule-1", next, "2024-01"); err != nil {
		t.Fatalf("UpdateRuleSchedule() error = %v", err)
	}
	got, err = repo.GetRule(ctx, "rule-1")
	if err != nil {
		t.Fatalf("GetRule() error = %v", err)
	}
	if !got.NextExecutionDate.Equal(next) {
		t.Errorf("NextExecutionDate = %s, want %s", got.NextExecutionDate.DayKey(), next.DayKey())
	}
	if got.LastMaterializedPeriod != "2024-01" {
		t.Errorf("LastMaterializedPeriod = %q, want 2024-01", got.LastMaterializedPeriod)
	}

	if err := repo.DeactivateRule(ctx, "rule-1"); err != nil {
		t.Fatalf("DeactivateRule() error = %v", err)
	}
	rules, _ = repo.ListActiveRules(ctx)
	if len(rules) != 0 {
		t.Errorf("got %d active rules after deactivation, want 0", len(rules))
	}

	if err := repo.DeactivateRule(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeactivateRule(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSQLiteRepository_SpendAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	txns := []core.Transaction{
		{ID: "t1", Type: core.Expense, Amount: core.Money{Cents: 5000}, CategoryID: "food", PaymentMethodID: "card", Date: core.NewDate(2024, 1, 5)},
		{ID: "t2", Type: core.Expense, Amount: core.Money{Cents: 3000}, CategoryID: "food", Date: core.NewDate(2024, 1, 20)},
		{ID: "t3", Type: core.Expense, Amount: core.Money{Cents: 2000}, CategoryID: "fun", PaymentMethodID: "card", Date: core.NewDate(2024, 1, 25)},
		{ID: "t4", Type: core.Income, Amount: core.Money{Cents: 90000}, CategoryID: "salary", Date: core.NewDate(2024, 1, 27)},
		{ID: "t5", Type: core.Expense, Amount: core.Money{Cents: 7000}, CategoryID: "food", Date: core.NewDate(2024, 2, 1)},
	}
	for _, txn := range txns {
		txn.CreatedAt, txn.UpdatedAt = now, now
		if _, err := repo.CreateTransaction(ctx, txn); err != nil {
			t.Fatalf("CreateTransaction(%s) error = %v", txn.ID, err)
		}
	}

	total, err := repo.MonthTotalExpense(ctx, "2024-01")
	if err != nil {
		t.Fatalf("MonthTotalExpense() error = %v", err)
	}
	if total.Cents != 10000 {
		t.Errorf("MonthTotalExpense = %d, want 10000", total.Cents)
	}

	byCat, err := repo.CategorySpend(ctx, "2024-01")
	if err != nil {
		t.Fatalf("CategorySpend() error = %v", err)
	}
	if byCat["food"].Cents != 8000 || byCat["fun"].Cents != 2000 {
		t.Errorf("CategorySpend = %v", byCat)
	}

	byMethod, err := repo.MethodSpend(ctx, "2024-01")
	if err != nil {
		t.Fatalf("MethodSpend() error = %v", err)
	}
	if byMethod["card"].Cents != 7000 {
		t.Errorf("MethodSpend[card] = %d, want 7000", byMethod["card"].Cents)
	}
	if len(byMethod) != 1 {
		t.Errorf("MethodSpend has %d entries, want 1", len(byMethod))
	}

	listed, err := repo.ListTransactionsByMonth(ctx, "2024-01")
	if err != nil {
		t.Fatalf("ListTransactionsByMonth() error = %v", err)
	}
	if len(listed) != 4 {
		t.Errorf("listed %d transactions, want 4", len(listed))
	}
}

func TestSQLiteRepository_BudgetsAndCatalog(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	budget, err := repo.MonthlyBudget(ctx)
	if err != nil {
		t.Fatalf("MonthlyBudget() error = %v", err)
	}
	if budget.Cents != 0 {
		t.Errorf("fresh MonthlyBudget = %d, want 0", budget.Cents)
	}

	if err := repo.SetMonthlyBudget(ctx, core.Money{Cents: 250000}); err != nil {
		t.Fatalf("SetMonthlyBudget() error = %v", err)
	}
	budget, _ = repo.MonthlyBudget(ctx)
	if budget.Cents != 250000 {
		t.Errorf("MonthlyBudget = %d, want 250000", budget.Cents)
	}

	if err := repo.UpsertCategory(ctx, core.Category{ID: "food", Name: "Spesa", Budget: core.Money{Cents: 40000}}); err != nil {
		t.Fatalf("UpsertCategory() error = %v", err)
	}
	if err := repo.UpsertCategory(ctx, core.Category{ID: "food", Name: "Alimentari", Budget: core.Money{Cents: 45000}}); err != nil {
		t.Fatalf("UpsertCategory() update error = %v", err)
	}
	cats, err := repo.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories() error = %v", err)
	}
	if len(cats) != 1 || cats[0].Name != "Alimentari" || cats[0].Budget.Cents != 45000 {
		t.Errorf("Categories = %+v", cats)
	}

	if err := repo.UpsertPaymentMethod(ctx, core.PaymentMethod{ID: "card", Name: "Carta", Budget: core.Money{Cents: 30000}}); err != nil {
		t.Fatalf("UpsertPaymentMethod() error = %v", err)
	}
	methods, err := repo.PaymentMethods(ctx)
	if err != nil {
		t.Fatalf("PaymentMethods() error = %v", err)
	}
	if len(methods) != 1 || methods[0].Name != "Carta" {
		t.Errorf("PaymentMethods = %+v", methods)
	}
}

func TestSQLiteRepository_SettingsRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// Fresh database answers with defaults.
	settings, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings() error = %v", err)
	}
	if !settings.BudgetAlertEnabled {
		t.Error("fresh settings have budget alerts disabled")
	}
	if settings.RecurringAlertDays != core.DefaultRecurringLeadDays {
		t.Errorf("RecurringAlertDays = %d, want %d", settings.RecurringAlertDays, core.DefaultRecurringLeadDays)
	}

	settings.RecurringAlertDays = 5
	settings.MethodAlertEnabled = false
	if err := repo.SaveSettings(ctx, settings); err != nil {
		t.Fatalf("SaveSettings() error = %v", err)
	}

	state := core.AlertThresholdState{
		Enabled:              true,
		Thresholds:           []int{50, 80, 100},
		LastAlertedThreshold: 80,
		LastAlertedPeriodKey: "2024-01",
	}
	if err := repo.SaveBudgetAlertState(ctx, state); err != nil {
		t.Fatalf("SaveBudgetAlertState() error = %v", err)
	}
	if err := repo.SaveCategoryAlertState(ctx, "food", state); err != nil {
		t.Fatalf("SaveCategoryAlertState() error = %v", err)
	}
	if err := repo.SaveRecurringAlertState(ctx, "rule-1", core.RecurringAlertState{
		Enabled:         true,
		DaysBefore:      2,
		LastAlertedDate: "2024-01-10",
	}); err != nil {
		t.Fatalf("SaveRecurringAlertState() error = %v", err)
	}

	got, err := repo.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings() after saves error = %v", err)
	}
	if got.RecurringAlertDays != 5 || got.MethodAlertEnabled {
		t.Errorf("settings row = %+v", got)
	}
	if got.BudgetAlertState.LastAlertedThreshold != 80 {
		t.Errorf("BudgetAlertState.LastAlertedThreshold = %d, want 80", got.BudgetAlertState.LastAlertedThreshold)
	}
	if got.BudgetAlertState.LastAlertedPeriodKey != "2024-01" {
		t.Errorf("BudgetAlertState.LastAlertedPeriodKey = %q", got.BudgetAlertState.LastAlertedPeriodKey)
	}
	cat := got.CategoryAlertSettings["food"]
	if !cat.Enabled || cat.LastAlertedThreshold != 80 {
		t.Errorf("category state = %+v", cat)
	}
	rec := got.RecurringAlertSettings["rule-1"]
	if rec.DaysBefore != 2 || rec.LastAlertedDate != "2024-01-10" {
		t.Errorf("recurring state = %+v", rec)
	}
	if got.LeadDaysFor("rule-1") != 2 {
		t.Errorf("LeadDaysFor(rule-1) = %d, want 2", got.LeadDaysFor("rule-1"))
	}
	if got.LeadDaysFor("other") != 5 {
		t.Errorf("LeadDaysFor(other) = %d, want 5", got.LeadDaysFor("other"))
	}
}
