package services

import (
	"context"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

const (
	// TriggerTransaction is the evaluation path run right after a transaction
	// is persisted. It only checks the global budget and category scopes.
	TriggerTransaction Trigger = "transaction"

	// TriggerForeground is the evaluation path run once per app start or
	// foreground. It additionally checks upcoming recurring occurrences and
	// payment-method budgets.
	TriggerForeground Trigger = "foreground"
)

type Trigger string

// AlertEngine decides whether a single alert should fire for the current
// state of the books. Scopes are checked in priority order and the first
// crossing wins, so one event never produces a burst of notifications.
//
// Evaluation is best-effort by contract: missing settings or aggregates
// degrade to "no alert" and one scope's bad data never blocks another scope.
// Only state writes propagate errors to the caller.
type AlertEngine struct {
	settings   SettingsRepository
	aggregates *Aggregator
	rules      RuleRepository
}

func NewAlertEngine(settings SettingsRepository, aggregates *Aggregator, rules RuleRepository) *AlertEngine {
	return &AlertEngine{
		settings:   settings,
		aggregates: aggregates,
		rules:      rules,
	}
}

// Evaluate runs the alert decision for one trigger event and returns at most
// one alert. Threshold state updates (including period resets) are written
// back through the settings repository before the alert is returned.
func (e *AlertEngine) Evaluate(ctx context.Context, trigger Trigger, asOf core.Date) (*core.Alert, error) {
	settings, err := e.settings.GetSettings(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load alert settings, skipping evaluation", "error", err)
		return nil, nil
	}

	periodKey := asOf.MonthKey()

	alert, err := e.evaluateGlobal(ctx, settings, periodKey, asOf)
	if err != nil {
		return nil, err
	}
	if alert != nil {
		return alert, nil
	}

	alert, err = e.evaluateCategories(ctx, settings, periodKey, asOf)
	if err != nil {
		return nil, err
	}
	if alert != nil {
		return alert, nil
	}

	if trigger != TriggerForeground {
		return nil, nil
	}

	alert, err = e.evaluateRecurringDue(ctx, settings, asOf)
	if err != nil {
		return nil, err
	}
	if alert != nil {
		return alert, nil
	}

	return e.evaluateMethods(ctx, settings, periodKey, asOf)
}

func (e *AlertEngine) evaluateGlobal(ctx context.Context, settings core.Settings, periodKey string, asOf core.Date) (*core.Alert, error) {
	if !settings.BudgetAlertEnabled {
		return nil, nil
	}

	snap, err := e.aggregates.BudgetSnapshot(ctx, asOf)
	if err != nil {
		slog.WarnContext(ctx, "Global budget snapshot unavailable, skipping scope", "error", err)
		return nil, nil
	}

	state := settings.BudgetAlertState
	if len(state.Thresholds) == 0 {
		state.Thresholds = settings.BudgetAlertThresholds
	}
	if len(state.Thresholds) == 0 {
		state.Thresholds = core.DefaultThresholds
	}

	crossed, newState, fired := EvaluateThreshold(snap.PercentUsed, periodKey, state)
	if changed(state, newState) {
		if err := e.settings.SaveBudgetAlertState(ctx, newState); err != nil {
			return nil, fmt.Errorf("save budget alert state: %w", err)
		}
	}
	if !fired {
		return nil, nil
	}

	slog.InfoContext(ctx, "Global budget threshold crossed",
		"threshold", crossed,
		"percent_used", snap.PercentUsed,
		"period_key", periodKey)

	return budgetAlert(crossed, snap, asOf), nil
}

func (e *AlertEngine) evaluateCategories(ctx context.Context, settings core.Settings, periodKey string, asOf core.Date) (*core.Alert, error) {
	if !settings.CategoryAlertEnabled {
		return nil, nil
	}

	snaps, err := e.aggregates.CategorySnapshots(ctx, asOf)
	if err != nil {
		slog.WarnContext(ctx, "Category snapshots unavailable, skipping scope", "error", err)
		return nil, nil
	}

	for _, snap := range snaps {
		state, ok := settings.CategoryAlertSettings[snap.CategoryID]
		if !ok {
			state = core.NewThresholdState()
		}
		if !state.Enabled {
			continue
		}

		crossed, newState, fired := EvaluateThreshold(snap.PercentUsed, periodKey, state)
		if changed(state, newState) {
			if err := e.settings.SaveCategoryAlertState(ctx, snap.CategoryID, newState); err != nil {
				return nil, fmt.Errorf("save category alert state: %w", err)
			}
		}
		if !fired {
			continue
		}

		slog.InfoContext(ctx, "Category threshold crossed",
			"category", snap.Name,
			"threshold", crossed,
			"percent_used", snap.PercentUsed)

		return scopeAlert(crossed, snap.Name, snap.CurrentSpent, snap.BudgetAmount), nil
	}
	return nil, nil
}

func (e *AlertEngine) evaluateMethods(ctx context.Context, settings core.Settings, periodKey string, asOf core.Date) (*core.Alert, error) {
	if !settings.MethodAlertEnabled {
		return nil, nil
	}

	snaps, err := e.aggregates.MethodSnapshots(ctx, asOf)
	if err != nil {
		slog.WarnContext(ctx, "Payment method snapshots unavailable, skipping scope", "error", err)
		return nil, nil
	}

	for _, snap := range snaps {
		state, ok := settings.MethodAlertSettings[snap.PaymentMethodID]
		if !ok {
			state = core.NewThresholdState()
		}
		if !state.Enabled {
			continue
		}

		crossed, newState, fired := EvaluateThreshold(snap.PercentUsed, periodKey, state)
		if changed(state, newState) {
			if err := e.settings.SaveMethodAlertState(ctx, snap.PaymentMethodID, newState); err != nil {
				return nil, fmt.Errorf("save method alert state: %w", err)
			}
		}
		if !fired {
			continue
		}

		slog.InfoContext(ctx, "Payment method threshold crossed",
			"method", snap.Name,
			"threshold", crossed,
			"percent_used", snap.PercentUsed)

		return scopeAlert(crossed, snap.Name, snap.CurrentSpent, snap.BudgetAmount), nil
	}
	return nil, nil
}

// evaluateRecurringDue surfaces the soonest upcoming recurring occurrence
// within its lead time, capped to one alert per rule per calendar day.
func (e *AlertEngine) evaluateRecurringDue(ctx context.Context, settings core.Settings, asOf core.Date) (*core.Alert, error) {
	if !settings.RecurringAlertEnabled {
		return nil, nil
	}

	rules, err := e.rules.ListActiveRules(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Active rules unavailable, skipping recurring-due scope", "error", err)
		return nil, nil
	}

	best := -1
	var bestRule core.RecurrenceRule
	for _, rule := range rules {
		next := rule.NextExecutionDate
		if next.IsZero() {
			continue
		}

		state := settings.RecurringAlertSettings[rule.ID]
		if _, ok := settings.RecurringAlertSettings[rule.ID]; ok && !state.Enabled {
			continue
		}
		if state.LastAlertedDate == asOf.DayKey() {
			continue
		}

		daysUntil := daysBetween(asOf, next)
		if daysUntil < 0 || daysUntil > settings.LeadDaysFor(rule.ID) {
			continue
		}
		if best == -1 || daysUntil < best {
			best = daysUntil
			bestRule = rule
		}
	}
	if best == -1 {
		return nil, nil
	}

	state := settings.RecurringAlertSettings[bestRule.ID]
	state.Enabled = true
	state.LastAlertedDate = asOf.DayKey()
	if err := e.settings.SaveRecurringAlertState(ctx, bestRule.ID, state); err != nil {
		return nil, fmt.Errorf("save recurring alert state: %w", err)
	}

	slog.InfoContext(ctx, "Upcoming recurring occurrence alert",
		"rule_id", bestRule.ID,
		"days_until", best,
		"date", bestRule.NextExecutionDate.DayKey())

	return recurringAlert(bestRule, best), nil
}

func budgetAlert(threshold int, snap core.BudgetSnapshot, asOf core.Date) *core.Alert {
	kind := core.KindForThreshold(threshold)
	if threshold >= 100 {
		over := snap.TotalExpense.Sub(snap.MonthlyBudget)
		return &core.Alert{
			Kind:       kind,
			Message:    "Monthly budget exceeded",
			SubMessage: fmt.Sprintf("Over by %s", over),
		}
	}

	remaining := snap.MonthlyBudget.Sub(snap.TotalExpense)
	daysLeft := asOf.DaysInMonth() - asOf.Day()
	return &core.Alert{
		Kind:       kind,
		Message:    fmt.Sprintf("Monthly budget reached %d%%", threshold),
		SubMessage: fmt.Sprintf("%s remaining, %d days left", remaining, daysLeft),
	}
}

func scopeAlert(threshold int, name string, spent, budget core.Money) *core.Alert {
	kind := core.KindForThreshold(threshold)
	if threshold >= 100 {
		return &core.Alert{
			Kind:       kind,
			Message:    fmt.Sprintf("%s budget exceeded", name),
			SubMessage: fmt.Sprintf("Over by %s", spent.Sub(budget)),
		}
	}
	return &core.Alert{
		Kind:       kind,
		Message:    fmt.Sprintf("%s spending reached %d%%", name, threshold),
		SubMessage: fmt.Sprintf("%s of %s spent", spent, budget),
	}
}

func recurringAlert(rule core.RecurrenceRule, daysUntil int) *core.Alert {
	name := rule.Description
	if name == "" {
		name = "Recurring transaction"
	}

	var when string
	switch daysUntil {
	case 0:
		when = "today"
	case 1:
		when = "tomorrow"
	default:
		when = fmt.Sprintf("in %d days", daysUntil)
	}

	return &core.Alert{
		Kind:       core.AlertInfo,
		Message:    fmt.Sprintf("%s due %s", name, when),
		SubMessage: fmt.Sprintf("Amount %s on %s", rule.Amount, rule.NextExecutionDate.DayKey()),
	}
}

// changed reports whether a threshold state differs in any persisted field.
func changed(before, after core.AlertThresholdState) bool {
	return before.LastAlertedThreshold != after.LastAlertedThreshold ||
		before.LastAlertedPeriodKey != after.LastAlertedPeriodKey
}

// daysBetween returns the whole calendar days from a to b.
func daysBetween(a, b core.Date) int {
	return int(b.Time.Sub(a.Time).Hours() / 24)
}
