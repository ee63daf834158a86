package services

import (
	"context"

	"bilancio/internal/core"
)

// Repositories are injected so the engine stays free of storage concerns;
// internal/storage provides the SQLite implementations and
// internal/storage/memory the in-memory ones.

// RuleRepository persists recurrence rules and their scheduling state.
type RuleRepository interface {
	ListActiveRules(ctx context.Context) ([]core.RecurrenceRule, error)

	// UpdateRuleSchedule writes back the cached next occurrence and the
	// start-of-month materialization marker for one rule.
	UpdateRuleSchedule(ctx context.Context, ruleID string, next core.Date, lastPeriod string) error

	DeactivateRule(ctx context.Context, ruleID string) error
}

// TransactionRepository persists transactions and answers the monthly
// aggregate queries the alert engine consumes.
type TransactionRepository interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)

	MonthTotalExpense(ctx context.Context, monthKey string) (core.Money, error)
	CategorySpend(ctx context.Context, monthKey string) (map[string]core.Money, error)
	MethodSpend(ctx context.Context, monthKey string) (map[string]core.Money, error)
}

// BudgetRepository supplies the configured budgets the aggregates are
// measured against.
type BudgetRepository interface {
	MonthlyBudget(ctx context.Context) (core.Money, error)
	Categories(ctx context.Context) ([]core.Category, error)
	PaymentMethods(ctx context.Context) ([]core.PaymentMethod, error)
}

// SettingsRepository persists the alert configuration and the per-scope
// threshold states. Each save covers exactly one scope entity so a failed
// write never leaves another scope half-updated.
type SettingsRepository interface {
	GetSettings(ctx context.Context) (core.Settings, error)
	SaveBudgetAlertState(ctx context.Context, state core.AlertThresholdState) error
	SaveCategoryAlertState(ctx context.Context, categoryID string, state core.AlertThresholdState) error
	SaveMethodAlertState(ctx context.Context, methodID string, state core.AlertThresholdState) error
	SaveRecurringAlertState(ctx context.Context, ruleID string, state core.RecurringAlertState) error
}

// AlertDispatcher delivers an alert to the user. The engine only decides
// whether and what to alert; delivery failures must never affect evaluation.
type AlertDispatcher interface {
	Dispatch(ctx context.Context, alert core.Alert) error
}

// SyncPublisher announces persisted transactions to downstream consumers.
type SyncPublisher interface {
	PublishTransactionSync(ctx context.Context, transactionID string) error
}
