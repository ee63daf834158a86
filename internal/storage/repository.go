// Package storage provides the SQLite persistence layer. All repositories
// the services consume are implemented here over a single database file.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"bilancio/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row the caller addressed does not exist.
var ErrNotFound = errors.New("not found")

const dateLayout = "2006-01-02"

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// applies migrations.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func encodeDate(d core.Date) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func decodeDate(s string) (core.Date, error) {
	if s == "" {
		return core.Date{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return core.Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return core.Date{Time: t}, nil
}

func encodeThresholds(ts []int) string {
	if len(ts) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ts)
	return string(b)
}

func decodeThresholds(s string) []int {
	if s == "" {
		return nil
	}
	var ts []int
	if err := json.Unmarshal([]byte(s), &ts); err != nil {
		slog.Warn("Ignoring malformed thresholds column", "value", s, "error", err)
		return nil
	}
	return ts
}

// Recurrence rules

func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.RecurrenceRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recurrence_rules (
			id, type, amount_cents, category_id, payment_method_id,
			income_source_id, frequency, day_of_month, day_of_week,
			start_date, end_date, is_active, execution_mode, description,
			next_execution_date, last_materialized_period
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, string(rule.Type), rule.Amount.Cents, rule.CategoryID,
		rule.PaymentMethodID, rule.IncomeSourceID, string(rule.Frequency),
		rule.DayOfMonth, rule.DayOfWeek, encodeDate(rule.StartDate),
		encodeDate(rule.EndDate), rule.IsActive, string(rule.ExecutionMode),
		rule.Description, encodeDate(rule.NextExecutionDate),
		rule.LastMaterializedPeriod)
	if err != nil {
		return fmt.Errorf("insert recurrence rule: %w", err)
	}

	slog.InfoContext(ctx, "Recurrence rule saved",
		"rule_id", rule.ID,
		"frequency", rule.Frequency,
		"execution_mode", rule.ExecutionMode)
	return nil
}

func (r *SQLiteRepository) GetRule(ctx context.Context, ruleID string) (core.RecurrenceRule, error) {
	row := r.db.QueryRowContext(ctx, ruleSelect+" WHERE id = ?", ruleID)
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurrenceRule{}, fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return rule, err
}

func (r *SQLiteRepository) ListActiveRules(ctx context.Context) ([]core.RecurrenceRule, error) {
	rows, err := r.db.QueryContext(ctx, ruleSelect+" WHERE is_active = 1 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query active rules: %w", err)
	}
	defer rows.Close()

	var rules []core.RecurrenceRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *SQLiteRepository) UpdateRuleSchedule(ctx context.Context, ruleID string, next core.Date, lastPeriod string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE recurrence_rules
		SET next_execution_date = ?, last_materialized_period = ?
		WHERE id = ?`,
		encodeDate(next), lastPeriod, ruleID)
	if err != nil {
		return fmt.Errorf("update rule schedule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) DeactivateRule(ctx context.Context, ruleID string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE recurrence_rules SET is_active = 0 WHERE id = ?", ruleID)
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s: %w", ruleID, ErrNotFound)
	}
	return nil
}

const ruleSelect = `
	SELECT id, type, amount_cents, category_id, payment_method_id,
	       income_source_id, frequency, day_of_month, day_of_week,
	       start_date, end_date, is_active, execution_mode, description,
	       next_execution_date, last_materialized_period
	FROM recurrence_rules`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (core.RecurrenceRule, error) {
	var (
		rule                      core.RecurrenceRule
		typ, freq, mode           string
		startRaw, endRaw, nextRaw string
	)
	err := row.Scan(&rule.ID, &typ, &rule.Amount.Cents, &rule.CategoryID,
		&rule.PaymentMethodID, &rule.IncomeSourceID, &freq, &rule.DayOfMonth,
		&rule.DayOfWeek, &startRaw, &endRaw, &rule.IsActive, &mode,
		&rule.Description, &nextRaw, &rule.LastMaterializedPeriod)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rule, err
		}
		return rule, fmt.Errorf("scan rule: %w", err)
	}

	rule.Type = core.FlowType(typ)
	rule.Frequency = core.Frequency(freq)
	rule.ExecutionMode = core.ExecutionMode(mode)
	if rule.StartDate, err = decodeDate(startRaw); err != nil {
		return rule, err
	}
	if rule.EndDate, err = decodeDate(endRaw); err != nil {
		return rule, err
	}
	if rule.NextExecutionDate, err = decodeDate(nextRaw); err != nil {
		return rule, err
	}
	return rule, nil
}

// Transactions

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, type, amount_cents, category_id, payment_method_id,
			date, description, rule_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Type), t.Amount.Cents, t.CategoryID, t.PaymentMethodID,
		encodeDate(t.Date), t.Description, t.RuleID,
		t.CreatedAt.UTC().Format(time.RFC3339), t.UpdatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.DayKey(),
		"rule_id", t.RuleID)
	return t, nil
}

func (r *SQLiteRepository) ListTransactionsByMonth(ctx context.Context, monthKey string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, amount_cents, category_id, payment_method_id,
		       date, description, rule_id, created_at, updated_at
		FROM transactions
		WHERE substr(date, 1, 7) = ?
		ORDER BY date, created_at`, monthKey)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var typ, dateRaw, createdRaw, updatedRaw string
		if err := rows.Scan(&t.ID, &typ, &t.Amount.Cents, &t.CategoryID,
			&t.PaymentMethodID, &dateRaw, &t.Description, &t.RuleID,
			&createdRaw, &updatedRaw); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = core.FlowType(typ)
		if t.Date, err = decodeDate(dateRaw); err != nil {
			return nil, err
		}
		t.CreatedAt, _ = time.Parse(time.RFC3339, createdRaw)
		t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedRaw)
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (r *SQLiteRepository) MonthTotalExpense(ctx context.Context, monthKey string) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE type = 'expense' AND substr(date, 1, 7) = ?`, monthKey).Scan(&cents)
	if err != nil {
		return core.Money{}, fmt.Errorf("month total expense: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

func (r *SQLiteRepository) CategorySpend(ctx context.Context, monthKey string) (map[string]core.Money, error) {
	return r.spendBy(ctx, "category_id", monthKey)
}

func (r *SQLiteRepository) MethodSpend(ctx context.Context, monthKey string) (map[string]core.Money, error) {
	return r.spendBy(ctx, "payment_method_id", monthKey)
}

func (r *SQLiteRepository) spendBy(ctx context.Context, column, monthKey string) (map[string]core.Money, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, COALESCE(SUM(amount_cents), 0)
		FROM transactions
		WHERE type = 'expense' AND substr(date, 1, 7) = ? AND %s != ''
		GROUP BY %s`, column, column, column), monthKey)
	if err != nil {
		return nil, fmt.Errorf("spend by %s: %w", column, err)
	}
	defer rows.Close()

	out := make(map[string]core.Money)
	for rows.Next() {
		var id string
		var cents int64
		if err := rows.Scan(&id, &cents); err != nil {
			return nil, fmt.Errorf("scan spend row: %w", err)
		}
		out[id] = core.Money{Cents: cents}
	}
	return out, rows.Err()
}

// Budgets

func (r *SQLiteRepository) MonthlyBudget(ctx context.Context) (core.Money, error) {
	var cents int64
	err := r.db.QueryRowContext(ctx,
		"SELECT monthly_budget_cents FROM budget WHERE id = 1").Scan(&cents)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Money{}, nil
	}
	if err != nil {
		return core.Money{}, fmt.Errorf("monthly budget: %w", err)
	}
	return core.Money{Cents: cents}, nil
}

func (r *SQLiteRepository) SetMonthlyBudget(ctx context.Context, budget core.Money) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget (id, monthly_budget_cents) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET monthly_budget_cents = excluded.monthly_budget_cents`,
		budget.Cents)
	if err != nil {
		return fmt.Errorf("set monthly budget: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Categories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, budget_cents FROM categories ORDER BY position, name")
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var cats []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Budget.Cents); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (r *SQLiteRepository) UpsertCategory(ctx context.Context, c core.Category) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, budget_cents) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, budget_cents = excluded.budget_cents`,
		c.ID, c.Name, c.Budget.Cents)
	if err != nil {
		return fmt.Errorf("upsert category: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) PaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, budget_cents FROM payment_methods ORDER BY position, name")
	if err != nil {
		return nil, fmt.Errorf("query payment methods: %w", err)
	}
	defer rows.Close()

	var methods []core.PaymentMethod
	for rows.Next() {
		var m core.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Name, &m.Budget.Cents); err != nil {
			return nil, fmt.Errorf("scan payment method: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func (r *SQLiteRepository) UpsertPaymentMethod(ctx context.Context, m core.PaymentMethod) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_methods (id, name, budget_cents) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, budget_cents = excluded.budget_cents`,
		m.ID, m.Name, m.Budget.Cents)
	if err != nil {
		return fmt.Errorf("upsert payment method: %w", err)
	}
	return nil
}

// Alert settings and per-scope states. The settings row is created lazily
// with defaults on first read.

const (
	scopeBudget    = "budget"
	scopeCategory  = "category"
	scopeMethod    = "method"
	scopeRecurring = "recurring"
)

func (r *SQLiteRepository) GetSettings(ctx context.Context) (core.Settings, error) {
	settings := core.DefaultSettings()

	var thresholdsRaw string
	err := r.db.QueryRowContext(ctx, `
		SELECT budget_alert_enabled, budget_alert_thresholds,
		       category_alert_enabled, recurring_alert_enabled,
		       recurring_alert_days, method_alert_enabled
		FROM alert_settings WHERE id = 1`).Scan(
		&settings.BudgetAlertEnabled, &thresholdsRaw,
		&settings.CategoryAlertEnabled, &settings.RecurringAlertEnabled,
		&settings.RecurringAlertDays, &settings.MethodAlertEnabled)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Keep defaults.
	case err != nil:
		return settings, fmt.Errorf("query alert settings: %w", err)
	default:
		if ts := decodeThresholds(thresholdsRaw); len(ts) > 0 {
			settings.BudgetAlertThresholds = ts
		}
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT scope, entity_id, enabled, thresholds, last_alerted_threshold,
		       last_alerted_period_key, last_alerted_date, days_before
		FROM alert_states`)
	if err != nil {
		return settings, fmt.Errorf("query alert states: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			scope, entityID, thrRaw string
			state                   core.AlertThresholdState
			daysBefore              int
		)
		if err := rows.Scan(&scope, &entityID, &state.Enabled, &thrRaw,
			&state.LastAlertedThreshold, &state.LastAlertedPeriodKey,
			&state.LastAlertedDate, &daysBefore); err != nil {
			return settings, fmt.Errorf("scan alert state: %w", err)
		}
		state.Thresholds = decodeThresholds(thrRaw)

		switch scope {
		case scopeBudget:
			settings.BudgetAlertState = state
		case scopeCategory:
			settings.CategoryAlertSettings[entityID] = state
		case scopeMethod:
			settings.MethodAlertSettings[entityID] = state
		case scopeRecurring:
			settings.RecurringAlertSettings[entityID] = core.RecurringAlertState{
				Enabled:         state.Enabled,
				DaysBefore:      daysBefore,
				LastAlertedDate: state.LastAlertedDate,
			}
		default:
			slog.Warn("Ignoring alert state with unknown scope", "scope", scope)
		}
	}
	return settings, rows.Err()
}

func (r *SQLiteRepository) SaveSettings(ctx context.Context, s core.Settings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_settings (
			id, budget_alert_enabled, budget_alert_thresholds,
			category_alert_enabled, recurring_alert_enabled,
			recurring_alert_days, method_alert_enabled
		) VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			budget_alert_enabled = excluded.budget_alert_enabled,
			budget_alert_thresholds = excluded.budget_alert_thresholds,
			category_alert_enabled = excluded.category_alert_enabled,
			recurring_alert_enabled = excluded.recurring_alert_enabled,
			recurring_alert_days = excluded.recurring_alert_days,
			method_alert_enabled = excluded.method_alert_enabled`,
		s.BudgetAlertEnabled, encodeThresholds(s.BudgetAlertThresholds),
		s.CategoryAlertEnabled, s.RecurringAlertEnabled,
		s.RecurringAlertDays, s.MethodAlertEnabled)
	if err != nil {
		return fmt.Errorf("save alert settings: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) SaveBudgetAlertState(ctx context.Context, state core.AlertThresholdState) error {
	return r.saveThresholdState(ctx, scopeBudget, "", state)
}

func (r *SQLiteRepository) SaveCategoryAlertState(ctx context.Context, categoryID string, state core.AlertThresholdState) error {
	return r.saveThresholdState(ctx, scopeCategory, categoryID, state)
}

func (r *SQLiteRepository) SaveMethodAlertState(ctx context.Context, methodID string, state core.AlertThresholdState) error {
	return r.saveThresholdState(ctx, scopeMethod, methodID, state)
}

func (r *SQLiteRepository) saveThresholdState(ctx context.Context, scope, entityID string, state core.AlertThresholdState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_states (
			scope, entity_id, enabled, thresholds, last_alerted_threshold,
			last_alerted_period_key, last_alerted_date
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, entity_id) DO UPDATE SET
			enabled = excluded.enabled,
			thresholds = excluded.thresholds,
			last_alerted_threshold = excluded.last_alerted_threshold,
			last_alerted_period_key = excluded.last_alerted_period_key,
			last_alerted_date = excluded.last_alerted_date`,
		scope, entityID, state.Enabled, encodeThresholds(state.Thresholds),
		state.LastAlertedThreshold, state.LastAlertedPeriodKey,
		state.LastAlertedDate)
	if err != nil {
		return fmt.Errorf("save %s alert state: %w", scope, err)
	}
	return nil
}

func (r *SQLiteRepository) SaveRecurringAlertState(ctx context.Context, ruleID string, state core.RecurringAlertState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_states (
			scope, entity_id, enabled, last_alerted_date, days_before
		) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(scope, entity_id) DO UPDATE SET
			enabled = excluded.enabled,
			last_alerted_date = excluded.last_alerted_date,
			days_before = excluded.days_before`,
		scopeRecurring, ruleID, state.Enabled, state.LastAlertedDate,
		state.DaysBefore)
	if err != nil {
		return fmt.Errorf("save recurring alert state: %w", err)
	}
	return nil
}
