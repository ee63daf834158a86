// Package memory provides in-memory implementations of the service
// repositories. They back the test suites and small setups that do not
// need a database file.
package memory

import (
	"context"
	"fmt"
	"sync"

	"bilancio/internal/core"
)

// Store implements every repository port over plain maps guarded by one
// mutex. Zero value is not usable; call NewStore.
type Store struct {
	mu sync.Mutex

	rules        map[string]core.RecurrenceRule
	transactions []core.Transaction
	categories   []core.Category
	methods      []core.PaymentMethod
	budget       core.Money
	settings     core.Settings

	nextID int
}

func NewStore() *Store {
	return &Store{
		rules:    make(map[string]core.RecurrenceRule),
		settings: core.DefaultSettings(),
	}
}

// Seed helpers. These take the lock themselves so tests can interleave them
// with service calls.

func (s *Store) PutRule(rule core.RecurrenceRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
}

func (s *Store) Rule(id string) (core.RecurrenceRule, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	return r, ok
}

func (s *Store) PutTransaction(t core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions = append(s.transactions, t)
}

func (s *Store) Transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

func (s *Store) SetMonthlyBudget(m core.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budget = m
}

func (s *Store) SetCategories(cats ...core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append([]core.Category(nil), cats...)
}

func (s *Store) SetPaymentMethods(methods ...core.PaymentMethod) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.methods = append([]core.PaymentMethod(nil), methods...)
}

func (s *Store) SetSettings(settings core.Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
}

func (s *Store) Settings() core.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// RuleRepository

func (s *Store) ListActiveRules(ctx context.Context) ([]core.RecurrenceRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurrenceRule
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) UpdateRuleSchedule(ctx context.Context, ruleID string, next core.Date, lastPeriod string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("rule %s not found", ruleID)
	}
	r.NextExecutionDate = next
	r.LastMaterializedPeriod = lastPeriod
	s.rules[ruleID] = r
	return nil
}

func (s *Store) DeactivateRule(ctx context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return fmt.Errorf("rule %s not found", ruleID)
	}
	r.IsActive = false
	s.rules[ruleID] = r
	return nil
}

// TransactionRepository

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		s.nextID++
		t.ID = fmt.Sprintf("mem-%d", s.nextID)
	}
	s.transactions = append(s.transactions, t)
	return t, nil
}

func (s *Store) MonthTotalExpense(ctx context.Context, monthKey string) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total core.Money
	for _, t := range s.transactions {
		if t.Type == core.Expense && t.Date.MonthKey() == monthKey {
			total.Cents += t.Amount.Cents
		}
	}
	return total, nil
}

func (s *Store) CategorySpend(ctx context.Context, monthKey string) (map[string]core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]core.Money)
	for _, t := range s.transactions {
		if t.Type == core.Expense && t.Date.MonthKey() == monthKey {
			m := out[t.CategoryID]
			m.Cents += t.Amount.Cents
			out[t.CategoryID] = m
		}
	}
	return out, nil
}

func (s *Store) MethodSpend(ctx context.Context, monthKey string) (map[string]core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]core.Money)
	for _, t := range s.transactions {
		if t.Type == core.Expense && t.Date.MonthKey() == monthKey && t.PaymentMethodID != "" {
			m := out[t.PaymentMethodID]
			m.Cents += t.Amount.Cents
			out[t.PaymentMethodID] = m
		}
	}
	return out, nil
}

// BudgetRepository

func (s *Store) MonthlyBudget(ctx context.Context) (core.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.budget, nil
}

func (s *Store) Categories(ctx context.Context) ([]core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Category(nil), s.categories...), nil
}

func (s *Store) PaymentMethods(ctx context.Context) ([]core.PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.PaymentMethod(nil), s.methods...), nil
}

// SettingsRepository

func (s *Store) GetSettings(ctx context.Context) (core.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *Store) SaveBudgetAlertState(ctx context.Context, state core.AlertThresholdState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.BudgetAlertState = state
	return nil
}

func (s *Store) SaveCategoryAlertState(ctx context.Context, categoryID string, state core.AlertThresholdState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.CategoryAlertSettings == nil {
		s.settings.CategoryAlertSettings = make(map[string]core.AlertThresholdState)
	}
	s.settings.CategoryAlertSettings[categoryID] = state
	return nil
}

func (s *Store) SaveMethodAlertState(ctx context.Context, methodID string, state core.AlertThresholdState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.MethodAlertSettings == nil {
		s.settings.MethodAlertSettings = make(map[string]core.AlertThresholdState)
	}
	s.settings.MethodAlertSettings[methodID] = state
	return nil
}

func (s *Store) SaveRecurringAlertState(ctx context.Context, ruleID string, state core.RecurringAlertState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.RecurringAlertSettings == nil {
		s.settings.RecurringAlertSettings = make(map[string]core.RecurringAlertState)
	}
	s.settings.RecurringAlertSettings[ruleID] = state
	return nil
}
