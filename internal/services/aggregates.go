package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bilancio/internal/cache"
	"bilancio/internal/core"
)

// ErrMissingAggregate signals that a scope has no budget configured, so there
// is nothing to measure spend against. The alert engine recovers from it by
// skipping the scope.
var ErrMissingAggregate = errors.New("missing aggregate")

type monthAggregates struct {
	budget     core.BudgetSnapshot
	hasBudget  bool
	categories []core.CategorySnapshot
	methods    []core.PaymentMethodSnapshot
}

// Aggregator computes the monthly percent-used snapshots the alert engine
// evaluates. Snapshots are cached per month key and invalidated whenever a
// transaction is written, so repeated evaluations in the same pass stay cheap
// while never observing stale spend.
type Aggregator struct {
	txns    TransactionRepository
	budgets BudgetRepository
	cache   *cache.LRUCache[monthAggregates]
}

// NewAggregator creates an aggregator over the given repositories.
func NewAggregator(txns TransactionRepository, budgets BudgetRepository) *Aggregator {
	return &Aggregator{
		txns:    txns,
		budgets: budgets,
		cache:   cache.NewLRUCache[monthAggregates](12, time.Minute),
	}
}

// Invalidate drops the cached snapshots for a month. Called after every
// transaction write.
func (a *Aggregator) Invalidate(monthKey string) {
	a.cache.Delete(monthKey)
}

// CleanExpired lets a cache.Manager sweep the snapshot cache.
func (a *Aggregator) CleanExpired() int {
	return a.cache.CleanExpired()
}

// BudgetSnapshot returns the global monthly aggregate for the month of asOf.
// Returns ErrMissingAggregate when no monthly budget is configured.
func (a *Aggregator) BudgetSnapshot(ctx context.Context, asOf core.Date) (core.BudgetSnapshot, error) {
	agg, err := a.load(ctx, asOf.MonthKey())
	if err != nil {
		return core.BudgetSnapshot{}, err
	}
	if !agg.hasBudget {
		return core.BudgetSnapshot{}, ErrMissingAggregate
	}
	return agg.budget, nil
}

// CategorySnapshots returns the per-category aggregates for the month of
// asOf, in the repository's category order. Categories without a budget are
// omitted.
func (a *Aggregator) CategorySnapshots(ctx context.Context, asOf core.Date) ([]core.CategorySnapshot, error) {
	agg, err := a.load(ctx, asOf.MonthKey())
	if err != nil {
		return nil, err
	}
	return agg.categories, nil
}

// MethodSnapshots returns the per-payment-method aggregates for the month of
// asOf. Methods without a budget are omitted.
func (a *Aggregator) MethodSnapshots(ctx context.Context, asOf core.Date) ([]core.PaymentMethodSnapshot, error) {
	agg, err := a.load(ctx, asOf.MonthKey())
	if err != nil {
		return nil, err
	}
	return agg.methods, nil
}

func (a *Aggregator) load(ctx context.Context, monthKey string) (monthAggregates, error) {
	if agg, ok := a.cache.Get(monthKey); ok {
		return agg, nil
	}

	var agg monthAggregates

	total, err := a.txns.MonthTotalExpense(ctx, monthKey)
	if err != nil {
		return agg, fmt.Errorf("month total expense: %w", err)
	}

	monthlyBudget, err := a.budgets.MonthlyBudget(ctx)
	if err != nil {
		return agg, fmt.Errorf("monthly budget: %w", err)
	}
	if monthlyBudget.Cents > 0 {
		agg.hasBudget = true
		agg.budget = core.BudgetSnapshot{
			MonthlyBudget: monthlyBudget,
			TotalExpense:  total,
			PercentUsed:   core.PercentOf(total, monthlyBudget),
		}
	}

	categorySpend, err := a.txns.CategorySpend(ctx, monthKey)
	if err != nil {
		return agg, fmt.Errorf("category spend: %w", err)
	}
	categories, err := a.budgets.Categories(ctx)
	if err != nil {
		return agg, fmt.Errorf("categories: %w", err)
	}
	for _, c := range categories {
		if c.Budget.Cents <= 0 {
			continue
		}
		spent := categorySpend[c.ID]
		agg.categories = append(agg.categories, core.CategorySnapshot{
			CategoryID:   c.ID,
			Name:         c.Name,
			BudgetAmount: c.Budget,
			CurrentSpent: spent,
			PercentUsed:  core.PercentOf(spent, c.Budget),
		})
	}

	methodSpend, err := a.txns.MethodSpend(ctx, monthKey)
	if err != nil {
		return agg, fmt.Errorf("method spend: %w", err)
	}
	methods, err := a.budgets.PaymentMethods(ctx)
	if err != nil {
		return agg, fmt.Errorf("payment methods: %w", err)
	}
	for _, m := range methods {
		if m.Budget.Cents <= 0 {
			continue
		}
		spent := methodSpend[m.ID]
		agg.methods = append(agg.methods, core.PaymentMethodSnapshot{
			PaymentMethodID: m.ID,
			Name:            m.Name,
			BudgetAmount:    m.Budget,
			CurrentSpent:    spent,
			PercentUsed:     core.PercentOf(spent, m.Budget),
		})
	}

	a.cache.Set(monthKey, agg)
	return agg, nil
}
