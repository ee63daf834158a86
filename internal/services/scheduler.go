package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"bilancio/internal/core"
)

// Scheduler owns recurrence rule state: it projects future occurrences for
// previews and converts due occurrences into real transactions, advancing
// each rule's cached next occurrence as it goes. Dueness is decided purely
// from rule state, never from wall-clock bookkeeping, so repeated passes for
// the same day materialize nothing new.
type Scheduler struct {
	rules RuleRepository
	txns  *TransactionService
}

func NewScheduler(rules RuleRepository, txns *TransactionService) *Scheduler {
	return &Scheduler{
		rules: rules,
		txns:  txns,
	}
}

// ProjectOccurrences enumerates the occurrences of the given rules inside
// [rangeStart, rangeEnd], inclusive. Side-effect free; inactive rules are
// skipped and end dates respected. Rules in start-of-month mode yield a
// single occurrence per month, dated the first, like materialization does.
// Used for "upcoming" previews only.
func (s *Scheduler) ProjectOccurrences(rules []core.RecurrenceRule, rangeStart, rangeEnd core.Date) []core.VirtualOccurrence {
	var out []core.VirtualOccurrence
	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}

		from := rangeStart
		if from.Before(rule.StartDate) {
			from = rule.StartDate
		}

		occ, err := NextOccurrenceAfter(rule, from.AddDays(-1))
		lastMonth := ""
		for err == nil && !occ.After(rangeEnd) {
			date := occ
			if rule.ExecutionMode == core.StartOfMonth {
				// One lump per month, matching materialization.
				if occ.MonthKey() == lastMonth {
					occ, err = NextOccurrenceAfter(rule, occ)
					continue
				}
				lastMonth = occ.MonthKey()
				date = occ.StartOfMonth()
			}
			out = append(out, core.VirtualOccurrence{
				RuleID:     rule.ID,
				Date:       date,
				Amount:     rule.Amount,
				Type:       rule.Type,
				CategoryID: rule.CategoryID,
			})
			occ, err = NextOccurrenceAfter(rule, occ)
		}
	}
	return out
}

// MaterializeDue converts every due occurrence of every active rule into a
// persisted transaction, oldest first. A rule that fails is logged and
// skipped without advancing its state, so the next pass retries it; other
// rules are unaffected. Rules whose next occurrence would pass their end date
// are deactivated.
func (s *Scheduler) MaterializeDue(ctx context.Context, asOf core.Date) ([]core.Transaction, error) {
	rules, err := s.rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}

	slog.InfoContext(ctx, "Materializing due recurring transactions",
		"total_active", len(rules),
		"as_of", asOf.DayKey())

	var created []core.Transaction
	for _, rule := range rules {
		var txns []core.Transaction
		var ruleErr error

		switch rule.ExecutionMode {
		case core.StartOfMonth:
			txns, ruleErr = s.materializeStartOfMonth(ctx, rule, asOf)
		default:
			txns, ruleErr = s.materializeOnDate(ctx, rule, asOf)
		}

		// Occurrences persisted before a failure are real and must be
		// reported so alert evaluation sees them.
		created = append(created, txns...)
		if ruleErr != nil {
			slog.ErrorContext(ctx, "Failed to materialize recurring rule",
				"rule_id", rule.ID,
				"error", ruleErr)
			continue
		}
	}

	slog.InfoContext(ctx, "Recurring materialization complete",
		"created", len(created),
		"total_checked", len(rules))

	return created, nil
}

// materializeOnDate catches up every missed occurrence of an on_date rule.
// The next occurrence is always recomputed from the occurrence just
// materialized, not from asOf, so a host that was down for weeks still emits
// each missed occurrence with its historical date.
func (s *Scheduler) materializeOnDate(ctx context.Context, rule core.RecurrenceRule, asOf core.Date) ([]core.Transaction, error) {
	next := rule.NextExecutionDate
	if next.IsZero() {
		first, err := NextOccurrenceAfter(rule, rule.StartDate.AddDays(-1))
		if errors.Is(err, ErrRuleExhausted) {
			return nil, s.deactivate(ctx, rule)
		}
		if err != nil {
			return nil, err
		}
		next = first
	}

	if !rule.EndDate.IsZero() && next.After(rule.EndDate) {
		return nil, s.deactivate(ctx, rule)
	}

	persisted := rule.NextExecutionDate
	var created []core.Transaction
	for !next.After(asOf) {
		txn, err := s.materializeOccurrence(ctx, rule, next)
		if err != nil {
			// State was not advanced; the next pass retries this occurrence.
			return created, err
		}
		created = append(created, txn)

		following, ferr := NextOccurrenceAfter(rule, next)
		if ferr != nil && !errors.Is(ferr, ErrRuleExhausted) {
			return created, ferr
		}
		if errors.Is(ferr, ErrRuleExhausted) {
			// Park the schedule past the end date so a failed deactivation
			// retries without re-creating the final occurrence.
			following = rule.EndDate.AddDays(1)
		}

		// Advance the persisted schedule before attempting the next
		// occurrence. A failure further into the catch-up must not leave a
		// schedule that points at transactions already created.
		if err := s.rules.UpdateRuleSchedule(ctx, rule.ID, following, rule.LastMaterializedPeriod); err != nil {
			return created, fmt.Errorf("update rule schedule: %w", err)
		}
		persisted = following

		if errors.Is(ferr, ErrRuleExhausted) {
			return created, s.deactivate(ctx, rule)
		}
		next = following
	}

	if !next.Equal(persisted) {
		if err := s.rules.UpdateRuleSchedule(ctx, rule.ID, next, rule.LastMaterializedPeriod); err != nil {
			return created, fmt.Errorf("update rule schedule: %w", err)
		}
	}
	return created, nil
}

// materializeStartOfMonth emits one transaction per calendar month, dated the
// first of the month, guarded by the rule's last materialized period marker.
func (s *Scheduler) materializeStartOfMonth(ctx context.Context, rule core.RecurrenceRule, asOf core.Date) ([]core.Transaction, error) {
	if asOf.Day() != 1 {
		return nil, nil
	}
	if asOf.Before(rule.StartDate.StartOfMonth()) {
		return nil, nil
	}
	if !rule.EndDate.IsZero() && asOf.After(rule.EndDate) {
		return nil, s.deactivate(ctx, rule)
	}
	if rule.LastMaterializedPeriod == asOf.MonthKey() {
		return nil, nil
	}

	// The month must actually contain an occurrence.
	occ, err := NextOccurrenceAfter(rule, asOf.AddDays(-1))
	if errors.Is(err, ErrRuleExhausted) {
		return nil, s.deactivate(ctx, rule)
	}
	if err != nil {
		return nil, err
	}
	if occ.MonthKey() != asOf.MonthKey() {
		return nil, nil
	}

	next, nextErr := NextOccurrenceAfter(rule, occ)
	if nextErr != nil && !errors.Is(nextErr, ErrRuleExhausted) {
		return nil, nextErr
	}
	exhausted := errors.Is(nextErr, ErrRuleExhausted)
	if exhausted {
		next = rule.EndDate.AddDays(1)
	}

	txn, err := s.materializeOccurrence(ctx, rule, asOf)
	if err != nil {
		return nil, err
	}

	// The period marker is written immediately after the create, so a failed
	// write can only re-create within further passes on this same day.
	if err := s.rules.UpdateRuleSchedule(ctx, rule.ID, next, asOf.MonthKey()); err != nil {
		return []core.Transaction{txn}, fmt.Errorf("update rule schedule: %w", err)
	}

	if exhausted {
		if err := s.deactivate(ctx, rule); err != nil {
			return []core.Transaction{txn}, err
		}
	}
	return []core.Transaction{txn}, nil
}

func (s *Scheduler) materializeOccurrence(ctx context.Context, rule core.RecurrenceRule, date core.Date) (core.Transaction, error) {
	txn, err := s.txns.CreateTransaction(ctx, core.Transaction{
		Type:            rule.Type,
		Amount:          rule.Amount,
		CategoryID:      rule.CategoryID,
		PaymentMethodID: rule.PaymentMethodID,
		Date:            date,
		Description:     rule.Description,
		RuleID:          rule.ID,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("materialize occurrence on %s: %w", date.DayKey(), err)
	}

	slog.InfoContext(ctx, "Materialized recurring transaction",
		"rule_id", rule.ID,
		"transaction_id", txn.ID,
		"date", date.DayKey(),
		"amount_cents", txn.Amount.Cents,
		"frequency", rule.Frequency)

	return txn, nil
}

func (s *Scheduler) deactivate(ctx context.Context, rule core.RecurrenceRule) error {
	if err := s.rules.DeactivateRule(ctx, rule.ID); err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	slog.InfoContext(ctx, "Recurring rule exhausted, deactivated",
		"rule_id", rule.ID,
		"end_date", rule.EndDate.DayKey())
	return nil
}
