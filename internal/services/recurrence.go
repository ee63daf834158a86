// Package services provides business logic and orchestration services.
//
// This file implements the Strategy Pattern for occurrence date calculation.
// Each frequency type has its own calculator that encapsulates the calendar
// arithmetic, including end-of-month and leap-year clamping.

package services

import (
	"errors"
	"fmt"

	"bilancio/internal/core"
)

// ErrRuleExhausted is returned when the next computed occurrence falls past
// the rule's end date. Callers must deactivate the rule.
var ErrRuleExhausted = errors.New("recurrence rule exhausted")

// OccurrenceCalculator is the strategy interface for one frequency type.
// Both methods are pure; d is never before the rule's start date.
type OccurrenceCalculator interface {
	// FirstOnOrAfter returns the first occurrence of the rule on or after d.
	FirstOnOrAfter(rule core.RecurrenceRule, d core.Date) core.Date

	// Next returns the occurrence the rule produces when evaluated at asOf.
	// Frequencies differ on whether asOf itself can be returned: a monthly
	// rule evaluated on its own day of month is due that day, while a weekly
	// rule evaluated on its weekday advances one full cycle.
	Next(rule core.RecurrenceRule, asOf core.Date) core.Date
}

// DailyCalculator produces an occurrence every calendar day.
type DailyCalculator struct{}

func (DailyCalculator) FirstOnOrAfter(_ core.RecurrenceRule, d core.Date) core.Date {
	return d
}

func (DailyCalculator) Next(_ core.RecurrenceRule, asOf core.Date) core.Date {
	return asOf.AddDays(1)
}

// WeekCycleCalculator covers weekly and biweekly rules: occurrences fall on
// the rule's day of week, stepping by cycleDays, anchored to the first match
// on or after the start date so biweekly rules keep their week parity.
type WeekCycleCalculator struct {
	cycleDays int
}

func (c WeekCycleCalculator) anchor(rule core.RecurrenceRule) core.Date {
	offset := (rule.DayOfWeek - int(rule.StartDate.Weekday()) + 7) % 7
	return rule.StartDate.AddDays(offset)
}

func (c WeekCycleCalculator) FirstOnOrAfter(rule core.RecurrenceRule, d core.Date) core.Date {
	anchor := c.anchor(rule)
	if !d.After(anchor) {
		return anchor
	}
	days := int(d.Time.Sub(anchor.Time).Hours() / 24)
	cycles := days / c.cycleDays
	candidate := anchor.AddDays(cycles * c.cycleDays)
	if candidate.Before(d) {
		candidate = candidate.AddDays(c.cycleDays)
	}
	return candidate
}

func (c WeekCycleCalculator) Next(rule core.RecurrenceRule, asOf core.Date) core.Date {
	candidate := c.FirstOnOrAfter(rule, asOf)
	// Evaluating on the occurrence day itself means that day already had its
	// chance; advance one full cycle.
	if candidate.Equal(asOf) {
		candidate = candidate.AddDays(c.cycleDays)
	}
	return candidate
}

// MonthlyCalculator targets the rule's day of month, clamped to the last
// valid day of shorter months (day 31 in February becomes the 28th or 29th).
type MonthlyCalculator struct{}

func (MonthlyCalculator) targetIn(rule core.RecurrenceRule, year, month int) core.Date {
	day := rule.DayOfMonth
	last := core.NewDate(year, month, 1).DaysInMonth()
	if day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

func (m MonthlyCalculator) FirstOnOrAfter(rule core.RecurrenceRule, d core.Date) core.Date {
	if d.Day() <= rule.DayOfMonth {
		return m.targetIn(rule, d.Year(), d.Month())
	}
	next := d.StartOfMonth().Time.AddDate(0, 1, 0)
	return m.targetIn(rule, next.Year(), int(next.Month()))
}

func (m MonthlyCalculator) Next(rule core.RecurrenceRule, asOf core.Date) core.Date {
	return m.FirstOnOrAfter(rule, asOf)
}

// YearlyCalculator repeats the start date's month and day once a year,
// clamping February 29th to the 28th outside leap years.
type YearlyCalculator struct{}

func (YearlyCalculator) targetIn(rule core.RecurrenceRule, year int) core.Date {
	month := rule.StartDate.Month()
	day := rule.StartDate.Day()
	last := core.NewDate(year, month, 1).DaysInMonth()
	if day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

func (y YearlyCalculator) FirstOnOrAfter(rule core.RecurrenceRule, d core.Date) core.Date {
	candidate := y.targetIn(rule, d.Year())
	for candidate.Before(d) {
		candidate = y.targetIn(rule, candidate.Year()+1)
	}
	return candidate
}

func (y YearlyCalculator) Next(rule core.RecurrenceRule, asOf core.Date) core.Date {
	return y.FirstOnOrAfter(rule, asOf)
}

// occurrenceStrategies maps frequencies to their calculators.
var occurrenceStrategies = map[core.Frequency]OccurrenceCalculator{
	core.Daily:    DailyCalculator{},
	core.Weekly:   WeekCycleCalculator{cycleDays: 7},
	core.Biweekly: WeekCycleCalculator{cycleDays: 14},
	core.Monthly:  MonthlyCalculator{},
	core.Yearly:   YearlyCalculator{},
}

// GetOccurrenceCalculator returns the calculator for a frequency.
func GetOccurrenceCalculator(frequency core.Frequency) (OccurrenceCalculator, error) {
	calc, ok := occurrenceStrategies[frequency]
	if !ok {
		return nil, fmt.Errorf("unknown frequency: %s", frequency)
	}
	return calc, nil
}

// NextOccurrence computes the rule's next occurrence as seen from asOf.
// Before the start date it returns the first occurrence; past the end date it
// returns ErrRuleExhausted.
func NextOccurrence(rule core.RecurrenceRule, asOf core.Date) (core.Date, error) {
	calc, err := GetOccurrenceCalculator(rule.Frequency)
	if err != nil {
		return core.Date{}, err
	}

	var next core.Date
	if asOf.Before(rule.StartDate) {
		next = calc.FirstOnOrAfter(rule, rule.StartDate)
	} else {
		next = calc.Next(rule, asOf)
	}

	if !rule.EndDate.IsZero() && next.After(rule.EndDate) {
		return core.Date{}, ErrRuleExhausted
	}
	return next, nil
}

// NextOccurrenceAfter computes the first occurrence strictly after d. The
// scheduler advances rule state with this after each materialization so that
// no occurrence is computed from wall-clock time and none can be skipped.
func NextOccurrenceAfter(rule core.RecurrenceRule, d core.Date) (core.Date, error) {
	calc, err := GetOccurrenceCalculator(rule.Frequency)
	if err != nil {
		return core.Date{}, err
	}

	from := d.AddDays(1)
	if from.Before(rule.StartDate) {
		from = rule.StartDate
	}
	next := calc.FirstOnOrAfter(rule, from)

	if !rule.EndDate.IsZero() && next.After(rule.EndDate) {
		return core.Date{}, ErrRuleExhausted
	}
	return next, nil
}
