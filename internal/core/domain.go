package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
	Yearly   Frequency = "yearly"
)

const (
	OnDate       ExecutionMode = "on_date"
	StartOfMonth ExecutionMode = "start_of_month"
)

const (
	Expense FlowType = "expense"
	Income  FlowType = "income"
)

type (
	Frequency string

	ExecutionMode string

	FlowType string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// RecurrenceRule is a template for repeating income or expense transactions.
	// NextExecutionDate caches the next due occurrence; the scheduler recomputes
	// it after every materialization so it never points into the past for an
	// active rule once a pass completes.
	RecurrenceRule struct {
		ID              string
		Type            FlowType
		Amount          Money
		CategoryID      string
		PaymentMethodID string // optional, expense rules only
		IncomeSourceID  string // optional, income rules only
		Frequency       Frequency
		DayOfMonth      int // 1-31, monthly rules only
		DayOfWeek       int // 0-6 Sunday-based, weekly/biweekly rules only
		StartDate       Date
		EndDate         Date // zero when open-ended, inclusive otherwise
		IsActive        bool
		ExecutionMode   ExecutionMode
		Description     string

		NextExecutionDate      Date
		LastMaterializedPeriod string // "2006-01" month key, start_of_month rules only
	}

	// Transaction is a persisted money movement, either entered by the user or
	// materialized from a recurrence rule (RuleID set).
	Transaction struct {
		ID              string
		Type            FlowType
		Amount          Money
		CategoryID      string
		PaymentMethodID string
		Date            Date
		Description     string
		RuleID          string
		CreatedAt       time.Time
		UpdatedAt       time.Time
	}

	// VirtualOccurrence is a computed future occurrence of a rule used for
	// previews. It is never persisted; a materialized occurrence becomes a
	// Transaction with a repository-assigned ID.
	VirtualOccurrence struct {
		RuleID     string
		Date       Date
		Amount     Money
		Type       FlowType
		CategoryID string
	}

	// Category is a spending category with an optional monthly budget.
	// A zero budget means the category is not tracked for alerts.
	Category struct {
		ID     string
		Name   string
		Budget Money
	}

	// PaymentMethod is a payment instrument with an optional monthly budget.
	PaymentMethod struct {
		ID     string
		Name   string
		Budget Money
	}
)

var (
	ErrInvalidDay        = errors.New("invalid day")
	ErrInvalidMonth      = errors.New("invalid month")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidFrequency  = errors.New("invalid frequency")
	ErrInvalidMode       = errors.New("invalid execution mode")
	ErrInvalidDayOfMonth = errors.New("day of month must be between 1 and 31")
	ErrInvalidDayOfWeek  = errors.New("day of week must be between 0 and 6")
	ErrEmptyCategory     = errors.New("empty category")
	ErrEmptyDescription  = errors.New("empty description")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// IsEmpty returns true if the date is zero (for optional dates such as EndDate)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

// AddDays returns the date shifted by the given number of calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// After reports whether d falls on a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time.After(other.Time)
}

// Before reports whether d falls on an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal reports whether two dates fall on the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Year() == other.Year() && d.Month() == other.Month() && d.Day() == other.Day()
}

// MonthKey returns the "YYYY-MM" period key used for monthly alert dedup.
func (d Date) MonthKey() string {
	return d.Format("2006-01")
}

// DayKey returns the "YYYY-MM-DD" key used for once-per-day alert dedup.
func (d Date) DayKey() string {
	return d.Format("2006-01-02")
}

// StartOfMonth returns the first day of the date's month.
func (d Date) StartOfMonth() Date {
	return NewDate(d.Year(), d.Month(), 1)
}

// DaysInMonth returns the number of days in the date's month.
func (d Date) DaysInMonth() int {
	return time.Date(d.Year(), d.Time.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (t FlowType) Validate() error {
	switch t {
	case Expense, Income:
		return nil
	default:
		return errors.New("invalid transaction type")
	}
}

func (r RecurrenceRule) Validate() error {
	if err := r.Type.Validate(); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if err := r.StartDate.Validate(); err != nil {
		return errors.New("invalid start date: " + err.Error())
	}
	if !r.EndDate.IsZero() {
		if err := r.EndDate.Validate(); err != nil {
			return errors.New("invalid end date: " + err.Error())
		}
		if r.EndDate.Before(r.StartDate) {
			return errors.New("end date must not be before start date")
		}
	}

	switch r.Frequency {
	case Daily, Yearly:
	case Weekly, Biweekly:
		if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
			return ErrInvalidDayOfWeek
		}
	case Monthly:
		if r.DayOfMonth < 1 || r.DayOfMonth > 31 {
			return ErrInvalidDayOfMonth
		}
	default:
		return ErrInvalidFrequency
	}

	switch r.ExecutionMode {
	case OnDate, StartOfMonth:
	default:
		return ErrInvalidMode
	}

	if len(r.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}

	return nil
}

func (t Transaction) Validate() error {
	if err := t.Type.Validate(); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	return nil
}
