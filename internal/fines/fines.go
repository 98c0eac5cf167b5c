// Package fines derives overdue fines from calendar-day differences.
package fines

import (
	"fmt"
	"time"
)

const (
	// DefaultGraceDays is how long a borrower may keep a book before fines accrue.
	DefaultGraceDays = 7

	// DefaultRatePerDay is the fine (in currency units) per day beyond the grace period.
	DefaultRatePerDay = 10
)

// Policy holds the fine parameters. The zero value is not usable; use DefaultPolicy.
type Policy struct {
	GraceDays  int
	RatePerDay int
}

// DefaultPolicy returns the 7-day grace, 10-per-day policy.
func DefaultPolicy() Policy {
	return Policy{GraceDays: DefaultGraceDays, RatePerDay: DefaultRatePerDay}
}

// Validate rejects negative parameters.
func (p Policy) Validate() error {
	if p.GraceDays < 0 {
		return fmt.Errorf("fine grace days must be >= 0, got %d", p.GraceDays)
	}
	if p.RatePerDay < 0 {
		return fmt.Errorf("fine per day must be >= 0, got %d", p.RatePerDay)
	}
	return nil
}

// Date truncates t to its UTC calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween is the number of calendar days from `from` to `to`.
// It is negative when `to` is before `from`.
func DaysBetween(from, to time.Time) int {
	return int(Date(to).Sub(Date(from)).Hours() / 24)
}

// OverdueDays is the number of days past the grace period, never negative.
func (p Policy) OverdueDays(issueDate, evaluationDate time.Time) int {
	days := DaysBetween(issueDate, evaluationDate) - p.GraceDays
	if days < 0 {
		return 0
	}
	return days
}

// IsOverdue reports whether the loan has outlived the grace period.
func (p Policy) IsOverdue(issueDate, evaluationDate time.Time) bool {
	return DaysBetween(issueDate, evaluationDate) > p.GraceDays
}

// Calculate returns max(0, days - grace) * rate.
func (p Policy) Calculate(issueDate, evaluationDate time.Time) int {
	return p.OverdueDays(issueDate, evaluationDate) * p.RatePerDay
}

// Remark is the message stored on an overdue issue.
func Remark(overdueDays int) string {
	return fmt.Sprintf("Overdue by %d days", overdueDays)
}
