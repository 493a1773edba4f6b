package domain

import (
	"context"
	"errors"
	"time"
)

// Service classifies calendar dates into day types.
type Service interface {
	// Classify maps a date to its day type. Bank holidays take
	// precedence over the weekday/weekend split. It fails with
	// ErrCalendarUnavailable when no holiday calendar covers the
	// date's year, rather than silently assuming a weekday.
	Classify(ctx context.Context, date time.Time) (DayType, error)
}

var (
	ErrCalendarUnavailable = errors.New("holiday_calendar_unavailable")
)
