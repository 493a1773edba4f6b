// Package domain defines the rate resolution contract: one visit in,
// exactly one priced rate line out, or a typed failure.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
)

// ResolveRequest identifies the visit being priced.
type ResolveRequest struct {
	FunderID    snowflake.ID
	VisitDate   time.Time
	StartMinute int // minutes from midnight of the billing window start
	Carers      int
}

// ResolvedRate is the selected pricing for a visit, captured by value
// at generation time.
type ResolvedRate struct {
	RateCardID  snowflake.ID
	RateLineID  snowflake.ID
	DayType     calendardomain.DayType
	RatePerHour int64 // pence
	RatePerMile int64 // pence, zero when the card has no mileage rate
}

type Service interface {
	Resolve(ctx context.Context, req ResolveRequest) (ResolvedRate, error)
}

var (
	ErrNoActiveRateCard = errors.New("no_active_rate_card")
	ErrNoMatchingLine   = errors.New("no_matching_rate_line")
	// ErrAmbiguousLines is a data-quality error in the rate card:
	// two or more lines tie for the same day type, band and carer
	// count, and picking one arbitrarily would be a billing bug.
	ErrAmbiguousLines = errors.New("ambiguous_rate_lines")
)
