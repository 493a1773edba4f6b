package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
	"github.com/carebridge/billing/pkg/db/pagination"
)

// GenerateRequest scopes a billable visit generation run.
type GenerateRequest struct {
	FunderID    snowflake.ID
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// GenerationIssue is a per-visit data-quality problem; it never aborts
// the batch.
type GenerationIssue struct {
	CareVisitID snowflake.ID `json:"care_visit_id"`
	Reason      string       `json:"reason"`
}

// GenerateReport summarizes a run: "generated N of M eligible visits,
// K skipped" without failing the batch on partial data problems.
type GenerateReport struct {
	RunID     string            `json:"run_id"`
	Generated int               `json:"generated"`
	Eligible  int               `json:"eligible"`
	Issues    []GenerationIssue `json:"issues"`
}

type ListRequest struct {
	pagination.Pagination

	PeriodStart time.Time
	PeriodEnd   time.Time
	FunderID    *snowflake.ID
	Status      *BillableVisitStatus
	DayType     *calendardomain.DayType
}

type ListResponse struct {
	pagination.PageInfo
	Visits []BillableVisit `json:"visits"`
}

type StatusBreakdown struct {
	Status BillableVisitStatus `json:"status"`
	Count  int64               `json:"count"`
	Amount int64               `json:"amount"`
}

type Summary struct {
	TotalVisits  int64             `json:"total_visits"`
	TotalMinutes int64             `json:"total_minutes"`
	TotalAmount  int64             `json:"total_amount"`
	ByStatus     []StatusBreakdown `json:"by_status"`
}

type SummaryRequest struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	FunderID    *snowflake.ID
}

type BulkApproveRequest struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	FunderID    *snowflake.ID
}

// Service is the reconciliation surface: generation plus the per-visit
// state machine.
type Service interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateReport, error)
	Approve(ctx context.Context, id snowflake.ID) (BillableVisit, error)
	BulkApprove(ctx context.Context, req BulkApproveRequest) (int64, error)
	Dispute(ctx context.Context, id snowflake.ID, reason string) (BillableVisit, error)
	Override(ctx context.Context, id snowflake.ID, amount int64, reason string) (BillableVisit, error)
	Void(ctx context.Context, id snowflake.ID) (BillableVisit, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	GetSummary(ctx context.Context, req SummaryRequest) (Summary, error)
}

var (
	ErrNotFound       = errors.New("billable_visit_not_found")
	ErrStateConflict  = errors.New("state_conflict")
	ErrReasonRequired = errors.New("reason_required")
	ErrInvalidPeriod  = errors.New("invalid_period")
	ErrInvalidAmount  = errors.New("invalid_amount")
)

// StateConflictError rejects a transition attempted from an invalid
// source state, surfacing the actual current status to the caller.
type StateConflictError struct {
	VisitID snowflake.ID
	Current BillableVisitStatus
	Action  string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s billable visit %d in status %s", e.Action, e.VisitID, e.Current)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// Generation issue reasons, attributable to a specific care visit.
const (
	IssueMissingActualTimes = "missing_actual_times"
	IssueNoActiveRateCard   = "no_active_rate_card"
	IssueNoMatchingLine     = "no_matching_rate_line"
	IssueAmbiguousLines     = "ambiguous_rate_lines"
	IssueCalendarMissing    = "holiday_calendar_unavailable"
	IssueInvalidWindow      = "invalid_billing_window"
)
