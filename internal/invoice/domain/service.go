package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
	"github.com/carebridge/billing/pkg/db/pagination"
)

type GenerateRequest struct {
	FunderID    snowflake.ID
	PeriodStart time.Time
	PeriodEnd   time.Time
}

type MarkPaidRequest struct {
	InvoiceID snowflake.ID
	PaidDate  time.Time
	Amount    int64
	Reference string
}

type ListRequest struct {
	pagination.Pagination

	FunderID *snowflake.ID
	Status   *InvoiceStatus
}

type ListResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

// InvoiceDetail is an invoice with its lines and the billable visits
// each line consumed.
type InvoiceDetail struct {
	Invoice Invoice                                    `json:"invoice"`
	Visits  map[snowflake.ID][]recdomain.BillableVisit `json:"-"`
}

type Service interface {
	// Generate aggregates the funder's APPROVED, not-yet-invoiced
	// billable visits in the period into a DRAFT invoice. The
	// invoice, its lines and the status flips of consumed visits
	// commit in one transaction or not at all.
	Generate(ctx context.Context, req GenerateRequest) (Invoice, error)

	Send(ctx context.Context, id snowflake.ID) (Invoice, error)
	MarkPaid(ctx context.Context, req MarkPaidRequest) (Invoice, error)
	// Void cancels the invoice and releases its consumed visits back
	// to APPROVED so their value can be re-invoiced; the approval
	// decision stands.
	Void(ctx context.Context, id snowflake.ID) (Invoice, error)
	WriteOff(ctx context.Context, id snowflake.ID) (Invoice, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
	GetByID(ctx context.Context, id snowflake.ID) (InvoiceDetail, error)
}

var (
	ErrNotFound         = errors.New("invoice_not_found")
	ErrStateConflict    = errors.New("invoice_state_conflict")
	ErrNoApprovedVisits = errors.New("no_approved_visits")
	ErrInvalidPeriod    = errors.New("invalid_period")
	ErrInvalidAmount    = errors.New("invalid_amount")
	// ErrVisitsContended signals that another writer touched the
	// visits selected for invoicing mid-transaction; the caller can
	// simply retry.
	ErrVisitsContended = errors.New("visits_contended")
)

// StateConflictError carries the invoice's actual status when a
// lifecycle action is attempted from an invalid state.
type StateConflictError struct {
	InvoiceID snowflake.ID
	Current   InvoiceStatus
	Action    string
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s invoice %d in status %s", e.Action, e.InvoiceID, e.Current)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }
