// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusSent          InvoiceStatus = "SENT"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusVoid          InvoiceStatus = "VOID"
	InvoiceStatusWrittenOff    InvoiceStatus = "WRITTEN_OFF"
)

// Invoice is one billing document for a funder over a period. Totals
// are immutable once lines are attached; only status and payment
// fields move afterwards.
type Invoice struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	InvoiceNumber string            `gorm:"type:text;not null;uniqueIndex" json:"invoice_number"`
	FunderID      snowflake.ID      `gorm:"not null;index" json:"funder_id"`
	InvoiceDate   time.Time         `gorm:"not null" json:"invoice_date"`
	DueDate       time.Time         `gorm:"not null;index" json:"due_date"`
	PeriodStart   time.Time         `gorm:"not null" json:"period_start"`
	PeriodEnd     time.Time         `gorm:"not null" json:"period_end"`
	TotalAmount   int64             `gorm:"not null;default:0" json:"total_amount"`
	AmountPaid    int64             `gorm:"not null;default:0" json:"amount_paid"`
	Status        InvoiceStatus     `gorm:"type:text;not null;default:'DRAFT';index" json:"status"`
	SentAt        *time.Time        `gorm:"" json:"sent_at,omitempty"`
	PaidAt        *time.Time        `gorm:"" json:"paid_at,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"not null" json:"updated_at"`

	// EffectiveStatus derives OVERDUE against an explicit now at
	// read time; it is not stored.
	EffectiveStatus InvoiceStatus `gorm:"-" json:"effective_status,omitempty"`

	Lines []InvoiceLine `gorm:"foreignKey:InvoiceID" json:"lines,omitempty"`
}

func (Invoice) TableName() string { return "invoices" }

// Terminal reports whether the stored status can never move again.
func (i Invoice) Terminal() bool {
	switch i.Status {
	case InvoiceStatusPaid, InvoiceStatusVoid, InvoiceStatusWrittenOff:
		return true
	}
	return false
}

// Derive computes the effective status for a given now: a non-terminal
// sent invoice with an unpaid balance past its due date reads as
// OVERDUE regardless of what is stored.
func (i Invoice) Derive(now time.Time) InvoiceStatus {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusPartiallyPaid:
		if now.After(i.DueDate) && i.AmountPaid < i.TotalAmount {
			return InvoiceStatusOverdue
		}
	}
	return i.Status
}

// InvoiceLine aggregates the billable visits of one (service user,
// care package) pair on an invoice.
type InvoiceLine struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID       snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	ServiceUserID   snowflake.ID `gorm:"not null" json:"service_user_id"`
	CarePackageID   snowflake.ID `gorm:"not null" json:"care_package_id"`
	VisitCount      int          `gorm:"not null" json:"visit_count"`
	TotalMinutes    int          `gorm:"not null" json:"total_minutes"`
	CareSubtotal    int64        `gorm:"not null" json:"care_subtotal"`
	MileageSubtotal int64        `gorm:"not null" json:"mileage_subtotal"`
	LineTotal       int64        `gorm:"not null" json:"line_total"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

// InvoicePayment records one received payment against an invoice.
type InvoicePayment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	PaidDate  time.Time    `gorm:"not null" json:"paid_date"`
	Amount    int64        `gorm:"not null" json:"amount"`
	Reference string       `gorm:"type:text" json:"reference,omitempty"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (InvoicePayment) TableName() string { return "invoice_payments" }

// InvoiceSequence backs the monotonic invoice number. The single row
// is incremented inside the generation transaction, which serializes
// concurrent generators on the row write lock.
type InvoiceSequence struct {
	ID         int   `gorm:"primaryKey" json:"id"`
	NextNumber int64 `gorm:"not null;default:0" json:"next_number"`
}

func (InvoiceSequence) TableName() string { return "invoice_sequences" }
