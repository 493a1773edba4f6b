// Package domain contains the billable visit model and the
// reconciliation contract. A billable visit is the priced,
// status-tracked derivative of exactly one logged care visit.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
)

// BillableVisitStatus is the reconciliation state of a billable visit.
type BillableVisitStatus string

const (
	StatusPending  BillableVisitStatus = "PENDING"
	StatusApproved BillableVisitStatus = "APPROVED"
	StatusDisputed BillableVisitStatus = "DISPUTED"
	StatusInvoiced BillableVisitStatus = "INVOICED"
	StatusVoid     BillableVisitStatus = "VOID"
)

// BillableVisit is generated from a care visit with its pricing
// captured by value. CareVisitKey mirrors CareVisitID while the row is
// non-VOID and is cleared on void; its unique index is what guarantees
// at most one live billable visit per care visit, even under
// concurrent generation runs.
type BillableVisit struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	CareVisitID   snowflake.ID  `gorm:"not null;index" json:"care_visit_id"`
	CareVisitKey  *snowflake.ID `gorm:"uniqueIndex:ux_billable_visits_care_visit_live" json:"-"`
	FunderID      snowflake.ID  `gorm:"not null;index" json:"funder_id"`
	ServiceUserID snowflake.ID  `gorm:"not null;index" json:"service_user_id"`
	CarePackageID snowflake.ID  `gorm:"not null;index" json:"care_package_id"`

	VisitDate       time.Time              `gorm:"not null;index" json:"visit_date"`
	DayType         calendardomain.DayType `gorm:"type:text;not null" json:"day_type"`
	BillingStart    time.Time              `gorm:"not null" json:"billing_start"`
	BillingEnd      time.Time              `gorm:"not null" json:"billing_end"`
	DurationMinutes int                    `gorm:"not null" json:"duration_minutes"`

	RateLineID  snowflake.ID `gorm:"not null" json:"rate_line_id"`
	RatePerHour int64        `gorm:"not null" json:"rate_per_hour"`

	CareTotal    int64 `gorm:"not null" json:"care_total"`
	MileageTotal int64 `gorm:"not null" json:"mileage_total"`
	VisitTotal   int64 `gorm:"not null" json:"visit_total"`

	Status         BillableVisitStatus `gorm:"type:text;not null;default:'PENDING';index" json:"status"`
	OverrideReason *string             `gorm:"type:text" json:"override_reason,omitempty"`
	DisputeReason  *string             `gorm:"type:text" json:"dispute_reason,omitempty"`
	InvoiceLineID  *snowflake.ID       `gorm:"index" json:"invoice_line_id,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (BillableVisit) TableName() string { return "billable_visits" }

// Overridden reports whether the visit total was manually overridden.
// When it is, CareTotal and MileageTotal keep the originally computed
// components for audit.
func (v BillableVisit) Overridden() bool {
	return v.OverrideReason != nil
}

// GenerationRun records the outcome of one generate() call.
type GenerationRun struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	RunID       string            `gorm:"type:text;not null;uniqueIndex" json:"run_id"`
	FunderID    snowflake.ID      `gorm:"not null;index" json:"funder_id"`
	PeriodStart time.Time         `gorm:"not null" json:"period_start"`
	PeriodEnd   time.Time         `gorm:"not null" json:"period_end"`
	Generated   int               `gorm:"not null" json:"generated"`
	Eligible    int               `gorm:"not null" json:"eligible"`
	IssueCount  int               `gorm:"not null" json:"issue_count"`
	Issues      datatypes.JSONMap `gorm:"type:jsonb" json:"issues,omitempty"`
	CreatedAt   time.Time         `gorm:"not null" json:"created_at"`
}

func (GenerationRun) TableName() string { return "generation_runs" }
