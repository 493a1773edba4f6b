// Package domain contains funder configuration and rate card models.
// These are read-only collaborator data from the billing engine's
// perspective: rate card edits never retroactively change totals that
// were captured by value on generated billable visits.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
)

// BillingBasis selects which visit timestamps drive billing.
type BillingBasis string

const (
	BillingBasisScheduled BillingBasis = "SCHEDULED"
	BillingBasisActual    BillingBasis = "ACTUAL"
)

// InvoiceFrequency is how often a funder expects invoices.
type InvoiceFrequency string

const (
	InvoiceFrequencyWeekly      InvoiceFrequency = "WEEKLY"
	InvoiceFrequencyFortnightly InvoiceFrequency = "FORTNIGHTLY"
	InvoiceFrequencyMonthly     InvoiceFrequency = "MONTHLY"
)

// Funder is the paying body for a client's care.
type Funder struct {
	ID               snowflake.ID     `gorm:"primaryKey" json:"id"`
	Name             string           `gorm:"type:text;not null" json:"name"`
	PaymentTermsDays int              `gorm:"not null;default:30" json:"payment_terms_days"`
	InvoiceFrequency InvoiceFrequency `gorm:"type:text;not null;default:'MONTHLY'" json:"invoice_frequency"`
	BillingBasis     BillingBasis     `gorm:"type:text;not null;default:'SCHEDULED'" json:"billing_basis"`
	Active           bool             `gorm:"not null;default:true" json:"active"`
	CreatedAt        time.Time        `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"not null" json:"updated_at"`
}

func (Funder) TableName() string { return "funders" }

// RateCard is a versioned price sheet. A nil FunderID marks a template
// card not yet assigned to a funder.
type RateCard struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	FunderID      *snowflake.ID `gorm:"index" json:"funder_id,omitempty"`
	Name          string        `gorm:"type:text;not null" json:"name"`
	EffectiveFrom time.Time     `gorm:"not null" json:"effective_from"`
	Active        bool          `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"not null" json:"updated_at"`

	Lines       []RateLine   `gorm:"foreignKey:RateCardID" json:"lines,omitempty"`
	MileageRate *MileageRate `gorm:"foreignKey:RateCardID" json:"mileage_rate,omitempty"`
}

func (RateCard) TableName() string { return "rate_cards" }

// RateLine is one pricing rule on a rate card. Band times are stored
// as "HH:MM"; nil means the line covers the whole day and matches any
// start time at the lowest priority.
type RateLine struct {
	ID             snowflake.ID           `gorm:"primaryKey" json:"id"`
	RateCardID     snowflake.ID           `gorm:"not null;index" json:"rate_card_id"`
	DayType        calendardomain.DayType `gorm:"type:text;not null" json:"day_type"`
	BandStart      *string                `gorm:"type:text" json:"band_start,omitempty"`
	BandEnd        *string                `gorm:"type:text" json:"band_end,omitempty"`
	RatePerHour    int64                  `gorm:"not null" json:"rate_per_hour"`
	CarersRequired int                    `gorm:"not null;default:1" json:"carers_required"`
	Description    string                 `gorm:"type:text" json:"description"`
	CreatedAt      time.Time              `gorm:"not null" json:"created_at"`
}

func (RateLine) TableName() string { return "rate_lines" }

// MileageRate is the optional per-mile rate on a rate card.
type MileageRate struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	RateCardID  snowflake.ID `gorm:"not null;uniqueIndex" json:"rate_card_id"`
	RatePerMile int64        `gorm:"not null" json:"rate_per_mile"`
	Description string       `gorm:"type:text" json:"description"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (MileageRate) TableName() string { return "mileage_rates" }
