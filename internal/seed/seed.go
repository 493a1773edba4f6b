// Package seed bootstraps baseline data so the engine is usable
// against a fresh database: the invoice number sequence and the
// bank-holiday calendar for the configured region.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
	"github.com/carebridge/billing/internal/config"
	funderdomain "github.com/carebridge/billing/internal/funder/domain"
	invoicedomain "github.com/carebridge/billing/internal/invoice/domain"
	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
	visitdomain "github.com/carebridge/billing/internal/visit/domain"
)

// AutoMigrate creates the schema via gorm for non-postgres databases
// (local development and tests); postgres uses versioned SQL.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&funderdomain.Funder{},
		&funderdomain.RateCard{},
		&funderdomain.RateLine{},
		&funderdomain.MileageRate{},
		&visitdomain.ServiceUser{},
		&visitdomain.CarePackage{},
		&visitdomain.CareVisit{},
		&recdomain.BillableVisit{},
		&recdomain.GenerationRun{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceLine{},
		&invoicedomain.InvoicePayment{},
		&invoicedomain.InvoiceSequence{},
		&calendardomain.BankHoliday{},
		&calendardomain.HolidayCalendar{},
	)
}

// EnsureBaseline seeds the invoice sequence row and the holiday
// calendar for the configured region.
func EnsureBaseline(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureInvoiceSequence(tx); err != nil {
			return err
		}
		return EnsureHolidayCalendar(tx, node, cfg.HolidayRegion)
	})
}

func ensureInvoiceSequence(tx *gorm.DB) error {
	var seq invoicedomain.InvoiceSequence
	err := tx.Where("id = ?", 1).First(&seq).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return tx.Create(&invoicedomain.InvoiceSequence{ID: 1, NextNumber: 0}).Error
}

// englandAndWales lists the published bank holidays we ship with.
// Further years and regions load through the calendar import API of
// the wider platform.
var englandAndWales = map[int][]struct {
	date string
	name string
}{
	2025: {
		{"2025-01-01", "New Year's Day"},
		{"2025-04-18", "Good Friday"},
		{"2025-04-21", "Easter Monday"},
		{"2025-05-05", "Early May bank holiday"},
		{"2025-05-26", "Spring bank holiday"},
		{"2025-08-25", "Summer bank holiday"},
		{"2025-12-25", "Christmas Day"},
		{"2025-12-26", "Boxing Day"},
	},
	2026: {
		{"2026-01-01", "New Year's Day"},
		{"2026-04-03", "Good Friday"},
		{"2026-04-06", "Easter Monday"},
		{"2026-05-04", "Early May bank holiday"},
		{"2026-05-25", "Spring bank holiday"},
		{"2026-08-31", "Summer bank holiday"},
		{"2026-12-25", "Christmas Day"},
		{"2026-12-28", "Boxing Day (substitute day)"},
	},
}

// EnsureHolidayCalendar loads the bundled holiday set for a region,
// one coverage row per year so classification can fail closed for
// years we do not know about.
func EnsureHolidayCalendar(tx *gorm.DB, node *snowflake.Node, region string) error {
	if region != "england-and-wales" {
		return nil
	}

	for year, holidays := range englandAndWales {
		var covered calendardomain.HolidayCalendar
		err := tx.Where("region = ? AND year = ?", region, year).First(&covered).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		now := time.Now().UTC()
		for _, holiday := range holidays {
			day, err := time.Parse("2006-01-02", holiday.date)
			if err != nil {
				return err
			}
			if err := tx.Create(&calendardomain.BankHoliday{
				ID:          node.Generate(),
				Region:      region,
				HolidayDate: day,
				Name:        holiday.name,
				CreatedAt:   now,
			}).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&calendardomain.HolidayCalendar{
			ID:        node.Generate(),
			Region:    region,
			Year:      year,
			CreatedAt: now,
		}).Error; err != nil {
			return err
		}
	}
	return nil
}
