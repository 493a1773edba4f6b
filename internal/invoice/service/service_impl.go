package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carebridge/billing/internal/clock"
	funderdomain "github.com/carebridge/billing/internal/funder/domain"
	invoicedomain "github.com/carebridge/billing/internal/invoice/domain"
	"github.com/carebridge/billing/internal/observability/metrics"
	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
	"github.com/carebridge/billing/pkg/db"
	"github.com/carebridge/billing/pkg/repository"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	obs   *metrics.Metrics

	funderRepo  repository.Repository[funderdomain.Funder]
	invoiceRepo repository.Repository[invoicedomain.Invoice]
	lineRepo    repository.Repository[invoicedomain.InvoiceLine]
	paymentRepo repository.Repository[invoicedomain.InvoicePayment]
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Obs   *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) invoicedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,
		obs:   p.Obs,

		funderRepo:  repository.ProvideStore[funderdomain.Funder](p.DB),
		invoiceRepo: repository.ProvideStore[invoicedomain.Invoice](p.DB),
		lineRepo:    repository.ProvideStore[invoicedomain.InvoiceLine](p.DB),
		paymentRepo: repository.ProvideStore[invoicedomain.InvoicePayment](p.DB),
	}
}

type lineGroup struct {
	serviceUserID snowflake.ID
	carePackageID snowflake.ID
	visits        []recdomain.BillableVisit
}

func (s *Service) Generate(ctx context.Context, req invoicedomain.GenerateRequest) (invoicedomain.Invoice, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidPeriod
	}

	funder, err := s.funderRepo.FindOne(ctx, &funderdomain.Funder{ID: req.FunderID})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if funder == nil {
		return invoicedomain.Invoice{}, funderdomain.ErrNotFound
	}

	var invoice invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var visits []recdomain.BillableVisit
		err := tx.
			Where("funder_id = ? AND status = ? AND invoice_line_id IS NULL", req.FunderID, recdomain.StatusApproved).
			Where("visit_date >= ? AND visit_date <= ?", req.PeriodStart, req.PeriodEnd).
			Order("service_user_id ASC, care_package_id ASC, visit_date ASC, id ASC").
			Find(&visits).Error
		if err != nil {
			return err
		}
		if len(visits) == 0 {
			return invoicedomain.ErrNoApprovedVisits
		}

		number, err := s.nextInvoiceNumber(tx)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		invoice = invoicedomain.Invoice{
			ID:            s.genID.Generate(),
			InvoiceNumber: fmt.Sprintf("INV-%06d", number),
			FunderID:      funder.ID,
			InvoiceDate:   now,
			DueDate:       now.AddDate(0, 0, funder.PaymentTermsDays),
			PeriodStart:   req.PeriodStart,
			PeriodEnd:     req.PeriodEnd,
			Status:        invoicedomain.InvoiceStatusDraft,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(&invoice).Error; err != nil {
			return err
		}

		for _, group := range groupVisits(visits) {
			line := invoicedomain.InvoiceLine{
				ID:            s.genID.Generate(),
				InvoiceID:     invoice.ID,
				ServiceUserID: group.serviceUserID,
				CarePackageID: group.carePackageID,
				VisitCount:    len(group.visits),
				CreatedAt:     now,
			}
			visitIDs := make([]snowflake.ID, 0, len(group.visits))
			for _, visit := range group.visits {
				line.TotalMinutes += visit.DurationMinutes
				line.CareSubtotal += visit.CareTotal
				line.MileageSubtotal += visit.MileageTotal
				line.LineTotal += visit.VisitTotal
				visitIDs = append(visitIDs, visit.ID)
			}
			if err := tx.Create(&line).Error; err != nil {
				return err
			}

			// Re-check eligibility at write time: if a concurrent
			// writer consumed or moved any of these visits since the
			// select, roll the whole invoice back.
			result := tx.Model(&recdomain.BillableVisit{}).
				Where("id IN ? AND status = ? AND invoice_line_id IS NULL", visitIDs, recdomain.StatusApproved).
				Updates(map[string]any{
					"status":          recdomain.StatusInvoiced,
					"invoice_line_id": line.ID,
					"updated_at":      now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected != int64(len(visitIDs)) {
				return invoicedomain.ErrVisitsContended
			}

			invoice.TotalAmount += line.LineTotal
			invoice.Lines = append(invoice.Lines, line)
		}

		return tx.Model(&invoicedomain.Invoice{}).
			Where("id = ?", invoice.ID).
			Update("total_amount", invoice.TotalAmount).Error
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.obs.IncInvoicesRaised()
	s.log.Info("invoice generated",
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.Int64("funder_id", int64(invoice.FunderID)),
		zap.Int64("total_amount", invoice.TotalAmount),
		zap.Int("lines", len(invoice.Lines)),
	)
	return invoice, nil
}

// nextInvoiceNumber increments the sequence row and returns the new
// value. The UPDATE takes a row write lock, so two concurrent
// generation transactions can never be handed the same number.
func (s *Service) nextInvoiceNumber(tx *gorm.DB) (int64, error) {
	result := tx.Model(&invoicedomain.InvoiceSequence{}).
		Where("id = ?", 1).
		Update("next_number", gorm.Expr("next_number + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		if err := tx.Create(&invoicedomain.InvoiceSequence{ID: 1, NextNumber: 1}).Error; err != nil {
			if !db.IsDuplicateKeyErr(err) {
				return 0, err
			}
			retry := tx.Model(&invoicedomain.InvoiceSequence{}).
				Where("id = ?", 1).
				Update("next_number", gorm.Expr("next_number + 1"))
			if retry.Error != nil {
				return 0, retry.Error
			}
		}
	}

	var seq invoicedomain.InvoiceSequence
	if err := tx.Where("id = ?", 1).First(&seq).Error; err != nil {
		return 0, err
	}
	return seq.NextNumber, nil
}

func groupVisits(visits []recdomain.BillableVisit) []lineGroup {
	var groups []lineGroup
	for _, visit := range visits {
		if n := len(groups); n > 0 &&
			groups[n-1].serviceUserID == visit.ServiceUserID &&
			groups[n-1].carePackageID == visit.CarePackageID {
			groups[n-1].visits = append(groups[n-1].visits, visit)
			continue
		}
		groups = append(groups, lineGroup{
			serviceUserID: visit.ServiceUserID,
			carePackageID: visit.CarePackageID,
			visits:        []recdomain.BillableVisit{visit},
		})
	}
	return groups
}
