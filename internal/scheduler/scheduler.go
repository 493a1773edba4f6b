// Package scheduler runs the periodic jobs of the billing engine.
// Overdue is a derived status, so the sweep only persists what
// Invoice.Derive would already report for the same now; the sweep
// exists so that list filters and metrics see OVERDUE without every
// reader re-deriving it.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carebridge/billing/internal/clock"
	invoicedomain "github.com/carebridge/billing/internal/invoice/domain"
	"github.com/carebridge/billing/internal/observability/metrics"
)

type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	cfg   Config
	clock clock.Clock
	obs   *metrics.Metrics
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Obs   *metrics.Metrics `optional:"true"`
	Cfg   Config           `optional:"true"`
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:    p.DB,
		log:   p.Log.Named("scheduler"),
		cfg:   p.Cfg.withDefaults(),
		clock: p.Clock,
		obs:   p.Obs,
	}
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.SweepTimeout)
	defer cancel()
	return s.SweepOverdue(ctx)
}

// SweepOverdue persists OVERDUE on sent invoices whose due date has
// passed with an unpaid balance.
func (s *Scheduler) SweepOverdue(ctx context.Context) error {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("status IN ?", []invoicedomain.InvoiceStatus{
			invoicedomain.InvoiceStatusSent,
			invoicedomain.InvoiceStatusPartiallyPaid,
		}).
		Where("due_date < ? AND amount_paid < total_amount", now).
		Updates(map[string]any{
			"status":     invoicedomain.InvoiceStatusOverdue,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}

	s.obs.AddOverdueSwept(int(result.RowsAffected))
	if result.RowsAffected > 0 {
		s.log.Info("overdue sweep",
			zap.Int64("marked_overdue", result.RowsAffected),
		)
	}
	return nil
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.log.Error("sweep failed", zap.Error(err))
			}
		}
	}
}
