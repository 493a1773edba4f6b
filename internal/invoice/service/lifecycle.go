package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	invoicedomain "github.com/carebridge/billing/internal/invoice/domain"
	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
)

// lifecycleSources lists valid source statuses per action. OVERDUE is
// a derived reading of SENT/PARTIALLY_PAID, so wherever those are
// valid sources the persisted OVERDUE is too. Void is the exception:
// a paid-against invoice has no void edge, so an OVERDUE invoice is
// only voidable while nothing has been received (Void checks).
var lifecycleSources = map[string][]invoicedomain.InvoiceStatus{
	"send": {invoicedomain.InvoiceStatusDraft},
	"mark_paid": {
		invoicedomain.InvoiceStatusSent,
		invoicedomain.InvoiceStatusPartiallyPaid,
		invoicedomain.InvoiceStatusOverdue,
	},
	"void": {
		invoicedomain.InvoiceStatusDraft,
		invoicedomain.InvoiceStatusSent,
		invoicedomain.InvoiceStatusOverdue,
	},
	"write_off": {
		invoicedomain.InvoiceStatusSent,
		invoicedomain.InvoiceStatusPartiallyPaid,
		invoicedomain.InvoiceStatusOverdue,
	},
}

func (s *Service) Send(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	now := s.clock.Now()
	return s.transition(ctx, id, "send", map[string]any{
		"status":     invoicedomain.InvoiceStatusSent,
		"sent_at":    now,
		"updated_at": now,
	})
}

// MarkPaid records a payment and settles the status from the
// cumulative amount received: PAID once payments cover the total,
// PARTIALLY_PAID otherwise. The balance is bumped with an in-database
// increment rather than an absolute write, so concurrent payments
// serialize on the row lock and neither overwrites the other.
func (s *Service) MarkPaid(ctx context.Context, req invoicedomain.MarkPaidRequest) (invoicedomain.Invoice, error) {
	if req.Amount <= 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidAmount
	}

	var updated invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findInvoice(ctx, tx, req.InvoiceID)
		if err != nil {
			return err
		}
		if !statusIn(invoice.Status, lifecycleSources["mark_paid"]) {
			return &invoicedomain.StateConflictError{InvoiceID: invoice.ID, Current: invoice.Status, Action: "mark_paid"}
		}

		now := s.clock.Now()
		payment := invoicedomain.InvoicePayment{
			ID:        s.genID.Generate(),
			InvoiceID: invoice.ID,
			PaidDate:  req.PaidDate,
			Amount:    req.Amount,
			Reference: req.Reference,
			CreatedAt: now,
		}
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}

		result := tx.Model(&invoicedomain.Invoice{}).
			Where("id = ? AND status IN ?", invoice.ID, lifecycleSources["mark_paid"]).
			Updates(map[string]any{
				"amount_paid": gorm.Expr("amount_paid + ?", req.Amount),
				"updated_at":  now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &invoicedomain.StateConflictError{InvoiceID: invoice.ID, Current: invoice.Status, Action: "mark_paid"}
		}

		// Re-read after the increment: whatever a concurrent payment
		// committed before this update is now folded into amount_paid,
		// so settlement is decided on the true cumulative value.
		var settled invoicedomain.Invoice
		if err := tx.Where("id = ?", invoice.ID).First(&settled).Error; err != nil {
			return err
		}

		status := invoicedomain.InvoiceStatusPartiallyPaid
		statusUpdates := map[string]any{"updated_at": now}
		if settled.AmountPaid >= settled.TotalAmount {
			status = invoicedomain.InvoiceStatusPaid
			statusUpdates["paid_at"] = req.PaidDate
		}
		statusUpdates["status"] = status
		if err := tx.Model(&invoicedomain.Invoice{}).
			Where("id = ?", settled.ID).
			Updates(statusUpdates).Error; err != nil {
			return err
		}

		updated = settled
		updated.Status = status
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.log.Info("payment recorded",
		zap.String("invoice_number", updated.InvoiceNumber),
		zap.Int64("amount", req.Amount),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// Void cancels the invoice and, in the same transaction, releases the
// billable visits it consumed back to APPROVED with their line
// references cleared. Their earlier approval stands, so the value
// stays eligible for a future invoice rather than silently vanishing.
// An invoice with payments against it cannot be voided: releasing its
// visits would re-bill value the funder already settled. A persisted
// OVERDUE is therefore only a valid source while amount_paid is zero.
func (s *Service) Void(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	var updated invoicedomain.Invoice
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.findInvoice(ctx, tx, id)
		if err != nil {
			return err
		}
		if !statusIn(invoice.Status, lifecycleSources["void"]) {
			return &invoicedomain.StateConflictError{InvoiceID: invoice.ID, Current: invoice.Status, Action: "void"}
		}
		if invoice.AmountPaid > 0 {
			return &invoicedomain.StateConflictError{InvoiceID: invoice.ID, Current: invoicedomain.InvoiceStatusPartiallyPaid, Action: "void"}
		}

		now := s.clock.Now()
		result := tx.Model(&invoicedomain.Invoice{}).
			Where("id = ? AND status = ? AND amount_paid = 0", invoice.ID, invoice.Status).
			Updates(map[string]any{
				"status":     invoicedomain.InvoiceStatusVoid,
				"updated_at": now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return &invoicedomain.StateConflictError{InvoiceID: invoice.ID, Current: invoice.Status, Action: "void"}
		}

		var lineIDs []snowflake.ID
		if err := tx.Model(&invoicedomain.InvoiceLine{}).
			Where("invoice_id = ?", invoice.ID).
			Pluck("id", &lineIDs).Error; err != nil {
			return err
		}
		if len(lineIDs) > 0 {
			if err := tx.Model(&recdomain.BillableVisit{}).
				Where("invoice_line_id IN ? AND status = ?", lineIDs, recdomain.StatusInvoiced).
				Updates(map[string]any{
					"status":          recdomain.StatusApproved,
					"invoice_line_id": nil,
					"updated_at":      now,
				}).Error; err != nil {
				return err
			}
		}

		updated = *invoice
		updated.Status = invoicedomain.InvoiceStatusVoid
		return nil
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.obs.IncInvoicesVoided()
	s.log.Info("invoice voided", zap.String("invoice_number", updated.InvoiceNumber))
	return updated, nil
}

func (s *Service) WriteOff(ctx context.Context, id snowflake.ID) (invoicedomain.Invoice, error) {
	return s.transition(ctx, id, "write_off", map[string]any{
		"status":     invoicedomain.InvoiceStatusWrittenOff,
		"updated_at": s.clock.Now(),
	})
}

func (s *Service) transition(ctx context.Context, invoiceID snowflake.ID, action string, updates map[string]any) (invoicedomain.Invoice, error) {
	sources := lifecycleSources[action]

	invoice, err := s.invoiceRepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrNotFound
	}

	result := s.db.WithContext(ctx).
		Model(&invoicedomain.Invoice{}).
		Where("id = ? AND status IN ?", invoiceID, sources).
		Updates(updates)
	if result.Error != nil {
		return invoicedomain.Invoice{}, result.Error
	}
	if result.RowsAffected == 0 {
		current, err := s.invoiceRepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
		if err != nil {
			return invoicedomain.Invoice{}, err
		}
		status := invoice.Status
		if current != nil {
			status = current.Status
		}
		return invoicedomain.Invoice{}, &invoicedomain.StateConflictError{InvoiceID: invoiceID, Current: status, Action: action}
	}

	updated, err := s.invoiceRepo.FindOne(ctx, &invoicedomain.Invoice{ID: invoiceID})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	return *updated, nil
}

func (s *Service) findInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	var invoice invoicedomain.Invoice
	err := tx.WithContext(ctx).Where("id = ?", invoiceID).First(&invoice).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invoicedomain.ErrNotFound
		}
		return nil, err
	}
	return &invoice, nil
}

func statusIn(status invoicedomain.InvoiceStatus, set []invoicedomain.InvoiceStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}
