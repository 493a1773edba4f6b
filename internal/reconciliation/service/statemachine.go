package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"

	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
)

// allowedSources lists which statuses each reconciliation action may
// start from. INVOICED and VOID are terminal here; an INVOICED visit
// only moves again when its parent invoice is voided.
var allowedSources = map[string][]recdomain.BillableVisitStatus{
	"approve":  {recdomain.StatusPending, recdomain.StatusDisputed},
	"dispute":  {recdomain.StatusPending},
	"override": {recdomain.StatusPending, recdomain.StatusDisputed},
	"void":     {recdomain.StatusPending, recdomain.StatusDisputed},
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (recdomain.BillableVisit, error) {
	return s.transition(ctx, id, "approve", map[string]any{
		"status":     recdomain.StatusApproved,
		"updated_at": s.clock.Now(),
	})
}

func (s *Service) Dispute(ctx context.Context, id snowflake.ID, reason string) (recdomain.BillableVisit, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return recdomain.BillableVisit{}, recdomain.ErrReasonRequired
	}
	return s.transition(ctx, id, "dispute", map[string]any{
		"status":         recdomain.StatusDisputed,
		"dispute_reason": reason,
		"updated_at":     s.clock.Now(),
	})
}

// Override replaces the visit total and records why. The computed
// care and mileage components are left untouched for audit, and the
// status does not change; callers typically approve afterwards.
func (s *Service) Override(ctx context.Context, id snowflake.ID, amount int64, reason string) (recdomain.BillableVisit, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return recdomain.BillableVisit{}, recdomain.ErrReasonRequired
	}
	if amount < 0 {
		return recdomain.BillableVisit{}, recdomain.ErrInvalidAmount
	}
	return s.transition(ctx, id, "override", map[string]any{
		"visit_total":     amount,
		"override_reason": reason,
		"updated_at":      s.clock.Now(),
	})
}

// Void retires a billable visit permanently. The row is kept for
// audit; clearing care_visit_key is what frees the care visit for
// regeneration.
func (s *Service) Void(ctx context.Context, id snowflake.ID) (recdomain.BillableVisit, error) {
	return s.transition(ctx, id, "void", map[string]any{
		"status":         recdomain.StatusVoid,
		"care_visit_key": gorm.Expr("NULL"),
		"updated_at":     s.clock.Now(),
	})
}

func (s *Service) BulkApprove(ctx context.Context, req recdomain.BulkApproveRequest) (int64, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return 0, recdomain.ErrInvalidPeriod
	}

	stmt := s.db.WithContext(ctx).
		Model(&recdomain.BillableVisit{}).
		Where("status = ?", recdomain.StatusPending).
		Where("visit_date >= ? AND visit_date <= ?", req.PeriodStart, req.PeriodEnd)
	if req.FunderID != nil {
		stmt = stmt.Where("funder_id = ?", *req.FunderID)
	}

	result := stmt.Updates(map[string]any{
		"status":     recdomain.StatusApproved,
		"updated_at": s.clock.Now(),
	})
	if result.Error != nil {
		return 0, result.Error
	}

	s.log.Info("bulk approve",
		zap.Int64("approved", result.RowsAffected),
	)
	return result.RowsAffected, nil
}

// transition applies updates with a compare-and-set on the current
// status: the WHERE clause re-checks the allowed source states at
// write time, so a request computed against a stale read fails with a
// state conflict instead of overwriting a concurrent transition.
func (s *Service) transition(ctx context.Context, id snowflake.ID, action string, updates map[string]any) (recdomain.BillableVisit, error) {
	sources, ok := allowedSources[action]
	if !ok {
		return recdomain.BillableVisit{}, recdomain.ErrStateConflict
	}

	visit, err := s.billableRepo.FindOne(ctx, &recdomain.BillableVisit{ID: id})
	if err != nil {
		return recdomain.BillableVisit{}, err
	}
	if visit == nil {
		return recdomain.BillableVisit{}, recdomain.ErrNotFound
	}

	result := s.db.WithContext(ctx).
		Model(&recdomain.BillableVisit{}).
		Where("id = ? AND status IN ?", id, sources).
		Updates(updates)
	if result.Error != nil {
		return recdomain.BillableVisit{}, result.Error
	}
	if result.RowsAffected == 0 {
		current, err := s.billableRepo.FindOne(ctx, &recdomain.BillableVisit{ID: id})
		if err != nil {
			return recdomain.BillableVisit{}, err
		}
		status := visit.Status
		if current != nil {
			status = current.Status
		}
		return recdomain.BillableVisit{}, &recdomain.StateConflictError{VisitID: id, Current: status, Action: action}
	}

	updated, err := s.billableRepo.FindOne(ctx, &recdomain.BillableVisit{ID: id})
	if err != nil {
		return recdomain.BillableVisit{}, err
	}
	return *updated, nil
}
