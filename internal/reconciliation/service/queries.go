package service

import (
	"context"

	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
	"github.com/carebridge/billing/pkg/db/option"
	"github.com/carebridge/billing/pkg/db/pagination"
)

func (s *Service) List(ctx context.Context, req recdomain.ListRequest) (recdomain.ListResponse, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return recdomain.ListResponse{}, recdomain.ErrInvalidPeriod
	}
	page := req.Pagination.Normalize()

	filter := &recdomain.BillableVisit{}
	if req.FunderID != nil {
		filter.FunderID = *req.FunderID
	}
	if req.Status != nil {
		filter.Status = *req.Status
	}
	if req.DayType != nil {
		filter.DayType = *req.DayType
	}

	rangeOpts := []option.QueryOption{
		option.ApplyOperator(option.Condition{Field: "visit_date", Operator: option.GTE, Value: req.PeriodStart}),
		option.ApplyOperator(option.Condition{Field: "visit_date", Operator: option.LTE, Value: req.PeriodEnd}),
	}

	total, err := s.billableRepo.Count(ctx, filter, rangeOpts...)
	if err != nil {
		return recdomain.ListResponse{}, err
	}

	opts := append(rangeOpts,
		option.WithOrder("visit_date ASC, id ASC"),
		option.WithLimitOffset(page.Limit, page.Offset()),
	)
	items, err := s.billableRepo.Find(ctx, filter, opts...)
	if err != nil {
		return recdomain.ListResponse{}, err
	}

	visits := make([]recdomain.BillableVisit, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		visits = append(visits, *item)
	}

	return recdomain.ListResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Visits:   visits,
	}, nil
}

func (s *Service) GetSummary(ctx context.Context, req recdomain.SummaryRequest) (recdomain.Summary, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return recdomain.Summary{}, recdomain.ErrInvalidPeriod
	}

	stmt := s.db.WithContext(ctx).
		Model(&recdomain.BillableVisit{}).
		Where("visit_date >= ? AND visit_date <= ?", req.PeriodStart, req.PeriodEnd)
	if req.FunderID != nil {
		stmt = stmt.Where("funder_id = ?", *req.FunderID)
	}

	var rows []recdomain.StatusBreakdown
	err := stmt.
		Select("status, COUNT(*) AS count, COALESCE(SUM(visit_total), 0) AS amount").
		Group("status").
		Order("status ASC").
		Scan(&rows).Error
	if err != nil {
		return recdomain.Summary{}, err
	}

	summary := recdomain.Summary{ByStatus: rows}
	for _, row := range rows {
		summary.TotalVisits += row.Count
		summary.TotalAmount += row.Amount
	}

	minutesStmt := s.db.WithContext(ctx).
		Model(&recdomain.BillableVisit{}).
		Where("visit_date >= ? AND visit_date <= ?", req.PeriodStart, req.PeriodEnd)
	if req.FunderID != nil {
		minutesStmt = minutesStmt.Where("funder_id = ?", *req.FunderID)
	}
	if err := minutesStmt.
		Select("COALESCE(SUM(duration_minutes), 0)").
		Scan(&summary.TotalMinutes).Error; err != nil {
		return recdomain.Summary{}, err
	}

	return summary, nil
}
