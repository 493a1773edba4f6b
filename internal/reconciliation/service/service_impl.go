package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
	"github.com/carebridge/billing/internal/clock"
	funderdomain "github.com/carebridge/billing/internal/funder/domain"
	"github.com/carebridge/billing/internal/observability/metrics"
	ratesdomain "github.com/carebridge/billing/internal/rates/domain"
	ratesservice "github.com/carebridge/billing/internal/rates/service"
	recdomain "github.com/carebridge/billing/internal/reconciliation/domain"
	visitdomain "github.com/carebridge/billing/internal/visit/domain"
	"github.com/carebridge/billing/pkg/repository"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	ratesSvc ratesdomain.Service
	obs      *metrics.Metrics

	funderRepo   repository.Repository[funderdomain.Funder]
	visitRepo    repository.Repository[visitdomain.CareVisit]
	billableRepo repository.Repository[recdomain.BillableVisit]
	runRepo      repository.Repository[recdomain.GenerationRun]
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	RatesSvc ratesdomain.Service
	Obs      *metrics.Metrics `optional:"true"`
}

func NewService(p ServiceParam) recdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("reconciliation.service"),
		genID: p.GenID,
		clock: p.Clock,

		ratesSvc: p.RatesSvc,
		obs:      p.Obs,

		funderRepo:   repository.ProvideStore[funderdomain.Funder](p.DB),
		visitRepo:    repository.ProvideStore[visitdomain.CareVisit](p.DB),
		billableRepo: repository.ProvideStore[recdomain.BillableVisit](p.DB),
		runRepo:      repository.ProvideStore[recdomain.GenerationRun](p.DB),
	}
}

// Generate materializes one PENDING billable visit per eligible care
// visit in the period. Re-running for the same period is always safe:
// the unique index on care_visit_key turns a concurrent duplicate
// insert into a no-op skip, and existing non-VOID rows are never
// touched.
func (s *Service) Generate(ctx context.Context, req recdomain.GenerateRequest) (recdomain.GenerateReport, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return recdomain.GenerateReport{}, recdomain.ErrInvalidPeriod
	}

	funder, err := s.funderRepo.FindOne(ctx, &funderdomain.Funder{ID: req.FunderID})
	if err != nil {
		return recdomain.GenerateReport{}, err
	}
	if funder == nil {
		return recdomain.GenerateReport{}, funderdomain.ErrNotFound
	}

	visits, err := s.eligibleVisits(ctx, funder, req)
	if err != nil {
		return recdomain.GenerateReport{}, err
	}

	report := recdomain.GenerateReport{
		RunID:    uuid.NewString(),
		Eligible: len(visits),
		Issues:   []recdomain.GenerationIssue{},
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, visit := range visits {
			generated, issue, err := s.generateOne(ctx, tx, funder, visit)
			if err != nil {
				return err
			}
			if issue != nil {
				report.Issues = append(report.Issues, *issue)
				continue
			}
			if generated {
				report.Generated++
			}
		}
		return s.recordRun(ctx, tx, req, &report)
	})
	if err != nil {
		return recdomain.GenerateReport{}, err
	}

	s.obs.AddVisitsGenerated(report.Generated)
	s.obs.AddGenerationIssues(len(report.Issues))
	s.log.Info("generation run complete",
		zap.String("run_id", report.RunID),
		zap.Int64("funder_id", int64(req.FunderID)),
		zap.Int("generated", report.Generated),
		zap.Int("eligible", report.Eligible),
		zap.Int("issues", len(report.Issues)),
	)
	return report, nil
}

// eligibleVisits loads care visits whose basis-relevant timestamp
// falls in the period. On the ACTUAL basis, visits scheduled in the
// period but missing clock-in/out are still loaded so they can be
// reported as issues instead of silently dropping off.
func (s *Service) eligibleVisits(ctx context.Context, funder *funderdomain.Funder, req recdomain.GenerateRequest) ([]*visitdomain.CareVisit, error) {
	stmt := s.db.WithContext(ctx).Where("funder_id = ?", funder.ID)

	switch funder.BillingBasis {
	case funderdomain.BillingBasisActual:
		stmt = stmt.Where(
			"(actual_start >= ? AND actual_start <= ?) OR (actual_start IS NULL AND scheduled_start >= ? AND scheduled_start <= ?)",
			req.PeriodStart, req.PeriodEnd, req.PeriodStart, req.PeriodEnd,
		)
	default:
		stmt = stmt.Where("scheduled_start >= ? AND scheduled_start <= ?", req.PeriodStart, req.PeriodEnd)
	}

	var visits []*visitdomain.CareVisit
	if err := stmt.Order("scheduled_start ASC, id ASC").Find(&visits).Error; err != nil {
		return nil, err
	}
	return visits, nil
}

func (s *Service) generateOne(ctx context.Context, tx *gorm.DB, funder *funderdomain.Funder, visit *visitdomain.CareVisit) (bool, *recdomain.GenerationIssue, error) {
	start, end, issueReason := billingWindow(funder.BillingBasis, visit)
	if issueReason != "" {
		return false, &recdomain.GenerationIssue{CareVisitID: visit.ID, Reason: issueReason}, nil
	}

	resolved, err := s.ratesSvc.Resolve(ctx, ratesdomain.ResolveRequest{
		FunderID:    funder.ID,
		VisitDate:   start,
		StartMinute: ratesservice.MinuteOfDay(start),
		Carers:      visit.CarersAssigned,
	})
	if err != nil {
		reason := issueReasonForResolveErr(err)
		if reason == "" {
			return false, nil, err
		}
		return false, &recdomain.GenerationIssue{CareVisitID: visit.ID, Reason: reason}, nil
	}

	duration := int(math.Round(end.Sub(start).Minutes()))
	careTotal := CareTotal(resolved.RatePerHour, duration)
	mileageTotal := MileageTotal(visit.MileageMiles, resolved.RatePerMile)

	now := s.clock.Now()
	careVisitKey := visit.ID
	billable := recdomain.BillableVisit{
		ID:            s.genID.Generate(),
		CareVisitID:   visit.ID,
		CareVisitKey:  &careVisitKey,
		FunderID:      funder.ID,
		ServiceUserID: visit.ServiceUserID,
		CarePackageID: visit.CarePackageID,

		VisitDate:       time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		DayType:         resolved.DayType,
		BillingStart:    start,
		BillingEnd:      end,
		DurationMinutes: duration,

		RateLineID:  resolved.RateLineID,
		RatePerHour: resolved.RatePerHour,

		CareTotal:    careTotal,
		MileageTotal: mileageTotal,
		VisitTotal:   careTotal + mileageTotal,

		Status:    recdomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// ON CONFLICT DO NOTHING on the live-visit key: a concurrent run
	// that got there first is "already generated", not an error.
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "care_visit_key"}},
		DoNothing: true,
	}).Create(&billable)
	if result.Error != nil {
		return false, nil, result.Error
	}
	return result.RowsAffected > 0, nil, nil
}

func (s *Service) recordRun(ctx context.Context, tx *gorm.DB, req recdomain.GenerateRequest, report *recdomain.GenerateReport) error {
	issues := make([]any, 0, len(report.Issues))
	for _, issue := range report.Issues {
		issues = append(issues, map[string]any{
			"care_visit_id": issue.CareVisitID.String(),
			"reason":        issue.Reason,
		})
	}

	run := recdomain.GenerationRun{
		ID:          s.genID.Generate(),
		RunID:       report.RunID,
		FunderID:    req.FunderID,
		PeriodStart: req.PeriodStart,
		PeriodEnd:   req.PeriodEnd,
		Generated:   report.Generated,
		Eligible:    report.Eligible,
		IssueCount:  len(report.Issues),
		Issues:      datatypes.JSONMap{"issues": issues},
		CreatedAt:   s.clock.Now(),
	}
	return s.runRepo.WithTrx(tx).Create(ctx, &run)
}

func billingWindow(basis funderdomain.BillingBasis, visit *visitdomain.CareVisit) (time.Time, time.Time, string) {
	var start, end time.Time
	switch basis {
	case funderdomain.BillingBasisActual:
		if visit.ActualStart == nil || visit.ActualEnd == nil {
			return time.Time{}, time.Time{}, recdomain.IssueMissingActualTimes
		}
		start, end = *visit.ActualStart, *visit.ActualEnd
	default:
		start, end = visit.ScheduledStart, visit.ScheduledEnd
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, recdomain.IssueInvalidWindow
	}
	return start, end, ""
}

func issueReasonForResolveErr(err error) string {
	switch {
	case errors.Is(err, ratesdomain.ErrNoActiveRateCard):
		return recdomain.IssueNoActiveRateCard
	case errors.Is(err, ratesdomain.ErrNoMatchingLine):
		return recdomain.IssueNoMatchingLine
	case errors.Is(err, ratesdomain.ErrAmbiguousLines):
		return recdomain.IssueAmbiguousLines
	case errors.Is(err, calendardomain.ErrCalendarUnavailable):
		return recdomain.IssueCalendarMissing
	default:
		return ""
	}
}

// CareTotal prices a duration at an hourly rate in pence, rounding
// half-up to the penny.
func CareTotal(ratePerHour int64, durationMinutes int) int64 {
	return (ratePerHour*int64(durationMinutes) + 30) / 60
}

// MileageTotal prices logged miles at a per-mile rate in pence.
func MileageTotal(miles float64, ratePerMile int64) int64 {
	if miles <= 0 || ratePerMile <= 0 {
		return 0
	}
	return int64(math.Round(miles * float64(ratePerMile)))
}
