package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
	funderdomain "github.com/carebridge/billing/internal/funder/domain"
	ratesdomain "github.com/carebridge/billing/internal/rates/domain"
	"github.com/carebridge/billing/pkg/db/option"
	"github.com/carebridge/billing/pkg/repository"
)

const minutesPerDay = 24 * 60

type Service struct {
	log *zap.Logger

	calendarSvc calendardomain.Service
	cardRepo    repository.Repository[funderdomain.RateCard]
	lineRepo    repository.Repository[funderdomain.RateLine]
	mileRepo    repository.Repository[funderdomain.MileageRate]
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	CalendarSvc calendardomain.Service
}

func NewService(p ServiceParam) ratesdomain.Service {
	return &Service{
		log: p.Log.Named("rates.service"),

		calendarSvc: p.CalendarSvc,
		cardRepo:    repository.ProvideStore[funderdomain.RateCard](p.DB),
		lineRepo:    repository.ProvideStore[funderdomain.RateLine](p.DB),
		mileRepo:    repository.ProvideStore[funderdomain.MileageRate](p.DB),
	}
}

// Resolve selects the single applicable rate line for a visit:
// latest active card effective on the visit date, lines filtered by
// day type, band containment and exact carer count, then the
// narrowest band wins. Remaining ties are ambiguous and fail loudly.
func (s *Service) Resolve(ctx context.Context, req ratesdomain.ResolveRequest) (ratesdomain.ResolvedRate, error) {
	card, err := s.activeCard(ctx, req)
	if err != nil {
		return ratesdomain.ResolvedRate{}, err
	}

	dayType, err := s.calendarSvc.Classify(ctx, req.VisitDate)
	if err != nil {
		return ratesdomain.ResolvedRate{}, err
	}

	lines, err := s.lineRepo.Find(ctx, &funderdomain.RateLine{
		RateCardID: card.ID,
		DayType:    dayType,
	})
	if err != nil {
		return ratesdomain.ResolvedRate{}, err
	}

	var candidates []*funderdomain.RateLine
	for _, line := range lines {
		contains, err := bandContains(line, req.StartMinute)
		if err != nil {
			return ratesdomain.ResolvedRate{}, err
		}
		if contains {
			candidates = append(candidates, line)
		}
	}

	// Exact headcount only: applying a wrong carer-count rate would
	// be silently incorrect billing.
	var exact []*funderdomain.RateLine
	for _, line := range candidates {
		if line.CarersRequired == req.Carers {
			exact = append(exact, line)
		}
	}
	if len(exact) == 0 {
		return ratesdomain.ResolvedRate{}, ratesdomain.ErrNoMatchingLine
	}

	selected := exact[0]
	ambiguous := false
	for _, line := range exact[1:] {
		switch CompareSpecificity(line, selected) {
		case -1:
			selected = line
			ambiguous = false
		case 0:
			ambiguous = true
		}
	}
	if ambiguous {
		s.log.Warn("ambiguous rate lines",
			zap.Int64("rate_card_id", int64(card.ID)),
			zap.String("day_type", string(dayType)),
			zap.Int("start_minute", req.StartMinute),
		)
		return ratesdomain.ResolvedRate{}, ratesdomain.ErrAmbiguousLines
	}

	resolved := ratesdomain.ResolvedRate{
		RateCardID:  card.ID,
		RateLineID:  selected.ID,
		DayType:     dayType,
		RatePerHour: selected.RatePerHour,
	}

	mileage, err := s.mileRepo.FindOne(ctx, &funderdomain.MileageRate{RateCardID: card.ID})
	if err != nil {
		return ratesdomain.ResolvedRate{}, err
	}
	if mileage != nil {
		resolved.RatePerMile = mileage.RatePerMile
	}

	return resolved, nil
}

// activeCard returns the funder's active rate card with the latest
// effective_from on or before the visit date.
func (s *Service) activeCard(ctx context.Context, req ratesdomain.ResolveRequest) (*funderdomain.RateCard, error) {
	funderID := req.FunderID
	card, err := s.cardRepo.FindOne(ctx, &funderdomain.RateCard{
		FunderID: &funderID,
		Active:   true,
	},
		option.ApplyOperator(option.Condition{Field: "effective_from", Operator: option.LTE, Value: req.VisitDate}),
		option.WithOrder("effective_from DESC"),
	)
	if err != nil {
		return nil, err
	}
	if card == nil {
		return nil, ratesdomain.ErrNoActiveRateCard
	}
	return card, nil
}

// CompareSpecificity orders two matching rate lines: -1 when a is the
// more specific (narrower band) match, 1 when b is, 0 when they tie.
// A line without a band covers the whole day and is the widest match.
func CompareSpecificity(a, b *funderdomain.RateLine) int {
	aw := bandWidth(a)
	bw := bandWidth(b)
	switch {
	case aw < bw:
		return -1
	case aw > bw:
		return 1
	default:
		return 0
	}
}

func bandWidth(line *funderdomain.RateLine) int {
	start, end, ok := bandMinutes(line)
	if !ok {
		return minutesPerDay
	}
	if end <= start {
		// Band wraps midnight, e.g. 22:00-06:00.
		return (minutesPerDay - start) + end
	}
	return end - start
}

func bandContains(line *funderdomain.RateLine, minute int) (bool, error) {
	if line.BandStart == nil || line.BandEnd == nil {
		return true, nil
	}
	start, err := ParseBandTime(*line.BandStart)
	if err != nil {
		return false, err
	}
	end, err := ParseBandTime(*line.BandEnd)
	if err != nil {
		return false, err
	}
	if end <= start {
		return minute >= start || minute < end, nil
	}
	return minute >= start && minute < end, nil
}

func bandMinutes(line *funderdomain.RateLine) (int, int, bool) {
	if line.BandStart == nil || line.BandEnd == nil {
		return 0, 0, false
	}
	start, err := ParseBandTime(*line.BandStart)
	if err != nil {
		return 0, 0, false
	}
	end, err := ParseBandTime(*line.BandEnd)
	if err != nil {
		return 0, 0, false
	}
	return start, end, true
}

// ParseBandTime converts an "HH:MM" band boundary to minutes from
// midnight.
func ParseBandTime(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid band time %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid band time %q", value)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid band time %q", value)
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("invalid band time %q", value)
	}
	return hours*60 + minutes, nil
}

// MinuteOfDay extracts the minutes-from-midnight of a timestamp.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
