package service

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
	"github.com/carebridge/billing/internal/config"
	"github.com/carebridge/billing/pkg/repository"
)

type Service struct {
	log    *zap.Logger
	region string

	holidayRepo  repository.Repository[calendardomain.BankHoliday]
	calendarRepo repository.Repository[calendardomain.HolidayCalendar]
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
	Cfg config.Config
}

func NewService(p ServiceParam) calendardomain.Service {
	return &Service{
		log:    p.Log.Named("calendar.service"),
		region: p.Cfg.HolidayRegion,

		holidayRepo:  repository.ProvideStore[calendardomain.BankHoliday](p.DB),
		calendarRepo: repository.ProvideStore[calendardomain.HolidayCalendar](p.DB),
	}
}

func (s *Service) Classify(ctx context.Context, date time.Time) (calendardomain.DayType, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	covered, err := s.calendarRepo.FindOne(ctx, &calendardomain.HolidayCalendar{
		Region: s.region,
		Year:   day.Year(),
	})
	if err != nil {
		return "", err
	}
	if covered == nil {
		s.log.Warn("no holiday calendar loaded",
			zap.String("region", s.region),
			zap.Int("year", day.Year()),
		)
		return "", calendardomain.ErrCalendarUnavailable
	}

	holiday, err := s.holidayRepo.FindOne(ctx, &calendardomain.BankHoliday{
		Region:      s.region,
		HolidayDate: day,
	})
	if err != nil {
		return "", err
	}
	if holiday != nil {
		return calendardomain.DayTypeBankHoliday, nil
	}

	switch day.Weekday() {
	case time.Saturday:
		return calendardomain.DayTypeSaturday, nil
	case time.Sunday:
		return calendardomain.DayTypeSunday, nil
	default:
		return calendardomain.DayTypeWeekday, nil
	}
}
