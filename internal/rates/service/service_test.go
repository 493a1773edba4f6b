package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	calendardomain "github.com/carebridge/billing/internal/calendar/domain"
	calendarservice "github.com/carebridge/billing/internal/calendar/service"
	"github.com/carebridge/billing/internal/config"
	funderdomain "github.com/carebridge/billing/internal/funder/domain"
	ratesdomain "github.com/carebridge/billing/internal/rates/domain"
	"github.com/carebridge/billing/internal/seed"
)

const testRegion = "england-and-wales"

type resolverFixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	svc    ratesdomain.Service
	funder funderdomain.Funder
}

func setupResolver(t *testing.T) *resolverFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, seed.AutoMigrate(db))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	calendarSvc := calendarservice.NewService(calendarservice.ServiceParam{
		DB:  db,
		Log: zap.NewNop(),
		Cfg: config.Config{HolidayRegion: testRegion},
	})
	svc := NewService(ServiceParam{
		DB:          db,
		Log:         zap.NewNop(),
		CalendarSvc: calendarSvc,
	})

	funder := funderdomain.Funder{
		ID:               node.Generate(),
		Name:             "Metford Council",
		PaymentTermsDays: 30,
		InvoiceFrequency: funderdomain.InvoiceFrequencyMonthly,
		BillingBasis:     funderdomain.BillingBasisScheduled,
		Active:           true,
	}
	require.NoError(t, db.Create(&funder).Error)
	require.NoError(t, db.Create(&calendardomain.HolidayCalendar{
		ID:     node.Generate(),
		Region: testRegion,
		Year:   2025,
	}).Error)

	return &resolverFixture{db: db, node: node, svc: svc, funder: funder}
}

func (f *resolverFixture) addCard(t *testing.T, effectiveFrom time.Time, active bool) funderdomain.RateCard {
	t.Helper()
	funderID := f.funder.ID
	card := funderdomain.RateCard{
		ID:            f.node.Generate(),
		FunderID:      &funderID,
		Name:          "Standard rates",
		EffectiveFrom: effectiveFrom,
		Active:        active,
	}
	require.NoError(t, f.db.Create(&card).Error)
	return card
}

func (f *resolverFixture) addLine(t *testing.T, cardID snowflake.ID, dayType calendardomain.DayType, bandStart, bandEnd string, ratePerHour int64, carers int) funderdomain.RateLine {
	t.Helper()
	line := funderdomain.RateLine{
		ID:             f.node.Generate(),
		RateCardID:     cardID,
		DayType:        dayType,
		RatePerHour:    ratePerHour,
		CarersRequired: carers,
	}
	if bandStart != "" {
		line.BandStart = &bandStart
		line.BandEnd = &bandEnd
	}
	require.NoError(t, f.db.Create(&line).Error)
	return line
}

// Tuesday.
var weekday = time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)

func TestResolve_BandAndDayType(t *testing.T) {
	f := setupResolver(t)
	card := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	dayLine := f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "06:00", "22:00", 1850, 1)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "22:00", "06:00", 2450, 1)
	f.addLine(t, card.ID, calendardomain.DayTypeSaturday, "06:00", "22:00", 2100, 1)

	resolved, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 9 * 60,
		Carers:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, dayLine.ID, resolved.RateLineID)
	assert.Equal(t, calendardomain.DayTypeWeekday, resolved.DayType)
	assert.EqualValues(t, 1850, resolved.RatePerHour)
}

func TestResolve_BankHolidayLineOnHolidayDate(t *testing.T) {
	f := setupResolver(t)
	card := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "", "", 1850, 1)
	holidayLine := f.addLine(t, card.ID, calendardomain.DayTypeBankHoliday, "", "", 2775, 1)

	// A Thursday, but observed as a holiday: the holiday line must win
	// over the weekday line the date would otherwise match.
	christmas := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	require.NoError(t, f.db.Create(&calendardomain.BankHoliday{
		ID:          f.node.Generate(),
		Region:      testRegion,
		HolidayDate: christmas,
		Name:        "Christmas Day",
	}).Error)

	resolved, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   christmas,
		StartMinute: 10 * 60,
		Carers:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, holidayLine.ID, resolved.RateLineID)
	assert.Equal(t, calendardomain.DayTypeBankHoliday, resolved.DayType)
	assert.EqualValues(t, 2775, resolved.RatePerHour)
}

func TestResolve_WrapMidnightBand(t *testing.T) {
	f := setupResolver(t)
	card := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	night := f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "22:00", "06:00", 2450, 1)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "06:00", "22:00", 1850, 1)

	for _, minute := range []int{23 * 60, 5 * 60} {
		resolved, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
			FunderID:    f.funder.ID,
			VisitDate:   weekday,
			StartMinute: minute,
			Carers:      1,
		})
		require.NoError(t, err)
		assert.Equal(t, night.ID, resolved.RateLineID, "minute %d", minute)
	}
}

func TestResolve_NarrowestBandWins(t *testing.T) {
	f := setupResolver(t)
	card := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "", "", 1700, 1) // all-day fallback
	peak := f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "07:00", "09:00", 2200, 1)

	resolved, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 8 * 60,
		Carers:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, peak.ID, resolved.RateLineID)

	// Outside the peak band, only the all-day line matches.
	resolved, err = f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 14 * 60,
		Carers:      1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1700, resolved.RatePerHour)
}

func TestResolve_AmbiguousEqualBands(t *testing.T) {
	f := setupResolver(t)
	card := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "08:00", "12:00", 1850, 1)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "06:00", "10:00", 1900, 1)

	_, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 9 * 60,
		Carers:      1,
	})
	require.ErrorIs(t, err, ratesdomain.ErrAmbiguousLines)
}

func TestResolve_ExactCarerCount(t *testing.T) {
	f := setupResolver(t)
	card := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "", "", 1850, 1)
	double := f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "", "", 3400, 2)

	resolved, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 10 * 60,
		Carers:      2,
	})
	require.NoError(t, err)
	assert.Equal(t, double.ID, resolved.RateLineID)

	// Three carers has no configured line; a near-miss rate must not
	// be silently applied.
	_, err = f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 10 * 60,
		Carers:      3,
	})
	require.ErrorIs(t, err, ratesdomain.ErrNoMatchingLine)
}

func TestResolve_LatestEffectiveCard(t *testing.T) {
	f := setupResolver(t)
	oldCard := f.addCard(t, weekday.AddDate(-1, 0, 0), true)
	f.addLine(t, oldCard.ID, calendardomain.DayTypeWeekday, "", "", 1700, 1)
	newCard := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	f.addLine(t, newCard.ID, calendardomain.DayTypeWeekday, "", "", 1850, 1)
	futureCard := f.addCard(t, weekday.AddDate(0, 1, 0), true)
	f.addLine(t, futureCard.ID, calendardomain.DayTypeWeekday, "", "", 2000, 1)

	resolved, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 10 * 60,
		Carers:      1,
	})
	require.NoError(t, err)
	assert.Equal(t, newCard.ID, resolved.RateCardID)
	assert.EqualValues(t, 1850, resolved.RatePerHour)
}

func TestResolve_InactiveCardIgnored(t *testing.T) {
	f := setupResolver(t)
	inactive := f.addCard(t, weekday.AddDate(0, -1, 0), false)
	f.addLine(t, inactive.ID, calendardomain.DayTypeWeekday, "", "", 1850, 1)

	_, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 10 * 60,
		Carers:      1,
	})
	require.ErrorIs(t, err, ratesdomain.ErrNoActiveRateCard)
}

func TestResolve_MileageRate(t *testing.T) {
	f := setupResolver(t)
	card := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "", "", 1850, 1)
	require.NoError(t, f.db.Create(&funderdomain.MileageRate{
		ID:          f.node.Generate(),
		RateCardID:  card.ID,
		RatePerMile: 45,
	}).Error)

	resolved, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   weekday,
		StartMinute: 10 * 60,
		Carers:      1,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 45, resolved.RatePerMile)
}

func TestResolve_CalendarUnavailable(t *testing.T) {
	f := setupResolver(t)
	card := f.addCard(t, weekday.AddDate(0, -1, 0), true)
	f.addLine(t, card.ID, calendardomain.DayTypeWeekday, "", "", 1850, 1)

	uncovered := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	// The card is effective, but the holiday calendar has no 2027
	// coverage so the day type cannot be trusted.
	_, err := f.svc.Resolve(context.Background(), ratesdomain.ResolveRequest{
		FunderID:    f.funder.ID,
		VisitDate:   uncovered,
		StartMinute: 10 * 60,
		Carers:      1,
	})
	require.ErrorIs(t, err, calendardomain.ErrCalendarUnavailable)
}

func TestParseBandTime(t *testing.T) {
	got, err := ParseBandTime("06:30")
	require.NoError(t, err)
	assert.Equal(t, 390, got)

	for _, bad := range []string{"", "24:00", "06:60", "6", "ab:cd"} {
		_, err := ParseBandTime(bad)
		assert.Error(t, err, bad)
	}
}

func TestCompareSpecificity(t *testing.T) {
	band := func(start, end string) *funderdomain.RateLine {
		return &funderdomain.RateLine{BandStart: &start, BandEnd: &end}
	}
	allDay := &funderdomain.RateLine{}

	assert.Equal(t, -1, CompareSpecificity(band("07:00", "09:00"), allDay))
	assert.Equal(t, 1, CompareSpecificity(allDay, band("07:00", "09:00")))
	assert.Equal(t, 0, CompareSpecificity(band("08:00", "12:00"), band("06:00", "10:00")))
	// A wrapping night band is 8 hours wide, narrower than all-day.
	assert.Equal(t, -1, CompareSpecificity(band("22:00", "06:00"), allDay))
}
