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
	"github.com/carebridge/billing/internal/config"
	"github.com/carebridge/billing/internal/seed"
)

const testRegion = "england-and-wales"

func setupClassifier(t *testing.T) (*gorm.DB, calendardomain.Service, *snowflake.Node) {
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

	svc := NewService(ServiceParam{
		DB:  db,
		Log: zap.NewNop(),
		Cfg: config.Config{HolidayRegion: testRegion},
	})
	return db, svc, node
}

func coverYear(t *testing.T, db *gorm.DB, node *snowflake.Node, year int) {
	t.Helper()
	require.NoError(t, db.Create(&calendardomain.HolidayCalendar{
		ID:        node.Generate(),
		Region:    testRegion,
		Year:      year,
		CreatedAt: time.Now().UTC(),
	}).Error)
}

func addHoliday(t *testing.T, db *gorm.DB, node *snowflake.Node, date time.Time, name string) {
	t.Helper()
	require.NoError(t, db.Create(&calendardomain.BankHoliday{
		ID:          node.Generate(),
		Region:      testRegion,
		HolidayDate: date,
		Name:        name,
		CreatedAt:   time.Now().UTC(),
	}).Error)
}

func TestClassify_Weekdays(t *testing.T) {
	db, svc, node := setupClassifier(t)
	coverYear(t, db, node, 2025)

	cases := []struct {
		date time.Time
		want calendardomain.DayType
	}{
		{time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), calendardomain.DayTypeWeekday},  // Monday
		{time.Date(2025, 6, 6, 0, 0, 0, 0, time.UTC), calendardomain.DayTypeWeekday},  // Friday
		{time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC), calendardomain.DayTypeSaturday}, // Saturday
		{time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), calendardomain.DayTypeSunday},   // Sunday
	}
	for _, tc := range cases {
		got, err := svc.Classify(context.Background(), tc.date)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.date.Format("2006-01-02"))
	}
}

func TestClassify_BankHolidayWinsOverWeekday(t *testing.T) {
	db, svc, node := setupClassifier(t)
	coverYear(t, db, node, 2025)
	christmas := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC) // Thursday
	addHoliday(t, db, node, christmas, "Christmas Day")

	got, err := svc.Classify(context.Background(), christmas)
	require.NoError(t, err)
	assert.Equal(t, calendardomain.DayTypeBankHoliday, got)
}

func TestClassify_BankHolidayWinsOverWeekend(t *testing.T) {
	db, svc, node := setupClassifier(t)
	coverYear(t, db, node, 2025)
	// A regional substitute day observed on a Saturday.
	saturday := time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)
	addHoliday(t, db, node, saturday, "Observed holiday")

	got, err := svc.Classify(context.Background(), saturday)
	require.NoError(t, err)
	assert.Equal(t, calendardomain.DayTypeBankHoliday, got)
}

func TestClassify_TimeOfDayIgnored(t *testing.T) {
	db, svc, node := setupClassifier(t)
	coverYear(t, db, node, 2025)
	christmas := time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC)
	addHoliday(t, db, node, christmas, "Christmas Day")

	got, err := svc.Classify(context.Background(), time.Date(2025, 12, 25, 18, 45, 12, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, calendardomain.DayTypeBankHoliday, got)
}

func TestClassify_FailsClosedWithoutCalendar(t *testing.T) {
	db, svc, node := setupClassifier(t)
	coverYear(t, db, node, 2025)

	// 2026 has no coverage row loaded: classification refuses to
	// guess WEEKDAY for a date that might be a holiday.
	_, err := svc.Classify(context.Background(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, calendardomain.ErrCalendarUnavailable)

	_ = db
}

func TestEnsureHolidayCalendar_SeedsAndIsIdempotent(t *testing.T) {
	db, svc, node := setupClassifier(t)

	require.NoError(t, seed.EnsureHolidayCalendar(db, node, testRegion))
	require.NoError(t, seed.EnsureHolidayCalendar(db, node, testRegion))

	var holidays int64
	require.NoError(t, db.Model(&calendardomain.BankHoliday{}).
		Where("region = ? AND holiday_date >= ? AND holiday_date < ?",
			testRegion,
			time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)).
		Count(&holidays).Error)
	assert.EqualValues(t, 8, holidays)

	got, err := svc.Classify(context.Background(), time.Date(2025, 12, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, calendardomain.DayTypeBankHoliday, got)
}
