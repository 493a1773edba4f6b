// Package domain contains the holiday calendar models and the day-type
// classification contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DayType classifies a calendar date for pricing purposes.
type DayType string

const (
	DayTypeWeekday     DayType = "WEEKDAY"
	DayTypeSaturday    DayType = "SATURDAY"
	DayTypeSunday      DayType = "SUNDAY"
	DayTypeBankHoliday DayType = "BANK_HOLIDAY"
)

func (d DayType) Valid() bool {
	switch d {
	case DayTypeWeekday, DayTypeSaturday, DayTypeSunday, DayTypeBankHoliday:
		return true
	}
	return false
}

// BankHoliday is a single observed holiday date for a region.
type BankHoliday struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Region      string       `gorm:"type:text;not null;index:idx_bank_holidays_region_date" json:"region"`
	HolidayDate time.Time    `gorm:"not null;index:idx_bank_holidays_region_date" json:"holiday_date"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (BankHoliday) TableName() string { return "bank_holidays" }

// HolidayCalendar marks that holiday data has been loaded for a
// region/year. Classification for an uncovered year fails closed.
type HolidayCalendar struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Region    string       `gorm:"type:text;not null;uniqueIndex:ux_holiday_calendars_region_year" json:"region"`
	Year      int          `gorm:"not null;uniqueIndex:ux_holiday_calendars_region_year" json:"year"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (HolidayCalendar) TableName() string { return "holiday_calendars" }
