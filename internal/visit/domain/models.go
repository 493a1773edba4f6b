// Package domain contains the care delivery read models consumed by
// billing: service users, care packages and logged care visits. They
// are maintained by the rostering side of the platform and treated as
// read-only input here.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ServiceUser is the person receiving care.
type ServiceUser struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	FunderID snowflake.ID `gorm:"not null;index" json:"funder_id"`
	Name     string       `gorm:"type:text;not null" json:"name"`
}

func (ServiceUser) TableName() string { return "service_users" }

// CarePackage groups visits under one commissioned arrangement.
type CarePackage struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	ServiceUserID snowflake.ID `gorm:"not null;index" json:"service_user_id"`
	Name          string       `gorm:"type:text;not null" json:"name"`
}

func (CarePackage) TableName() string { return "care_packages" }

// CareVisit is a scheduled or delivered visit. Actual timestamps are
// nil until the carer clocks in and out.
type CareVisit struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	FunderID       snowflake.ID `gorm:"not null;index" json:"funder_id"`
	ServiceUserID  snowflake.ID `gorm:"not null;index" json:"service_user_id"`
	CarePackageID  snowflake.ID `gorm:"not null;index" json:"care_package_id"`
	ScheduledStart time.Time    `gorm:"not null;index" json:"scheduled_start"`
	ScheduledEnd   time.Time    `gorm:"not null" json:"scheduled_end"`
	ActualStart    *time.Time   `gorm:"index" json:"actual_start,omitempty"`
	ActualEnd      *time.Time   `gorm:"" json:"actual_end,omitempty"`
	CarersAssigned int          `gorm:"not null;default:1" json:"carers_assigned"`
	MileageMiles   float64      `gorm:"not null;default:0" json:"mileage_miles"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

func (CareVisit) TableName() string { return "care_visits" }
