package db

import (
	"strconv"
	"time"

	"gorm.io/datatypes"

	"energyinsight/internal/energy"
)

// EnergyReading is one persisted telemetry sample. Rows are written once and
// only removed by the retention worker.
type EnergyReading struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	// Owner and time share a composite index; every read is a per-user
	// time range scan.
	UserID    uint      `gorm:"index:idx_reading_user_ts,priority:1;not null"`
	Timestamp time.Time `gorm:"index:idx_reading_user_ts,priority:2;not null"`

	// EnergyType is solar, wind, hydro or any other free-form source.
	EnergyType  string  `gorm:"size:32;not null"`
	Consumption float64 `gorm:"not null"`
	Generation  float64 `gorm:"not null"`
}

func (EnergyReading) TableName() string { return "energy_data" }

// ToReading converts the row to the aggregation model.
func (r EnergyReading) ToReading() energy.Reading {
	return energy.Reading{
		Timestamp:   r.Timestamp,
		Category:    energy.Category(r.EnergyType),
		Consumption: r.Consumption,
		Generation:  r.Generation,
		OwnerID:     r.UserID,
	}
}

func readingRow(r energy.Reading) EnergyReading {
	return EnergyReading{
		UserID:      r.OwnerID,
		Timestamp:   r.Timestamp,
		EnergyType:  string(r.Category),
		Consumption: r.Consumption,
		Generation:  r.Generation,
	}
}

// Appliance is a stored catalogue entry. Users without rows get
// energy.DefaultAppliances.
type Appliance struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	UserID uint `gorm:"index;not null"`

	Name             string  `gorm:"size:128;not null"`
	Consumption      float64 `gorm:"not null"`
	Unit             string  `gorm:"size:16;not null;default:kWh"`
	EnergyEfficiency string  `gorm:"size:8"`
	StandbyPower     float64
	UsageHours       float64

	// TimeOfUse holds ranges such as "17:00-22:00", or "Various".
	TimeOfUse datatypes.JSONSlice[string] `gorm:"type:json"`
}

func (a Appliance) toAppliance() energy.Appliance {
	return energy.Appliance{
		ID:               strconv.FormatUint(uint64(a.ID), 10),
		Name:             a.Name,
		Consumption:      a.Consumption,
		Unit:             a.Unit,
		TimeOfUse:        []string(a.TimeOfUse),
		EnergyEfficiency: a.EnergyEfficiency,
		StandbyPower:     a.StandbyPower,
		UsageHours:       a.UsageHours,
	}
}

func applianceRow(userID uint, a energy.Appliance) Appliance {
	unit := a.Unit
	if unit == "" {
		unit = "kWh"
	}
	return Appliance{
		UserID:           userID,
		Name:             a.Name,
		Consumption:      a.Consumption,
		Unit:             unit,
		EnergyEfficiency: a.EnergyEfficiency,
		StandbyPower:     a.StandbyPower,
		UsageHours:       a.UsageHours,
		TimeOfUse:        datatypes.JSONSlice[string](a.TimeOfUse),
	}
}
