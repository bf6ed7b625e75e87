package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	UnitSqm   = "sqm"
	UnitPiece = "piece"

	PerSqm   = "per_sqm"
	PerPiece = "per_piece"

	StatusActive   = "active"
	StatusInactive = "inactive"
)

type Machine struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Type      string    `gorm:"size:50;not null;index" json:"type"` // large_format / digital_press
	Status    string    `gorm:"size:50;not null;default:active;index" json:"status"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

type JobType struct {
	ID          uint64    `gorm:"primaryKey" json:"id"`
	MachineType string    `gorm:"size:50;not null;uniqueIndex:uq_job_types_machine_name,priority:1" json:"machine_type"`
	Name        string    `gorm:"size:255;not null;uniqueIndex:uq_job_types_machine_name,priority:2" json:"name"`
	Unit        string    `gorm:"size:50;not null" json:"unit"` // sqm / piece
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

type Pricing struct {
	ID        uint64          `gorm:"primaryKey" json:"id"`
	JobTypeID uint64          `gorm:"not null;index" json:"job_type_id"`
	Rate      decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"rate"`
	RateUnit  string          `gorm:"size:50;not null" json:"rate_unit"`
	Active    bool            `gorm:"not null;default:true;index" json:"active"`
	CreatedAt time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null" json:"updated_at"`
}

func (Pricing) TableName() string { return "pricing" }

// PricingView is a pricing row joined with its job type.
type PricingView struct {
	ID          uint64          `json:"id"`
	JobTypeID   uint64          `json:"job_type_id"`
	JobTypeName string          `json:"job_type_name"`
	MachineType string          `json:"machine_type"`
	Unit        string          `json:"unit"`
	Rate        decimal.Decimal `json:"rate"`
	RateUnit    string          `json:"rate_unit"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// JobTypeRate is a job type offered to a worker, with its current rate if any.
type JobTypeRate struct {
	ID          uint64              `json:"id"`
	Name        string              `json:"name"`
	MachineType string              `json:"machine_type"`
	Unit        string              `json:"unit"`
	Rate        decimal.NullDecimal `json:"rate"`
	RateUnit    *string             `json:"rate_unit"`
}

// RateUnitFor is the pricing unit that matches a job type unit.
func RateUnitFor(unit string) (string, bool) {
	switch unit {
	case UnitSqm:
		return PerSqm, true
	case UnitPiece:
		return PerPiece, true
	}
	return "", false
}
