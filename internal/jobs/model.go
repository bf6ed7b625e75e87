package jobs

import (
	"time"

	"github.com/shopspring/decimal"
)

// Job is one print job. It is written once and never updated. WorkerID
// becomes NULL when the worker account is deleted; the job stays.
type Job struct {
	ID          uint64              `gorm:"primaryKey" json:"id"`
	WorkerID    *uint64             `gorm:"index" json:"worker_id"`
	MachineID   uint64              `gorm:"not null;index" json:"machine_id"`
	JobTypeID   uint64              `gorm:"not null;index" json:"job_type_id"`
	Description string              `gorm:"type:text;not null" json:"description"`
	WidthCm     decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"width_cm"`
	HeightCm    decimal.NullDecimal `gorm:"type:numeric(10,2)" json:"height_cm"`
	Quantity    *int64              `json:"quantity"`
	Rate        decimal.Decimal     `gorm:"type:numeric(10,2);not null" json:"rate"`
	Amount      decimal.Decimal     `gorm:"type:numeric(14,2);not null" json:"amount"`
	CreatedAt   time.Time           `gorm:"not null;index" json:"created_at"`
}

// JobView is a job joined with its job type and machine names.
type JobView struct {
	ID          uint64              `json:"id"`
	Description string              `json:"description"`
	JobTypeName string              `json:"job_type_name"`
	Unit        string              `json:"unit"`
	MachineName string              `json:"machine_name"`
	WidthCm     decimal.NullDecimal `json:"width_cm"`
	HeightCm    decimal.NullDecimal `json:"height_cm"`
	Quantity    *int64              `json:"quantity"`
	Rate        decimal.Decimal     `json:"rate"`
	Amount      decimal.Decimal     `json:"amount"`
	CreatedAt   time.Time           `json:"created_at"`
}

// JobTypeRef is the job type row the compatibility join returns.
type JobTypeRef struct {
	ID          uint64
	Name        string
	Unit        string
	MachineType string
}
