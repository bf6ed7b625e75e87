package report

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rows read from the store.

type JobRow struct {
	ID          uint64              `json:"id"`
	WorkerID    *uint64             `json:"worker_id"`
	WorkerName  *string             `json:"worker_name"`
	MachineID   uint64              `json:"machine_id"`
	MachineName string              `json:"machine_name"`
	JobTypeID   uint64              `json:"job_type_id"`
	JobTypeName string              `json:"job_type_name"`
	Unit        string              `json:"unit"`
	Description string              `json:"description"`
	WidthCm     decimal.NullDecimal `json:"width_cm"`
	HeightCm    decimal.NullDecimal `json:"height_cm"`
	Quantity    *int64              `json:"quantity"`
	Rate        decimal.Decimal     `json:"rate"`
	Amount      decimal.Decimal     `json:"amount"`
	CreatedAt   time.Time           `json:"created_at"`
}

type MachineRow struct {
	ID   uint64
	Name string
	Type string
}

type WorkerRow struct {
	ID          uint64
	Name        string
	Username    string
	MachineName *string
}

type JobTypeRow struct {
	ID          uint64
	Name        string
	MachineType string
	Unit        string
}

// Views.

type DailySummary struct {
	Date           string          `json:"date"`
	TotalJobs      int64           `json:"total_jobs"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	ActiveWorkers  int             `json:"active_workers"`
	ActiveMachines int             `json:"active_machines"`
}

type MachineSummary struct {
	MachineID    uint64          `json:"machine_id"`
	MachineName  string          `json:"machine_name"`
	MachineType  string          `json:"machine_type"`
	JobCount     int64           `json:"job_count"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

type WorkerSummary struct {
	WorkerID     uint64          `json:"worker_id"`
	WorkerName   string          `json:"worker_name"`
	Username     string          `json:"username"`
	MachineName  *string         `json:"machine_name"`
	JobCount     int64           `json:"job_count"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

type JobTypeSummary struct {
	JobTypeID      uint64          `json:"job_type_id"`
	JobTypeName    string          `json:"job_type_name"`
	MachineType    string          `json:"machine_type"`
	Unit           string          `json:"unit"`
	JobCount       int64           `json:"job_count"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	AverageRevenue decimal.Decimal `json:"average_amount"`
}

// Daily is every view for one date.
type Daily struct {
	Date     string           `json:"date"`
	Summary  DailySummary     `json:"summary"`
	Machines []MachineSummary `json:"machines"`
	Workers  []WorkerSummary  `json:"workers"`
	JobTypes []JobTypeSummary `json:"job_types"`
	Jobs     []JobRow         `json:"jobs"`
}
