// Package catalog owns machines, job types and their pricing, and resolves
// the active rate of a job type.
package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"printshop/internal/apperr"
	"printshop/internal/calc"
	"printshop/internal/retry"
)

var (
	ErrNoActivePricing  = apperr.BusinessRule("no_active_pricing", "no active pricing for job type")
	ErrJobTypeNotFound  = apperr.NotFound("job_type_not_found", "job type not found")
	ErrPricingNotFound  = apperr.NotFound("pricing_not_found", "pricing not found")
	ErrMachineNotFound  = apperr.NotFound("machine_not_found", "machine not found")
	ErrRateUnitMismatch = apperr.Validation("rate_unit_mismatch", "rate unit does not match the job type unit")
	ErrInvalidRateUnit  = apperr.Validation("invalid_rate_unit", "rate unit must be per_sqm or per_piece")
	ErrNothingToUpdate  = apperr.Validation("nothing_to_update", "no fields to update")
	ErrInvalidMachine   = apperr.Validation("invalid_machine", "invalid machine")
)

type Service struct {
	DB    *gorm.DB
	Log   logrus.FieldLogger
	Retry retry.Policy
}

func NewService(db *gorm.DB, lg logrus.FieldLogger) *Service {
	return &Service{DB: db, Log: lg, Retry: retry.Default}
}

// GetActiveRate returns the rate of the active pricing row for jobTypeID.
func (s *Service) GetActiveRate(ctx context.Context, jobTypeID uint64) (decimal.Decimal, error) {
	active, err := s.activePricing(ctx, []uint64{jobTypeID})
	if err != nil {
		s.Log.WithError(err).WithField("job_type_id", jobTypeID).Error("get active rate")
		return decimal.Zero, err
	}
	p, ok := active[jobTypeID]
	if !ok {
		return decimal.Zero, ErrNoActivePricing
	}
	return p.Rate, nil
}

// activePricing resolves the active pricing row of each job type in ids.
// Rows are read in id order so the oldest active row wins if the uniqueness
// index is missing (MySQL has no partial indexes).
func (s *Service) activePricing(ctx context.Context, ids []uint64) (map[uint64]Pricing, error) {
	var rows []Pricing
	err := retry.Do(ctx, s.Retry, func() error {
		rows = rows[:0]
		return s.DB.WithContext(ctx).
			Where("job_type_id IN ? AND active = ?", ids, true).
			Order("id asc").
			Find(&rows).Error
	})
	if err != nil {
		return nil, err
	}
	return firstActive(rows), nil
}

func firstActive(rows []Pricing) map[uint64]Pricing {
	out := make(map[uint64]Pricing, len(rows))
	for _, p := range rows {
		if _, ok := out[p.JobTypeID]; !ok {
			out[p.JobTypeID] = p
		}
	}
	return out
}

func (s *Service) ListPricing(ctx context.Context) ([]PricingView, error) {
	var out []PricingView
	err := retry.Do(ctx, s.Retry, func() error {
		out = out[:0]
		return s.DB.WithContext(ctx).
			Table("pricing p").
			Select(`p.id, p.job_type_id, jt.name as job_type_name, jt.machine_type, jt.unit,
				p.rate, p.rate_unit, p.active, p.created_at, p.updated_at`).
			Joins("join job_types jt on jt.id = p.job_type_id").
			Order("jt.machine_type asc, jt.name asc, p.id asc").
			Scan(&out).Error
	})
	return out, err
}

type CreatePricingInput struct {
	JobTypeID uint64
	Rate      decimal.Decimal
	RateUnit  string
	Active    bool
}

// CreatePricing inserts a pricing row. An active row replaces the job type's
// previous active row in the same transaction.
func (s *Service) CreatePricing(ctx context.Context, in CreatePricingInput) (uint64, error) {
	if err := validateRate(in.Rate); err != nil {
		return 0, err
	}
	var id uint64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var jt JobType
		if err := tx.First(&jt, in.JobTypeID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrJobTypeNotFound.WithField("job_type_id")
			}
			return err
		}
		if err := checkRateUnit(jt, in.RateUnit); err != nil {
			return err
		}
		if in.Active {
			if err := deactivateOthers(tx, jt.ID, 0); err != nil {
				return err
			}
		}
		p := Pricing{JobTypeID: jt.ID, Rate: in.Rate, RateUnit: in.RateUnit, Active: in.Active}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		id = p.ID
		return nil
	})
	if err != nil {
		s.Log.WithError(err).WithFields(logrus.Fields{
			"job_type_id": in.JobTypeID,
			"rate":        in.Rate.String(),
			"rate_unit":   in.RateUnit,
			"active":      in.Active,
		}).Warn("create pricing failed")
		return 0, err
	}
	s.Log.WithFields(logrus.Fields{"pricing_id": id, "job_type_id": in.JobTypeID, "rate": in.Rate.String()}).Info("pricing created")
	return id, nil
}

type UpdatePricingInput struct {
	Rate   *decimal.Decimal
	Active *bool
}

func (s *Service) UpdatePricing(ctx context.Context, id uint64, in UpdatePricingInput) error {
	if in.Rate == nil && in.Active == nil {
		return ErrNothingToUpdate
	}
	updates := map[string]any{}
	if in.Rate != nil {
		if err := validateRate(*in.Rate); err != nil {
			return err
		}
		updates["rate"] = *in.Rate
	}
	if in.Active != nil {
		updates["active"] = *in.Active
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Pricing
		if err := tx.First(&p, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPricingNotFound
			}
			return err
		}
		if in.Active != nil && *in.Active {
			if err := deactivateOthers(tx, p.JobTypeID, p.ID); err != nil {
				return err
			}
		}
		return tx.Model(&p).Updates(updates).Error
	})
	if err != nil {
		return err
	}
	s.Log.WithFields(logrus.Fields{"pricing_id": id, "updates": updates}).Info("pricing updated")
	return nil
}

func (s *Service) DeactivatePricing(ctx context.Context, id uint64) error {
	off := false
	return s.UpdatePricing(ctx, id, UpdatePricingInput{Active: &off})
}

func deactivateOthers(tx *gorm.DB, jobTypeID, keepID uint64) error {
	return tx.Model(&Pricing{}).
		Where("job_type_id = ? AND active = ? AND id <> ?", jobTypeID, true, keepID).
		Update("active", false).Error
}

func validateRate(rate decimal.Decimal) error {
	if !rate.IsPositive() {
		return calc.ErrInvalidRate.WithField("rate")
	}
	if !calc.FitsPlaces(rate, 2) {
		return calc.ErrInvalidRate.WithField("rate").WithMessage("rate must have at most 2 decimal places")
	}
	return nil
}

func checkRateUnit(jt JobType, rateUnit string) error {
	if rateUnit != PerSqm && rateUnit != PerPiece {
		return ErrInvalidRateUnit.WithField("rate_unit")
	}
	want, ok := RateUnitFor(jt.Unit)
	if !ok || want != rateUnit {
		return ErrRateUnitMismatch.WithField("rate_unit")
	}
	return nil
}

// Machines

type CreateMachineInput struct {
	Name   string
	Type   string
	Status string
}

func (s *Service) CreateMachine(ctx context.Context, in CreateMachineInput) (Machine, error) {
	m, err := newMachine(in)
	if err != nil {
		return Machine{}, err
	}
	if err := s.DB.WithContext(ctx).Create(&m).Error; err != nil {
		return Machine{}, err
	}
	s.Log.WithFields(logrus.Fields{"machine_id": m.ID, "name": m.Name, "type": m.Type}).Info("machine created")
	return m, nil
}

func newMachine(in CreateMachineInput) (Machine, error) {
	m := Machine{
		Name:   strings.TrimSpace(in.Name),
		Type:   in.Type,
		Status: in.Status,
	}
	if m.Status == "" {
		m.Status = StatusActive
	}
	if m.Name == "" || len(m.Name) > 255 {
		return Machine{}, ErrInvalidMachine.WithField("name").WithMessage("machine name is required")
	}
	if m.Type != calc.LargeFormat && m.Type != calc.DigitalPress {
		return Machine{}, ErrInvalidMachine.WithField("type").WithMessage("machine type must be large_format or digital_press")
	}
	if m.Status != StatusActive && m.Status != StatusInactive {
		return Machine{}, ErrInvalidMachine.WithField("status").WithMessage("machine status must be active or inactive")
	}
	return m, nil
}

func (s *Service) ListMachines(ctx context.Context) ([]Machine, error) {
	var out []Machine
	err := retry.Do(ctx, s.Retry, func() error {
		return s.DB.WithContext(ctx).Order("name asc, id asc").Find(&out).Error
	})
	return out, err
}

// ListActiveMachines is the public machine list shown at registration.
func (s *Service) ListActiveMachines(ctx context.Context) ([]Machine, error) {
	var out []Machine
	err := retry.Do(ctx, s.Retry, func() error {
		return s.DB.WithContext(ctx).Where("status = ?", StatusActive).Order("name asc, id asc").Find(&out).Error
	})
	return out, err
}

func (s *Service) GetMachine(ctx context.Context, id uint64) (Machine, error) {
	var m Machine
	err := s.DB.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Machine{}, ErrMachineNotFound
	}
	return m, err
}

// Job types

func (s *Service) ListJobTypes(ctx context.Context) ([]JobType, error) {
	var out []JobType
	err := retry.Do(ctx, s.Retry, func() error {
		return s.DB.WithContext(ctx).Order("machine_type asc, name asc").Find(&out).Error
	})
	return out, err
}

// JobTypesForMachine lists the job types a machine can print, each with its
// active rate when one exists.
func (s *Service) JobTypesForMachine(ctx context.Context, machineID uint64) ([]JobTypeRate, error) {
	var types []JobType
	err := retry.Do(ctx, s.Retry, func() error {
		types = types[:0]
		return s.DB.WithContext(ctx).
			Select("job_types.*").
			Joins("join machines m on m.type = job_types.machine_type").
			Where("m.id = ?", machineID).
			Order("job_types.name asc").
			Find(&types).Error
	})
	if err != nil || len(types) == 0 {
		return nil, err
	}

	ids := make([]uint64, len(types))
	for i, jt := range types {
		ids[i] = jt.ID
	}
	active, err := s.activePricing(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]JobTypeRate, len(types))
	for i, jt := range types {
		out[i] = JobTypeRate{ID: jt.ID, Name: jt.Name, MachineType: jt.MachineType, Unit: jt.Unit}
		if p, ok := active[jt.ID]; ok {
			out[i].Rate = decimal.NewNullDecimal(p.Rate)
			out[i].RateUnit = &p.RateUnit
		}
	}
	return out, nil
}
