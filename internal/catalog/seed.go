package catalog

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"printshop/internal/calc"
)

type seedJobType struct {
	machineType string
	name        string
	unit        string
	rate        string
}

var defaultMachines = []Machine{
	{Name: "LARGE_FORMAT_PRINTER", Type: calc.LargeFormat, Status: StatusActive},
	{Name: "DIGITAL_COLOR_PRESS_700", Type: calc.DigitalPress, Status: StatusActive},
}

var defaultJobTypes = []seedJobType{
	{calc.LargeFormat, "Banner", UnitSqm, "50.00"},
	{calc.LargeFormat, "Vinyl Sticker", UnitSqm, "50.00"},
	{calc.LargeFormat, "Poster", UnitSqm, "50.00"},
	{calc.LargeFormat, "Canvas Print", UnitSqm, "50.00"},
	{calc.DigitalPress, "Business Cards", UnitPiece, "0.50"},
	{calc.DigitalPress, "Flyers", UnitPiece, "0.50"},
	{calc.DigitalPress, "Brochures", UnitPiece, "0.50"},
	{calc.DigitalPress, "Booklets", UnitPiece, "0.50"},
	{calc.DigitalPress, "A4 One-Sided", UnitPiece, "100.00"},
	{calc.DigitalPress, "A4 Back-to-Back", UnitPiece, "100.00"},
	{calc.DigitalPress, "A3 One-Sided", UnitPiece, "100.00"},
	{calc.DigitalPress, "A3 Back-to-Back", UnitPiece, "100.00"},
	{calc.DigitalPress, "Book", UnitPiece, "500.00"},
}

// Seed fills an empty catalog with the shop's machines, job types and a
// starting rate for each job type. Tables that already hold rows are left
// alone, so it is safe to run on every start.
func (s *Service) Seed(ctx context.Context) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Machine{}).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			ms := append([]Machine(nil), defaultMachines...)
			if err := tx.Create(&ms).Error; err != nil {
				return err
			}
			s.Log.WithField("machines", len(ms)).Info("machines seeded")
		}

		if err := tx.Model(&JobType{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		for _, d := range defaultJobTypes {
			jt := JobType{MachineType: d.machineType, Name: d.name, Unit: d.unit}
			if err := tx.Create(&jt).Error; err != nil {
				return err
			}
			unit, _ := RateUnitFor(jt.Unit)
			p := Pricing{JobTypeID: jt.ID, Rate: decimal.RequireFromString(d.rate), RateUnit: unit, Active: true}
			if err := tx.Create(&p).Error; err != nil {
				return err
			}
		}
		s.Log.WithField("job_types", len(defaultJobTypes)).Info("job types and pricing seeded")
		return nil
	})
}
