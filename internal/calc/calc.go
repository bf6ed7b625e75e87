// Package calc converts a job's machine type, dimensions and rate into the
// amount charged. It performs no I/O and uses exact decimal arithmetic so the
// same inputs always produce the same amount.
package calc

import (
	"github.com/shopspring/decimal"

	"printshop/internal/apperr"
)

const (
	LargeFormat  = "large_format"
	DigitalPress = "digital_press"
)

const (
	moneyPlaces   = 2
	measurePlaces = 4
)

var (
	ErrInvalidDimensions      = apperr.Validation("invalid_dimensions", "invalid dimensions: width and height must be positive numbers")
	ErrInvalidQuantity        = apperr.Validation("invalid_quantity", "invalid quantity: quantity must be a positive integer")
	ErrInvalidRate            = apperr.Validation("invalid_rate", "invalid rate: rate must be a positive number")
	ErrUnsupportedMachineType = apperr.Validation("unsupported_machine_type", "unsupported machine type")
)

// Dimensions holds whichever measurements the job type's unit requires:
// width and height for area-priced jobs, quantity for piece-priced jobs.
type Dimensions struct {
	WidthCm  decimal.NullDecimal
	HeightCm decimal.NullDecimal
	Quantity decimal.NullDecimal
}

// Result carries the amount plus the intermediate values it was derived from.
// Measurements are rounded to 4 places, money to 2.
type Result struct {
	WidthM   decimal.Decimal `json:"width_m"`
	HeightM  decimal.Decimal `json:"height_m"`
	Area     decimal.Decimal `json:"area"`
	Quantity int64           `json:"quantity,omitempty"`
	Rate     decimal.Decimal `json:"rate"`
	Amount   decimal.Decimal `json:"amount"`
}

// ComputeAmount dispatches on machine type.
func ComputeAmount(machineType string, d Dimensions, rate decimal.Decimal) (Result, error) {
	switch machineType {
	case LargeFormat:
		return LargeFormatAmount(d.WidthCm, d.HeightCm, rate)
	case DigitalPress:
		return DigitalPressAmount(d.Quantity, rate)
	default:
		return Result{}, ErrUnsupportedMachineType.WithMessage("unsupported machine type: " + machineType)
	}
}

// LargeFormatAmount prices by area: (width/100) * (height/100) * rate.
func LargeFormatAmount(widthCm, heightCm decimal.NullDecimal, rate decimal.Decimal) (Result, error) {
	if !widthCm.Valid || !widthCm.Decimal.IsPositive() {
		return Result{}, ErrInvalidDimensions.WithField("width_cm")
	}
	if !heightCm.Valid || !heightCm.Decimal.IsPositive() {
		return Result{}, ErrInvalidDimensions.WithField("height_cm")
	}
	if !rate.IsPositive() {
		return Result{}, ErrInvalidRate.WithField("rate")
	}

	widthM := widthCm.Decimal.Shift(-2)
	heightM := heightCm.Decimal.Shift(-2)
	area := widthM.Mul(heightM)

	return Result{
		WidthM:  widthM.Round(measurePlaces),
		HeightM: heightM.Round(measurePlaces),
		Area:    area.Round(measurePlaces),
		Rate:    rate.Round(moneyPlaces),
		Amount:  area.Mul(rate).Round(moneyPlaces),
	}, nil
}

// DigitalPressAmount prices by count: quantity * rate.
func DigitalPressAmount(quantity decimal.NullDecimal, rate decimal.Decimal) (Result, error) {
	q := quantity.Decimal
	if !quantity.Valid || !q.IsPositive() || !q.IsInteger() || !q.LessThanOrEqual(maxQuantity) {
		return Result{}, ErrInvalidQuantity.WithField("quantity")
	}
	if !rate.IsPositive() {
		return Result{}, ErrInvalidRate.WithField("rate")
	}

	return Result{
		Quantity: q.IntPart(),
		Rate:     rate.Round(moneyPlaces),
		Amount:   q.Mul(rate).Round(moneyPlaces),
	}, nil
}

// quantity column is a 32-bit integer in every supported dialect.
var maxQuantity = decimal.NewFromInt(2147483647)

// FitsPlaces reports whether d has no more than places fractional digits.
// Inputs stored in numeric(10,2) columns are rejected rather than rounded.
func FitsPlaces(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}
