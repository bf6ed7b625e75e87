package calc

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printshop/internal/apperr"
)

func nd(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestLargeFormatBanner(t *testing.T) {
	res, err := ComputeAmount(LargeFormat, Dimensions{WidthCm: nd("200"), HeightCm: nd("100")}, d("50"))
	require.NoError(t, err)

	assert.True(t, res.Amount.Equal(d("100.00")), res.Amount.String())
	assert.True(t, res.Area.Equal(d("2")))
	assert.True(t, res.WidthM.Equal(d("2")))
	assert.True(t, res.HeightM.Equal(d("1")))
}

func TestDigitalPressFlyers(t *testing.T) {
	res, err := ComputeAmount(DigitalPress, Dimensions{Quantity: nd("500")}, d("0.5"))
	require.NoError(t, err)

	assert.Equal(t, "250.00", res.Amount.StringFixed(2))
	assert.Equal(t, int64(500), res.Quantity)
}

func TestLargeFormatRounding(t *testing.T) {
	// 0.333m x 0.333m = 0.110889 m2, * 7.77 = 0.86160753 -> 0.86
	res, err := LargeFormatAmount(nd("33.3"), nd("33.3"), d("7.77"))
	require.NoError(t, err)
	assert.Equal(t, "0.86", res.Amount.StringFixed(2))
	assert.Equal(t, "0.1109", res.Area.StringFixed(4))
	assert.Equal(t, "0.3330", res.WidthM.StringFixed(4))
}

func TestLargeFormatMatchesFormula(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	hundred := decimal.NewFromInt(100)
	for i := 0; i < 500; i++ {
		w := decimal.New(r.Int63n(100000)+1, -2)
		h := decimal.New(r.Int63n(100000)+1, -2)
		rate := decimal.New(r.Int63n(1000000)+1, -2)

		res, err := ComputeAmount(LargeFormat, Dimensions{
			WidthCm:  decimal.NewNullDecimal(w),
			HeightCm: decimal.NewNullDecimal(h),
		}, rate)
		require.NoError(t, err)

		want := w.Div(hundred).Mul(h.Div(hundred)).Mul(rate).Round(2)
		require.True(t, want.Equal(res.Amount), "w=%s h=%s rate=%s got=%s want=%s", w, h, rate, res.Amount, want)
	}
}

func TestDigitalPressMatchesFormula(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 500; i++ {
		q := decimal.NewFromInt(r.Int63n(100000) + 1)
		rate := decimal.New(r.Int63n(100000)+1, -3)

		res, err := ComputeAmount(DigitalPress, Dimensions{Quantity: decimal.NewNullDecimal(q)}, rate)
		require.NoError(t, err)
		require.True(t, q.Mul(rate).Round(2).Equal(res.Amount))
	}
}

func TestDeterministic(t *testing.T) {
	dims := Dimensions{WidthCm: nd("123.45"), HeightCm: nd("67.89")}
	a, err := ComputeAmount(LargeFormat, dims, d("12.34"))
	require.NoError(t, err)
	b, err := ComputeAmount(LargeFormat, dims, d("12.34"))
	require.NoError(t, err)
	assert.Equal(t, a.Amount.String(), b.Amount.String())
}

func TestRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		machine string
		dims    Dimensions
		rate    string
		want    error
		field   string
	}{
		{"zero width", LargeFormat, Dimensions{WidthCm: nd("0"), HeightCm: nd("10")}, "5", ErrInvalidDimensions, "width_cm"},
		{"negative height", LargeFormat, Dimensions{WidthCm: nd("10"), HeightCm: nd("-1")}, "5", ErrInvalidDimensions, "height_cm"},
		{"missing height", LargeFormat, Dimensions{WidthCm: nd("10")}, "5", ErrInvalidDimensions, "height_cm"},
		{"zero rate area", LargeFormat, Dimensions{WidthCm: nd("10"), HeightCm: nd("10")}, "0", ErrInvalidRate, "rate"},
		{"fractional quantity", DigitalPress, Dimensions{Quantity: nd("1.5")}, "5", ErrInvalidQuantity, "quantity"},
		{"zero quantity", DigitalPress, Dimensions{Quantity: nd("0")}, "5", ErrInvalidQuantity, "quantity"},
		{"missing quantity", DigitalPress, Dimensions{}, "5", ErrInvalidQuantity, "quantity"},
		{"huge quantity", DigitalPress, Dimensions{Quantity: nd("99999999999")}, "5", ErrInvalidQuantity, "quantity"},
		{"negative rate piece", DigitalPress, Dimensions{Quantity: nd("3")}, "-2", ErrInvalidRate, "rate"},
		{"unknown machine", "offset", Dimensions{Quantity: nd("3")}, "2", ErrUnsupportedMachineType, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeAmount(tc.machine, tc.dims, d(tc.rate))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			if tc.field != "" {
				ae, ok := apperr.As(err)
				require.True(t, ok)
				assert.Equal(t, tc.field, ae.Field)
			}
		})
	}
}
