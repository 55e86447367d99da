package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Amount
		wantErr error
	}{
		{name: "whole rupees", input: "10000", want: 1000000},
		{name: "paise", input: "10000.50", want: 1000050},
		{name: "single decimal", input: "0.5", want: 50},
		{name: "smallest unit", input: "0.01", want: 1},
		{name: "trailing zeros beyond scale", input: "1.2500", want: 125},
		{name: "negative", input: "-42.10", want: -4210},
		{name: "whitespace", input: "  7 ", want: 700},
		{name: "sub paisa", input: "0.001", wantErr: ErrSubMinorPrecision},
		{name: "empty", input: "", wantErr: ErrEmptyAmount},
		{name: "garbage", input: "12abc", wantErr: ErrInvalidAmount},
		{name: "overflow", input: "99999999999999999999", wantErr: ErrAmountOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromDecimal_NoFloatDrift(t *testing.T) {
	// 0.1 + 0.2 is the classic float failure; decimal input keeps it exact
	d := decimal.RequireFromString("0.1").Add(decimal.RequireFromString("0.2"))
	a, err := FromDecimal(d)
	require.NoError(t, err)
	assert.Equal(t, Amount(30), a)
}

func TestAmount_String(t *testing.T) {
	assert.Equal(t, "10000.00", FromMajor(10000).String())
	assert.Equal(t, "0.05", Amount(5).String())
	assert.Equal(t, "-12.34", Amount(-1234).String())
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, Amount(300), Min(300, 700))
	assert.Equal(t, Amount(300), Min(700, 300))
	assert.Equal(t, Amount(15), Sum(5, 5, 5))
	assert.Equal(t, Amount(9), Amount(-9).Abs())
	assert.True(t, Amount(1).IsPositive())
	assert.False(t, Amount(0).IsPositive())
	assert.ErrorIs(t, RequirePositive(0), ErrNonPositiveAmount)
	assert.NoError(t, RequirePositive(1))
	assert.Equal(t, Amount(1234), MustParse("12.34"))
	assert.Panics(t, func() { MustParse("x") })
}
