package payapi

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1", "100000000"},
		{"25", "2500000000"},
		{"0.5", "50000000"},
		{"0.00000001", "1"},
		{"123.45678901", "12345678901"},
	}
	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.in)
		require.NoError(t, err)
		got, err := ToBaseUnits(d)
		require.NoError(t, err, "amount %s", tc.in)
		assert.Equal(t, tc.want, got, "amount %s", tc.in)
	}
}

func TestToBaseUnitsRejectsNonPositive(t *testing.T) {
	for _, raw := range []string{"0", "-1", "-0.00000001"} {
		d := decimal.RequireFromString(raw)
		_, err := ToBaseUnits(d)
		assert.Error(t, err, "amount %s", raw)
	}
}

func TestToBaseUnitsRejectsTooManyDecimals(t *testing.T) {
	d := decimal.RequireFromString("0.000000001")
	_, err := ToBaseUnits(d)
	assert.Error(t, err)
}

func TestFromBaseUnitsRoundTrip(t *testing.T) {
	for _, raw := range []string{"0.00000001", "25", "19.99"} {
		d := decimal.RequireFromString(raw)
		base, err := ToBaseUnits(d)
		require.NoError(t, err)
		back, err := FromBaseUnits(base)
		require.NoError(t, err)
		assert.True(t, d.Equal(back), "round trip %s -> %s -> %s", raw, base, back)
	}
}

func TestFromBaseUnitsRejectsFractional(t *testing.T) {
	_, err := FromBaseUnits("12.5")
	assert.Error(t, err)
}
