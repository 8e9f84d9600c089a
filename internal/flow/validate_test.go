package flow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidEmail(t *testing.T) {
	valid := []string{
		"user@example.com",
		"first.last+tag@sub.example.co",
		"  padded@example.com  ",
	}
	for _, e := range valid {
		assert.True(t, ValidEmail(e), "expected valid: %q", e)
	}

	invalid := []string{
		"",
		"plain",
		"@example.com",
		"user@",
		"user@nodot",
		"user @example.com",
	}
	for _, e := range invalid {
		assert.False(t, ValidEmail(e), "expected invalid: %q", e)
	}
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("25", AmountBounds{})
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("25")))

	// Comma decimal separator is accepted.
	d, err = ParseAmount("9,99", AmountBounds{})
	require.NoError(t, err)
	assert.True(t, d.Equal(decimal.RequireFromString("9.99")))
}

func TestParseAmountRejections(t *testing.T) {
	bounds := AmountBounds{
		Min:    decimal.RequireFromString("1"),
		Max:    decimal.RequireFromString("10000"),
		HasMin: true,
		HasMax: true,
	}

	for _, raw := range []string{"abc", "", "0", "-5", "0.5", "10001"} {
		_, err := ParseAmount(raw, bounds)
		require.Error(t, err, "amount %q", raw)
		var invalid *InvalidInputError
		assert.ErrorAs(t, err, &invalid, "amount %q must be an input violation", raw)
	}
}

func TestDetectNetwork(t *testing.T) {
	cases := []struct {
		addr string
		want string
	}{
		{"0x52908400098527886E0F7030069857D2E4169EE7", NetworkEthereum},
		{"TJRabPrwbZy45sbavfcjinPJC18kjpRTv8", NetworkTron},
		{"4Nd1mYvR6QZqS6mWwLmUzGwmKKCbYsKfJyDkRGTP3Xa2", NetworkSolana},
	}
	for _, tc := range cases {
		got, ok := DetectNetwork(tc.addr)
		require.True(t, ok, "address %q", tc.addr)
		assert.Equal(t, tc.want, got, "address %q", tc.addr)
	}

	_, ok := DetectNetwork("not-an-address")
	assert.False(t, ok)

	_, ok = DetectNetwork("0x123")
	assert.False(t, ok)
}
