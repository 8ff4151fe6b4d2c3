package codec_test

import (
	"testing"

	"bridge-backend/internal/codec"

	"github.com/stretchr/testify/require"
)

func newTestAmountCodec(t *testing.T) *codec.AmountCodec {
	t.Helper()
	c, err := codec.NewAmountCodec("0.001", "1000")
	require.NoError(t, err)
	return c
}

func TestToWideInteger(t *testing.T) {
	c := newTestAmountCodec(t)

	tests := []struct {
		name     string
		amount   string
		decimals int
		low      uint64
		high     uint64
	}{
		{"one hundredth", "0.01", 8, 1000000, 0},
		{"whole coin", "1", 8, 100000000, 0},
		{"minimum bound", "0.001", 8, 100000, 0},
		{"max bound", "1000", 8, 100000000000, 0},
		{"floors sub-base-unit digits", "0.001000019", 8, 100001, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wide, err := c.ToWideInteger(tt.amount, tt.decimals)
			require.NoError(t, err)
			require.Equal(t, tt.low, wide.Low)
			require.Equal(t, tt.high, wide.High)
		})
	}
}

func TestToWideIntegerHighLimb(t *testing.T) {
	// With 18 target decimals a 25-coin amount crosses the 64-bit boundary.
	c, err := codec.NewAmountCodec("0.001", "100")
	require.NoError(t, err)

	wide, err := c.ToWideInteger("25", 18)
	require.NoError(t, err)
	require.Equal(t, uint64(6553255926290448384), wide.Low)
	require.Equal(t, uint64(1), wide.High)

	require.Equal(t, "25", c.FromWideInteger(wide, 18))
}

func TestToWideIntegerRejections(t *testing.T) {
	c := newTestAmountCodec(t)

	outOfRange := []string{"0", "-1", "0.0000001", "1000.00000001", "99999999"}
	for _, amount := range outOfRange {
		_, err := c.ToWideInteger(amount, 8)
		require.ErrorIs(t, err, codec.ErrAmountOutOfRange, "amount %q", amount)
	}

	invalid := []string{"", "  ", "abc", "1.2.3", "1e8", "0x10", "1/2"}
	for _, amount := range invalid {
		_, err := c.ToWideInteger(amount, 8)
		require.ErrorIs(t, err, codec.ErrInvalidAmount, "amount %q", amount)
	}
}

func TestAmountRoundTrip(t *testing.T) {
	c := newTestAmountCodec(t)

	// Round-trip law: fromWideInteger(toWideInteger(a)) == a for amounts
	// representable at the source precision.
	amounts := []string{"0.001", "0.01", "0.12345678", "1", "21.5", "999.99999999", "1000"}
	for _, amount := range amounts {
		wide, err := c.ToWideInteger(amount, 8)
		require.NoError(t, err)
		require.Equal(t, amount, c.FromWideInteger(wide, 8), "amount %q", amount)
	}
}
