package codec

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Amount codec errors.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrAmountOutOfRange = errors.New("amount out of range")
)

var two64 = new(big.Int).Lsh(big.NewInt(1), 64)

// WideAmount is an amount in the source chain's smallest unit, split into the
// two 64-bit limbs the target contract's uint256-style parameter expects.
type WideAmount struct {
	Low  uint64 `json:"low"`
	High uint64 `json:"high"`
}

// AmountCodec converts between decimal amount strings (source-chain units)
// and the wide-integer limb representation. Min/max bounds come from
// configuration, never hardcoded here. Pure, no I/O.
type AmountCodec struct {
	minAmount *big.Rat
	maxAmount *big.Rat
}

// NewAmountCodec builds a codec with the configured bounds. Both bounds are
// decimal strings in source-chain units (e.g. "0.001", "1000").
func NewAmountCodec(minAmount, maxAmount string) (*AmountCodec, error) {
	min, ok := new(big.Rat).SetString(minAmount)
	if !ok || min.Sign() <= 0 {
		return nil, fmt.Errorf("invalid minimum amount bound: %q", minAmount)
	}
	max, ok := new(big.Rat).SetString(maxAmount)
	if !ok || max.Cmp(min) < 0 {
		return nil, fmt.Errorf("invalid maximum amount bound: %q", maxAmount)
	}
	return &AmountCodec{minAmount: min, maxAmount: max}, nil
}

// ToWideInteger scales a decimal amount string to an integer in the source
// chain's smallest unit (x 10^sourceDecimals, floor) and splits it into
// low/high limbs (low = value mod 2^64, high = value div 2^64).
func (c *AmountCodec) ToWideInteger(amount string, sourceDecimals int) (WideAmount, error) {
	value, err := c.scaleToBase(amount, sourceDecimals)
	if err != nil {
		return WideAmount{}, err
	}

	var low, high big.Int
	high.DivMod(value, two64, &low)
	if high.Cmp(two64) >= 0 {
		// Cannot happen for amounts inside the configured bounds; guard anyway.
		return WideAmount{}, fmt.Errorf("%w: exceeds 128 bits", ErrAmountOutOfRange)
	}

	return WideAmount{Low: low.Uint64(), High: high.Uint64()}, nil
}

// FromWideInteger reassembles the limbs and renders the amount as a decimal
// string with targetDecimals fractional digits, trailing zeros trimmed.
func (c *AmountCodec) FromWideInteger(wide WideAmount, targetDecimals int) string {
	value := new(big.Int).SetUint64(wide.High)
	value.Mul(value, two64)
	value.Add(value, new(big.Int).SetUint64(wide.Low))

	scale := pow10(targetDecimals)
	var whole, frac big.Int
	whole.DivMod(value, scale, &frac)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*s", targetDecimals, frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return whole.String() + "." + fracStr
}

// scaleToBase parses and validates the decimal string, applies the configured
// bounds, and returns the floored integer value in base units.
func (c *AmountCodec) scaleToBase(amount string, decimals int) (*big.Int, error) {
	trimmed := strings.TrimSpace(amount)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	// big.Rat accepts fractions, exponents and hex floats; the API surface
	// is plain decimal strings only.
	if strings.ContainsAny(trimmed, "/eE+xX_") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}

	if rat.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be positive", ErrAmountOutOfRange)
	}
	if rat.Cmp(c.minAmount) < 0 {
		return nil, fmt.Errorf("%w: below configured minimum %s", ErrAmountOutOfRange, c.minAmount.RatString())
	}
	if rat.Cmp(c.maxAmount) > 0 {
		return nil, fmt.Errorf("%w: above configured maximum %s", ErrAmountOutOfRange, c.maxAmount.RatString())
	}

	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(pow10(decimals)))
	// Floor per the wire contract: partial base units are not representable.
	value := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return value, nil
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
