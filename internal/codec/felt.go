package codec

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// starkPrime is the field modulus of the target chain: 2^251 + 17*2^192 + 1.
// Every value in a contract calldata slot must be a canonical element of this field.
var starkPrime, _ = new(big.Int).SetString(
	"800000000000011000000000000000000000000000000000000000000000001", 16)

// Felt is a single field element of the target chain's calling convention.
// The zero value is the zero element.
type Felt struct {
	value big.Int
}

// NewFeltFromBytes interprets b as a big-endian unsigned integer.
// b must be short enough that the result is already canonical (< prime);
// the codec never produces non-canonical inputs, so this is an error, not a reduction.
func NewFeltFromBytes(b []byte) (Felt, error) {
	var f Felt
	f.value.SetBytes(b)
	if f.value.Cmp(starkPrime) >= 0 {
		return Felt{}, fmt.Errorf("value does not fit in a field element: %d bytes", len(b))
	}
	return f, nil
}

// NewFeltFromHex parses a hex string (with or without 0x prefix) into a canonical felt.
func NewFeltFromHex(s string) (Felt, error) {
	if len(s) > 1 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return Felt{}, fmt.Errorf("invalid hex string")
	}
	if v.Sign() < 0 || v.Cmp(starkPrime) >= 0 {
		return Felt{}, fmt.Errorf("value is not a canonical field element")
	}
	var f Felt
	f.value.Set(v)
	return f, nil
}

// IsZero reports whether f is the zero element.
func (f Felt) IsZero() bool {
	return f.value.Sign() == 0
}

// Bytes returns the big-endian representation without leading zeros.
func (f Felt) Bytes() []byte {
	return f.value.Bytes()
}

// BigInt returns a copy of the underlying integer.
func (f Felt) BigInt() *big.Int {
	return new(big.Int).Set(&f.value)
}

// Hex returns the 0x-prefixed minimal hex encoding, the format the
// signer gateway expects in calldata arrays.
func (f Felt) Hex() string {
	return hexutil.EncodeBig(&f.value)
}

// String implements fmt.Stringer.
func (f Felt) String() string {
	return f.Hex()
}

// Equal reports whether two felts are the same element.
func (f Felt) Equal(other Felt) bool {
	return f.value.Cmp(&other.value) == 0
}
