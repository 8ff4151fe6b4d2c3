package codec

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// Address codec errors. These are local validation errors: the caller corrects
// the input and resubmits, no bridge transaction is ever created for them.
var (
	ErrInvalidAddressFormat      = errors.New("invalid address format")
	ErrUnsupportedAddressVariant = errors.New("unsupported address variant")
)

// Source address format tags. The tag is packed in front of the address
// payload so the felt preserves the address identity, not just a derived
// property, and the mapping stays invertible.
const (
	addrTagP2PKH  byte = 0x01
	addrTagP2SH   byte = 0x02
	addrTagP2WPKH byte = 0x03
)

// AddressCodec converts source-chain (Bitcoin) and target-chain addresses
// into the field elements the bridge contract's calling convention expects.
// Pure, no I/O.
type AddressCodec struct {
	params *chaincfg.Params
}

// NewAddressCodec creates a codec bound to one source-chain network.
// network is one of "mainnet", "testnet", "regtest" (config surface).
func NewAddressCodec(network string) (*AddressCodec, error) {
	var params *chaincfg.Params
	switch network {
	case "mainnet", "":
		params = &chaincfg.MainNetParams
	case "testnet":
		params = &chaincfg.TestNet3Params
	case "regtest":
		params = &chaincfg.RegressionNetParams
	default:
		return nil, fmt.Errorf("unknown source network %q", network)
	}
	return &AddressCodec{params: params}, nil
}

// EncodeSourceAddress validates a source-chain address and maps it to a single
// field element: big-endian integer of [formatTag || 20-byte payload].
// The payload is the hash160 (P2PKH/P2SH) or the witness program (P2WPKH).
//
// P2WSH is a recognized family but its 32-byte program does not fit in one
// felt together with the tag, so it is rejected as an unsupported variant
// rather than silently truncated.
func (c *AddressCodec) EncodeSourceAddress(address string) (Felt, error) {
	if address == "" {
		return Felt{}, ErrInvalidAddressFormat
	}

	decoded, err := btcutil.DecodeAddress(address, c.params)
	if err != nil {
		return Felt{}, fmt.Errorf("%w: %s", ErrInvalidAddressFormat, address)
	}
	if !decoded.IsForNet(c.params) {
		return Felt{}, fmt.Errorf("%w: wrong network", ErrInvalidAddressFormat)
	}

	var tag byte
	var payload []byte
	switch a := decoded.(type) {
	case *btcutil.AddressPubKeyHash:
		tag = addrTagP2PKH
		payload = a.Hash160()[:]
	case *btcutil.AddressScriptHash:
		tag = addrTagP2SH
		payload = a.Hash160()[:]
	case *btcutil.AddressWitnessPubKeyHash:
		tag = addrTagP2WPKH
		payload = a.WitnessProgram()
	case *btcutil.AddressWitnessScriptHash, *btcutil.AddressTaproot:
		// Valid bech32, payload too wide for a single felt slot.
		return Felt{}, fmt.Errorf("%w: %T", ErrUnsupportedAddressVariant, decoded)
	default:
		return Felt{}, fmt.Errorf("%w: %T", ErrUnsupportedAddressVariant, decoded)
	}

	if len(payload) != 20 {
		return Felt{}, fmt.Errorf("%w: %d-byte payload", ErrUnsupportedAddressVariant, len(payload))
	}

	packed := make([]byte, 0, 21)
	packed = append(packed, tag)
	packed = append(packed, payload...)

	felt, err := NewFeltFromBytes(packed)
	if err != nil {
		return Felt{}, fmt.Errorf("pack source address: %w", err)
	}
	return felt, nil
}

// DecodeSourceAddress reverses EncodeSourceAddress. Display/audit use only.
func (c *AddressCodec) DecodeSourceAddress(felt Felt) (string, error) {
	raw := felt.Bytes()
	if len(raw) != 21 {
		return "", fmt.Errorf("%w: %d-byte field element", ErrInvalidAddressFormat, len(raw))
	}

	tag, payload := raw[0], raw[1:]

	var addr btcutil.Address
	var err error
	switch tag {
	case addrTagP2PKH:
		addr, err = btcutil.NewAddressPubKeyHash(payload, c.params)
	case addrTagP2SH:
		addr, err = btcutil.NewAddressScriptHashFromHash(payload, c.params)
	case addrTagP2WPKH:
		addr, err = btcutil.NewAddressWitnessPubKeyHash(payload, c.params)
	default:
		return "", fmt.Errorf("%w: unknown format tag 0x%02x", ErrInvalidAddressFormat, tag)
	}
	if err != nil {
		return "", fmt.Errorf("rebuild source address: %w", err)
	}

	return addr.EncodeAddress(), nil
}

// EncodeDestinationAddress validates a target-chain address (fixed-width
// 64-hex-char, optional 0x prefix) and returns it as a field element.
// The zero address is rejected: the contract treats it as a burn sink.
func (c *AddressCodec) EncodeDestinationAddress(address string) (Felt, error) {
	if address == "" {
		return Felt{}, ErrInvalidAddressFormat
	}

	hexPart := address
	if len(hexPart) > 1 && (hexPart[0:2] == "0x" || hexPart[0:2] == "0X") {
		hexPart = hexPart[2:]
	}
	if len(hexPart) != 64 {
		return Felt{}, fmt.Errorf("%w: expected 64 hex chars, got %d", ErrInvalidAddressFormat, len(hexPart))
	}

	felt, err := NewFeltFromHex(hexPart)
	if err != nil {
		return Felt{}, fmt.Errorf("%w: %v", ErrInvalidAddressFormat, err)
	}
	if felt.IsZero() {
		return Felt{}, fmt.Errorf("%w: zero address", ErrInvalidAddressFormat)
	}
	return felt, nil
}
