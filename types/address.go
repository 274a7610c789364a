package types

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const AddressLength = 32

// Address identifies an account on the ledger. Keyed addresses are ed25519
// public keys, derived addresses are off-curve hashes.
type Address [AddressLength]byte

// BytesToAddress copies b into an Address. If b is longer than 32 bytes it is
// cropped from the left.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress parses a 0x-prefixed, 64 hex digit address.
func HexToAddress(s string) (Address, error) {
	raw, err := hexutil.Decode(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return Address{}, fmt.Errorf("address %q has %d bytes, want %d", s, len(raw), AddressLength)
	}
	return BytesToAddress(raw), nil
}

func MustHexToAddress(s string) Address {
	a, err := HexToAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) Bytes() []byte { return a[:] }

func (a Address) Hex() string { return hexutil.Encode(a[:]) }

func (a Address) String() string { return a.Hex() }

func (a Address) IsZero() bool { return a == Address{} }

// Less orders addresses bytewise. The ledger takes account locks in this order.
func (a Address) Less(b Address) bool { return bytes.Compare(a[:], b[:]) < 0 }

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := HexToAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
