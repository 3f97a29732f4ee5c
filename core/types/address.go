package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account or contract within the protocol state.
type Address [20]byte

// Hex renders the address as a lowercase hex string with 0x prefix.
func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string { return a.Hex() }

// IsZero reports whether the address is the zero value.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// AddressFromHex parses a 20-byte hex address, accepting an optional 0x prefix.
func AddressFromHex(s string) (Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("address: invalid hex %q: %w", s, err)
	}
	if len(raw) != 20 {
		return Address{}, fmt.Errorf("address: expected 20 bytes, got %d", len(raw))
	}
	var addr Address
	copy(addr[:], raw)
	return addr, nil
}

// BytesToAddress converts a byte slice to an Address, truncating or left-padding
// as needed to match the fixed width.
func BytesToAddress(b []byte) Address {
	var addr Address
	if len(b) > len(addr) {
		b = b[len(b)-len(addr):]
	}
	copy(addr[len(addr)-len(b):], b)
	return addr
}
