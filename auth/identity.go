// Package auth provides caller identities, the admin gate that guards graph mutations, and the
// signature scheme transports use to authenticate the caller of a mutating request.
package auth

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Identity is a 20 byte account address.
type Identity common.Address

// ErrInvalidIdentity is returned when an identity cannot be parsed.
var ErrInvalidIdentity = errors.New("auth: invalid identity")

// ParseIdentity parses a 0x prefixed hex address.
func ParseIdentity(s string) (Identity, error) {
	if !common.IsHexAddress(s) {
		return Identity{}, errors.Wrapf(ErrInvalidIdentity, "%q", s)
	}
	return Identity(common.HexToAddress(s)), nil
}

// IdentityFromBytes decodes a 20 byte identity.
func IdentityFromBytes(b []byte) (Identity, error) {
	if len(b) != common.AddressLength {
		return Identity{}, errors.Wrapf(ErrInvalidIdentity, "expected %d bytes, got %d", common.AddressLength, len(b))
	}
	return Identity(common.BytesToAddress(b)), nil
}

// Bytes returns the raw 20 bytes.
func (i Identity) Bytes() []byte {
	return common.Address(i).Bytes()
}

// IsZero reports whether i is the zero address.
func (i Identity) IsZero() bool {
	return i == Identity{}
}

// String returns the EIP-55 checksummed hex form.
func (i Identity) String() string {
	return common.Address(i).Hex()
}

func (i Identity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

func (i *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
