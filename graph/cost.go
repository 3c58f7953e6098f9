package graph

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// ErrCostOverflow is returned when a value does not fit in 128 bits.
var ErrCostOverflow = errors.New("graph: cost exceeds 128 bits")

// costSize is the width of an encoded cost in bytes.
const costSize = 16

// Cost is an unsigned 128-bit fee amount in the smallest unit of the native asset.
type Cost struct {
	v uint256.Int
}

// MaxCost is the largest representable cost (2^128 - 1). Route selection treats
// edges without a stored cost as costing MaxCost.
var MaxCost = Cost{v: uint256.Int{^uint64(0), ^uint64(0), 0, 0}}

// NewCost returns a cost holding v.
func NewCost(v uint64) Cost {
	var c Cost
	c.v.SetUint64(v)
	return c
}

// ParseCost parses a base 10 cost.
func ParseCost(s string) (Cost, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Cost{}, errors.Wrapf(err, "invalid cost %q", s)
	}
	if v.BitLen() > 128 {
		return Cost{}, errors.Wrapf(ErrCostOverflow, "invalid cost %q", s)
	}
	return Cost{v: *v}, nil
}

// CostFromBytes decodes a 16 byte big-endian cost.
func CostFromBytes(b []byte) (Cost, error) {
	if len(b) != costSize {
		return Cost{}, fmt.Errorf("graph: encoded cost must be %d bytes, got %d", costSize, len(b))
	}
	var c Cost
	c.v.SetBytes(b)
	return c, nil
}

// Bytes returns the 16 byte big-endian encoding of the cost.
func (c Cost) Bytes() []byte {
	full := c.v.Bytes32()
	out := make([]byte, costSize)
	copy(out, full[32-costSize:])
	return out
}

// Cmp compares c and o and returns -1, 0 or +1.
func (c Cost) Cmp(o Cost) int {
	return c.v.Cmp(&o.v)
}

// IsZero reports whether the cost is zero.
func (c Cost) IsZero() bool {
	return c.v.IsZero()
}

// Uint64 returns the cost as a uint64 and whether it fit without truncation.
func (c Cost) Uint64() (uint64, bool) {
	return c.v.Uint64(), c.v.IsUint64()
}

// Add returns c + o. The sum saturates at MaxCost and the second result is true if it did.
func (c Cost) Add(o Cost) (Cost, bool) {
	var sum Cost
	sum.v.Add(&c.v, &o.v)
	if sum.v.BitLen() > 128 {
		return MaxCost, true
	}
	return sum, false
}

func (c Cost) String() string {
	return c.v.Dec()
}

// MarshalText encodes the cost as a decimal string so JSON and YAML keep full precision.
func (c Cost) MarshalText() ([]byte, error) {
	return []byte(c.v.Dec()), nil
}

// UnmarshalText decodes a decimal cost.
func (c *Cost) UnmarshalText(text []byte) error {
	parsed, err := ParseCost(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
