package domain

import (
	"fmt"
	"math/big"
)

// BigInt carries an unsigned arbitrary-precision integer through JSON as a
// decimal string, so reserves and supplies never pass through a float.
type BigInt struct {
	big.Int
}

func NewBigInt(v *big.Int) *BigInt {
	b := &BigInt{}
	b.Set(v)
	return b
}

func NewBigIntFromUint64(v uint64) *BigInt {
	b := &BigInt{}
	b.SetUint64(v)
	return b
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + b.String() + `"`), nil
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("big integer must be a decimal string, got %s", data)
	}
	s := string(data[1 : len(data)-1])
	if _, ok := b.SetString(s, 10); !ok {
		return fmt.Errorf("invalid decimal integer %q", s)
	}
	if b.Sign() < 0 {
		return fmt.Errorf("negative value %q not allowed", s)
	}
	return nil
}
