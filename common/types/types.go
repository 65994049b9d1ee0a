package types

import (
	"fmt"
	"math/big"
)

// BigInt is a big number represented by a decimal string, used for monetary
// amounts in the chain's native minor unit (wei). Amounts are never floats.
type BigInt string

// UnmarshalJSON implements json.Unmarshaler.
func (b *BigInt) UnmarshalJSON(input []byte) error {
	if len(input) > 2 && input[0] == '"' {
		input = input[1 : len(input)-1]
	}
	return b.UnmarshalText(input)
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *BigInt) UnmarshalText(input []byte) error {
	t := new(big.Int)
	if _, ok := t.SetString(string(input), 0); !ok {
		return fmt.Errorf("invalid big number: %s", input)
	}
	*b = BigInt(t.String())
	return nil
}

// Int parses the decimal string, zero when empty or malformed.
func (b BigInt) Int() *big.Int {
	if b == "" {
		return new(big.Int)
	}
	t, ok := new(big.Int).SetString(string(b), 10)
	if !ok {
		return new(big.Int)
	}
	return t
}

// Cmp compares b and other as big numbers.
func (b BigInt) Cmp(other BigInt) int {
	return b.Int().Cmp(other.Int())
}

// FromBig converts a big number to its decimal string form.
func FromBig(i *big.Int) BigInt {
	if i == nil {
		return "0"
	}
	return BigInt(i.Text(10))
}
