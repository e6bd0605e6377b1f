package hubutil

import (
	"fmt"
	"math/big"
)

// Arithmetic on channel amounts.  Everything is base units (wei / bei) in
// big.Int; rates are big.Rat so nothing ever goes through a float.

var Zero = big.NewInt(0)

// BigMax returns the larger of a and b as a fresh value.
func BigMax(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// BigMin returns the smaller of a and b as a fresh value.
func BigMin(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// ClampZero returns a, or zero if a is negative.
func ClampZero(a *big.Int) *big.Int {
	if a.Sign() < 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Set(a)
}

// MulRatFloor computes floor(x * r).
func MulRatFloor(x *big.Int, r *big.Rat) *big.Int {
	p := new(big.Int).Mul(x, r.Num())
	return p.Div(p, r.Denom())
}

// DivRatFloor computes floor(x / r).
func DivRatFloor(x *big.Int, r *big.Rat) *big.Int {
	p := new(big.Int).Mul(x, r.Denom())
	return p.Div(p, r.Num())
}

// DivRatCeil computes ceil(x / r).
func DivRatCeil(x *big.Int, r *big.Rat) *big.Int {
	p := new(big.Int).Mul(x, r.Denom())
	q, m := new(big.Int).DivMod(p, r.Num(), new(big.Int))
	if m.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// MulFrac computes floor(x * num / den) for plain integer fractions,
// like the 0.5 / 2.5 collateral multipliers.
func MulFrac(x *big.Int, num, den int64) *big.Int {
	p := new(big.Int).Mul(x, big.NewInt(num))
	return p.Div(p, big.NewInt(den))
}

// ParseRate parses a decimal exchange rate string ("69.69") into a Rat.
func ParseRate(s string) (*big.Rat, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("bad exchange rate %q", s)
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("exchange rate %q not positive", s)
	}
	return r, nil
}

// ParseBig parses a base-10 amount string.  Empty means zero.
func ParseBig(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("bad amount %q", s)
	}
	return i, nil
}

// OrZero turns a nil amount into zero so callers can skip nil checks.
func OrZero(a *big.Int) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	return a
}
