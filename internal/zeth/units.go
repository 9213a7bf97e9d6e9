// units.go - Conversion between note values (zeth units) and ether amounts.

package zeth

import (
	"strings"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// WeiPerUnit is the public value of one zeth unit (1 szabo).
const WeiPerUnit = 1_000_000_000_000

const etherDecimals = 18

var (
	ErrValueFormat = errors.New("zeth: invalid ether value")
	ErrValueRange  = errors.New("zeth: value not representable in zeth units")

	weiPerUnit  = uint256.NewInt(WeiPerUnit)
	weiPerEther = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(etherDecimals))
)

// EtherValue is an amount of wei.
type EtherValue struct {
	wei uint256.Int
}

// Wei wraps an amount in wei.
func Wei(v *uint256.Int) EtherValue {
	var e EtherValue
	e.wei.Set(v)
	return e
}

// FromZethUnits converts a note value to ether.
func FromZethUnits(units uint64) EtherValue {
	var e EtherValue
	e.wei.Mul(uint256.NewInt(units), weiPerUnit)
	return e
}

// ToZethUnits fails unless the amount is a whole number of units that fits
// a note value.
func (e EtherValue) ToZethUnits() (uint64, error) {
	var q, r uint256.Int
	q.DivMod(&e.wei, weiPerUnit, &r)
	if !r.IsZero() {
		return 0, errors.Wrapf(ErrValueRange, "%s ether is not a whole number of units", e)
	}
	if !q.IsUint64() {
		return 0, errors.Wrapf(ErrValueRange, "%s ether overflows a note value", e)
	}
	return q.Uint64(), nil
}

// WeiAmount returns a copy of the amount in wei.
func (e EtherValue) WeiAmount() *uint256.Int { return new(uint256.Int).Set(&e.wei) }

// Add returns e + o, failing on overflow.
func (e EtherValue) Add(o EtherValue) (EtherValue, error) {
	var sum EtherValue
	if _, overflow := sum.wei.AddOverflow(&e.wei, &o.wei); overflow {
		return EtherValue{}, errors.Wrap(ErrValueRange, "sum overflows 256 bits")
	}
	return sum, nil
}

func (e EtherValue) Cmp(o EtherValue) int { return e.wei.Cmp(&o.wei) }

// String formats the amount in ether without trailing fractional zeros.
func (e EtherValue) String() string {
	var whole, frac uint256.Int
	whole.DivMod(&e.wei, weiPerEther, &frac)
	if frac.IsZero() {
		return whole.Dec()
	}
	digits := frac.Dec()
	digits = strings.Repeat("0", etherDecimals-len(digits)) + digits
	return whole.Dec() + "." + strings.TrimRight(digits, "0")
}

// ParseEther reads a decimal ether amount such as "1", "0.5" or "12.000001".
func ParseEther(s string) (EtherValue, error) {
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return EtherValue{}, errors.Wrapf(ErrValueFormat, "%q", s)
	}
	if len(frac) > etherDecimals {
		return EtherValue{}, errors.Wrapf(ErrValueFormat, "%q has more than %d decimals", s, etherDecimals)
	}
	for _, part := range []string{whole, frac} {
		if strings.IndexFunc(part, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
			return EtherValue{}, errors.Wrapf(ErrValueFormat, "%q", s)
		}
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", etherDecimals-len(frac)), "0")
	if digits == "" {
		return EtherValue{}, nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return EtherValue{}, errors.Wrapf(ErrValueFormat, "%q: %v", s, err)
	}
	return Wei(v), nil
}
