// Package money holds the exact-decimal helpers shared by the normalizers,
// the balance consolidator and the presentation layer.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var (
	ErrEmpty      = errors.New("value is empty")
	ErrNotNumeric = errors.New("value is not numeric")
	ErrOutOfRange = errors.New("value is out of range")
)

// Bounds on accepted amounts. Arithmetic on decimals rescales to the
// smaller exponent, so an unbounded exponent costs unbounded CPU.
const (
	maxExponent = 18
	maxDigits   = 30
)

var (
	minInt64 = decimal.NewFromInt(math.MinInt64)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// Parse converts a loosely-typed JSON value into an exact decimal.
// Providers send amounts as JSON numbers or as strings; both are accepted.
// Floats are converted through their shortest decimal representation so that
// 0.1 stays 0.1.
func Parse(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, ErrEmpty
	case json.Number:
		return parseString(string(n))
	case string:
		return parseString(n)
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrNotNumeric, n)
		}
		return checkRange(decimal.NewFromFloat(n))
	case float32:
		if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
			return decimal.Zero, fmt.Errorf("%w: %v", ErrNotNumeric, n)
		}
		return checkRange(decimal.NewFromFloat32(n))
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case decimal.Decimal:
		return checkRange(n)
	default:
		return decimal.Zero, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}

func parseString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrEmpty
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrNotNumeric, s)
	}
	return checkRange(d)
}

// checkRange rejects amounts whose exponent or precision no real balance
// needs.
func checkRange(d decimal.Decimal) (decimal.Decimal, error) {
	exp := d.Exponent()
	if exp > maxExponent || exp < -maxExponent || d.NumDigits() > maxDigits {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrOutOfRange, d.String())
	}
	return d, nil
}

// IsValidCurrency reports whether code is a known ISO 4217 currency code.
func IsValidCurrency(code string) bool {
	if len(code) != 3 || strings.ToUpper(code) != code {
		return false
	}
	return gomoney.GetCurrency(code) != nil
}

// Fraction returns the number of minor-unit digits of the currency, 2 when
// the currency is unknown.
func Fraction(code string) int {
	if cur := gomoney.GetCurrency(code); cur != nil {
		return cur.Fraction
	}
	return 2
}

// Format renders amount using the currency's grapheme, separators and
// fraction digits, e.g. "$1,250.35". Unknown currencies fall back to a plain
// fixed-point string followed by the code.
func Format(amount decimal.Decimal, code string) string {
	cur := gomoney.GetCurrency(code)
	if cur == nil {
		if code == "" {
			return amount.StringFixed(2)
		}
		return amount.StringFixed(2) + " " + code
	}
	minor := amount.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction))
	if minor.LessThan(minInt64) || minor.GreaterThan(maxInt64) {
		// go-money counts in int64 minor units
		return amount.StringFixed(int32(cur.Fraction)) + " " + code
	}
	return cur.Formatter().Format(minor.IntPart())
}
