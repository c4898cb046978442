package ledger

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Fixed-point currency amount
// =============================================================================

// MoneyScale is the number of fractional digits kept for every amount.
const MoneyScale = 2

// Money is a currency amount held as a decimal rounded to cents.
// Sums of Money never drift the way float accumulation does.
type Money struct {
	Value decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{Value: decimal.Zero}

// NewMoney rounds value to cents.
func NewMoney(value decimal.Decimal) Money {
	return Money{Value: value.Round(MoneyScale)}
}

// NewMoneyFromFloat is a convenience for tests and literals. Do not use it
// to accumulate values.
func NewMoneyFromFloat(value float64) Money {
	return NewMoney(decimal.NewFromFloat(value))
}

// NewMoneyFromInt builds a whole amount. Integers have no fractional
// digits, so no rounding is needed.
func NewMoneyFromInt(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

// NewMoneyFromCents builds an amount from integer minor units.
func NewMoneyFromCents(cents int64) Money {
	return Money{Value: decimal.New(cents, -MoneyScale)}
}

// ParseMoney parses a decimal string such as "120", "99.5" or "1,250.00".
func ParseMoney(s string) (Money, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return NewMoney(d), nil
}

// MustParseMoney parses s or panics. Use for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money         { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money         { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Neg() Money                { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool              { return m.Value.IsZero() }
func (m Money) IsPositive() bool          { return m.Value.IsPositive() }
func (m Money) IsNegative() bool          { return m.Value.IsNegative() }
func (m Money) Equal(o Money) bool        { return m.Value.Equal(o.Value) }
func (m Money) GreaterThan(o Money) bool  { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool     { return m.Value.LessThan(o.Value) }
func (m Money) Cmp(o Money) int           { return m.Value.Cmp(o.Value) }
func (m Money) Cents() int64              { return m.Value.Shift(MoneyScale).Round(0).IntPart() }

func (m Money) Min(o Money) Money {
	if m.LessThan(o) {
		return m
	}
	return o
}

func (m Money) Max(o Money) Money {
	if m.GreaterThan(o) {
		return m
	}
	return o
}

// String renders the amount with exactly two decimals, e.g. "1250.00".
func (m Money) String() string {
	return m.Value.StringFixed(MoneyScale)
}

// Grouped renders the amount with thousands separators, e.g. "1,250.00".
func (m Money) Grouped() string {
	s := m.String()
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + b.String() + "." + frac
}

// MarshalJSON encodes the amount as a JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and numeric strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = Zero
		return nil
	}
	parsed, err := ParseMoney(string(bytes.Trim(data, `"`)))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
