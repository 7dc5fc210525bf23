package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// moneyExponent fixes every amount to two decimal places (cents).
const moneyExponent = -2

// moneyCtx is the arithmetic context for all Money operations.
// 34 digits is decimal128 precision, far beyond any till amount.
var moneyCtx = apd.BaseContext.WithPrecision(34)

// Money is a fixed-point decimal amount with two fractional digits.
// The zero value is 0.00.
//
// Money marshals to a JSON string ("3.50") and accepts both JSON strings and
// JSON numbers on input, since the central authority may send either.
type Money struct {
	d apd.Decimal
}

// ParseMoney parses a decimal string such as "3.5" or "7.20" and rounds it
// to two fractional digits.
func ParseMoney(s string) (Money, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Money{}, fmt.Errorf("parse money %q: not a finite number", s)
	}
	var m Money
	if _, err := moneyCtx.Quantize(&m.d, d, moneyExponent); err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return m, nil
}

// MustMoney is like ParseMoney but panics on error. Intended for tests and
// constants.
func MustMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// String returns the amount in plain notation with two fractional digits.
func (m Money) String() string {
	var q apd.Decimal
	if _, err := moneyCtx.Quantize(&q, &m.d, moneyExponent); err != nil {
		return m.d.Text('f')
	}
	return q.Text('f')
}

// Add returns m + o.
func (m Money) Add(o Money) (Money, error) {
	var r Money
	if _, err := moneyCtx.Add(&r.d, &m.d, &o.d); err != nil {
		return Money{}, fmt.Errorf("add money: %w", err)
	}
	return r, nil
}

// MulInt returns m * n.
func (m Money) MulInt(n int64) (Money, error) {
	var factor apd.Decimal
	factor.SetInt64(n)
	var r Money
	if _, err := moneyCtx.Mul(&r.d, &m.d, &factor); err != nil {
		return Money{}, fmt.Errorf("multiply money: %w", err)
	}
	return r, nil
}

// Cmp compares m and o and returns -1, 0 or +1.
func (m Money) Cmp(o Money) int {
	return m.d.Cmp(&o.d)
}

// Sign returns -1, 0 or +1 depending on the sign of m.
func (m Money) Sign() int {
	return m.d.Sign()
}

// MarshalJSON encodes the amount as a JSON string.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "3.50" as well as 3.5.
func (m *Money) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return fmt.Errorf("money: null is not an amount")
	}
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return fmt.Errorf("money: %w", err)
		}
	}
	parsed, err := ParseMoney(text)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
