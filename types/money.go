package types

import (
	"fmt"
	"strings"
)

// Money is an amount in the smallest currency unit (cents, pence).
// Arithmetic is integer-only.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"` // ISO 4217, lowercase
}

// NewMoney builds a Money value, normalizing the currency code.
func NewMoney(amount int64, currency string) Money {
	return Money{Amount: amount, Currency: strings.ToLower(currency)}
}

// USD creates a Money value in US cents.
func USD(cents int64) Money { return Money{Amount: cents, Currency: "usd"} }

// EUR creates a Money value in euro cents.
func EUR(cents int64) Money { return Money{Amount: cents, Currency: "eur"} }

// GBP creates a Money value in pence.
func GBP(pence int64) Money { return Money{Amount: pence, Currency: "gbp"} }

// Zero returns a zero amount in currency.
func Zero(currency string) Money { return NewMoney(0, currency) }

// SameCurrency reports whether both values use the same currency.
// A zero-valued Money with no currency matches anything.
func (m Money) SameCurrency(other Money) bool {
	if m.Currency == "" || other.Currency == "" {
		return true
	}
	return strings.EqualFold(m.Currency, other.Currency)
}

// Percent returns pct percent of m, rounded down.
func (m Money) Percent(pct int) Money {
	return Money{Amount: m.Amount * int64(pct) / 100, Currency: m.Currency}
}

// BasisPoints returns bps hundredths of a percent of m, rounded down.
func (m Money) BasisPoints(bps int64) Money {
	return Money{Amount: m.Amount * bps / 10000, Currency: m.Currency}
}

// Min returns the smaller amount, keeping m's currency.
func (m Money) Min(other Money) Money {
	if other.Amount < m.Amount {
		return Money{Amount: other.Amount, Currency: m.Currency}
	}
	return m
}

// SubtractFloor subtracts other from m and never goes below zero.
func (m Money) SubtractFloor(other Money) Money {
	out := m.Amount - other.Amount
	if out < 0 {
		out = 0
	}
	return Money{Amount: out, Currency: m.Currency}
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount == 0 }

// IsPositive reports whether the amount is greater than zero.
func (m Money) IsPositive() bool { return m.Amount > 0 }

// LessThan compares amounts. Currencies are not checked.
func (m Money) LessThan(other Money) bool { return m.Amount < other.Amount }

// String renders the amount in major units, e.g. "usd 49.00".
func (m Money) String() string {
	decimals := currencyDecimals(m.Currency)
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	if decimals == 0 {
		return fmt.Sprintf("%s %s%d", m.Currency, sign, amount)
	}
	return fmt.Sprintf("%s %s%d.%02d", m.Currency, sign, amount/100, amount%100)
}

func currencyDecimals(currency string) int {
	switch strings.ToLower(currency) {
	case "jpy", "krw", "vnd", "clp", "pyg", "idr":
		return 0
	default:
		return 2
	}
}
