package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an upper-case ISO 4217 code from the supported set.
type Currency string

// Supported currencies. EUR is the base currency of the rule table; every
// other amount in the system is derived from a EUR breakdown.
const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	PLN Currency = "PLN"
	CZK Currency = "CZK"
	SEK Currency = "SEK"
	DKK Currency = "DKK"
	CHF Currency = "CHF"
)

// currencyPrecision holds the number of decimal places per currency.
var currencyPrecision = map[Currency]int32{
	EUR: 2, USD: 2, GBP: 2, PLN: 2, CZK: 2, SEK: 2, DKK: 2, CHF: 2,
}

// defaultRates is the built-in EUR-based mid rate table, overridable per
// currency through configuration.
var defaultRates = map[Currency]float64{
	EUR: 1.0,
	USD: 1.08,
	GBP: 0.85,
	PLN: 4.30,
	CZK: 25.0,
	SEK: 11.5,
	DKK: 7.46,
	CHF: 0.95,
}

// NormalizeCurrencyCode maps a case-insensitive 3-letter code onto a supported
// Currency. It reports false for anything outside the supported set; callers
// treat an unresolved currency as "keep the prior one", so this never errors.
func NormalizeCurrencyCode(code string) (Currency, bool) {
	c := Currency(strings.ToUpper(strings.TrimSpace(code)))
	_, ok := currencyPrecision[c]
	return c, ok
}

// Precision returns the number of decimal places for a supported currency.
func Precision(c Currency) int32 {
	if p, ok := currencyPrecision[c]; ok {
		return p
	}
	return 2
}

// Converter turns EUR amounts into target-currency major and minor units.
// It is a pure configuration object; construct once and share.
type Converter struct {
	overrides map[Currency]float64
}

// NewConverter builds a converter from per-currency rate overrides, typically
// config.Config.FXOverrides. Non-positive overrides are ignored.
func NewConverter(overrides map[string]float64) *Converter {
	c := &Converter{overrides: make(map[Currency]float64, len(overrides))}
	for code, rate := range overrides {
		cur, ok := NormalizeCurrencyCode(code)
		if !ok || rate <= 0 || cur == EUR {
			continue
		}
		c.overrides[cur] = rate
	}
	return c
}

// Rate resolves the EUR→currency rate: 1.0 for EUR, then the configured
// override, then the built-in default table.
func (c *Converter) Rate(cur Currency) float64 {
	if cur == EUR {
		return 1.0
	}
	if c != nil {
		if rate, ok := c.overrides[cur]; ok {
			return rate
		}
	}
	if rate, ok := defaultRates[cur]; ok {
		return rate
	}
	return 1.0
}

// EURToMajor converts a EUR amount into the target currency's major units,
// rounded half-up at the currency's precision. Callers must not apply a
// second rounding pass to the result.
func (c *Converter) EURToMajor(amountEUR decimal.Decimal, cur Currency) decimal.Decimal {
	rate := decimal.NewFromFloat(c.Rate(cur))
	return amountEUR.Mul(rate).Round(Precision(cur))
}

// EURToMinor converts a EUR amount into the target currency's minor units.
// The minor amount is derived from the already-rounded major amount so that
// minor == round(major * 10^precision) holds exactly.
func (c *Converter) EURToMinor(amountEUR decimal.Decimal, cur Currency) int64 {
	return MajorToMinor(c.EURToMajor(amountEUR, cur), cur)
}

// MajorToMinor shifts an already-rounded major amount into minor units.
func MajorToMinor(major decimal.Decimal, cur Currency) int64 {
	return major.Shift(Precision(cur)).Round(0).IntPart()
}

// MinorToMajor shifts minor units back into major units.
func MinorToMajor(minor int64, cur Currency) decimal.Decimal {
	return decimal.NewFromInt(minor).Shift(-Precision(cur))
}
