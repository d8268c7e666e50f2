// Package money holds currency rounding rules shared by billing and the payment gateways.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimal lists ISO 4217 currencies without a minor unit.
var zeroDecimal = map[string]bool{
	"IDR": true,
	"JPY": true,
	"KRW": true,
	"VND": true,
	"CLP": true,
	"XOF": true,
}

// Places returns the number of minor-unit digits for a currency.
func Places(currency string) int32 {
	if zeroDecimal[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// Round rounds half-up to the currency's minor unit.
func Round(amount decimal.Decimal, currency string) decimal.Decimal {
	return amount.Round(Places(currency))
}

// ToMinorUnits converts an amount to the smallest currency unit (cents, or whole rupiah).
func ToMinorUnits(amount decimal.Decimal, currency string) int64 {
	return Round(amount, currency).Shift(Places(currency)).IntPart()
}

func FromMinorUnits(units int64, currency string) decimal.Decimal {
	return decimal.NewFromInt(units).Shift(-Places(currency))
}

// Format renders an amount for invoices, e.g. "USD 1,234.50".
func Format(amount decimal.Decimal, currency string) string {
	places := Places(currency)
	fixed := Round(amount, currency).StringFixed(places)

	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, frac := fixed, ""
	if idx := strings.IndexByte(fixed, '.'); idx >= 0 {
		intPart, frac = fixed[:idx], fixed[idx:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%s%s", strings.ToUpper(currency), sign, b.String(), frac)
}
