package currency

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Base is the reference currency tier amounts are expressed in.
const Base = "USD"

// ratesPerUSD maps currency codes to local units per 1 USD.
var ratesPerUSD = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"KES": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("0.9"),
	"NGN": decimal.NewFromInt(1650),
	"GHS": decimal.NewFromInt(16),
	"IDR": decimal.NewFromInt(16000),
}

var supported = map[string]bool{
	"USD": true,
	"KES": true,
	"EUR": true,
	"NGN": true,
	"GHS": true,
}

// Normalize upper-cases and trims a currency code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Supported reports whether donations can be charged in the currency. IDR is
// only a settlement currency: Midtrans converts into it.
func Supported(code string) bool {
	return supported[Normalize(code)]
}

// rate returns units per USD; unknown codes convert 1:1.
func rate(code string) decimal.Decimal {
	if r, ok := ratesPerUSD[Normalize(code)]; ok {
		return r
	}
	return decimal.NewFromInt(1)
}

// Convert converts an amount between two currencies using the static table.
func Convert(amount decimal.Decimal, from, to string) decimal.Decimal {
	return amount.Div(rate(from)).Mul(rate(to))
}

// ToUSD converts a local amount to USD.
func ToUSD(amount decimal.Decimal, code string) decimal.Decimal {
	return Convert(amount, code, Base)
}

// Resolve returns the charge amount in the target currency. A custom amount
// overrides the tier when it parses to a finite positive number; anything
// else falls back to the tier. The result is never negative.
func Resolve(tierAmount decimal.Decimal, customAmount, target string) decimal.Decimal {
	base := tierAmount
	if custom, ok := parseCustom(customAmount); ok {
		base = custom
	}
	if base.IsNegative() {
		base = decimal.Zero
	}
	return Convert(base, Base, target).Round(2)
}

func parseCustom(raw string) (decimal.Decimal, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

var symbols = map[string]string{
	"USD": "$",
	"KES": "KES ",
	"EUR": "€",
	"NGN": "₦",
	"GHS": "GH₵",
	"IDR": "Rp ",
}

// Format renders an amount for display. KES, NGN and IDR have no minor units.
func Format(amount decimal.Decimal, code string) string {
	code = Normalize(code)
	symbol, ok := symbols[code]
	if !ok {
		symbol = code + " "
	}
	places := int32(2)
	if code == "KES" || code == "NGN" || code == "IDR" {
		places = 0
	}
	return fmt.Sprintf("%s%s", symbol, amount.StringFixed(places))
}

// MinorUnits converts an amount to the integer unit processors charge in.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
