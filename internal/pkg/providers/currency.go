package providers

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Minor-unit exponents that differ from the usual 2.
var currencyExponents = map[string]int32{
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0, "ISK": 0, "UGX": 0,
	"BHD": 3, "KWD": 3, "OMR": 3, "JOD": 3, "TND": 3,
}

func currencyExponent(currency string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// MinorToMajor converts 10050 INR to 100.50.
func MinorToMajor(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -currencyExponent(currency))
}

// MajorToMinor converts a major-unit decimal back, truncating sub-minor digits.
func MajorToMinor(amount decimal.Decimal, currency string) int64 {
	return amount.Shift(currencyExponent(currency)).Truncate(0).IntPart()
}
