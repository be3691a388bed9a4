package format

import (
	"fmt"
	"strings"
)

// minorUnits maps recognized ISO-4217 codes to their decimal digit count.
// Codes absent from this map are rejected at composition time.
var minorUnits = map[string]int{
	"USD": 2, "EUR": 2, "GBP": 2, "AUD": 2, "CAD": 2, "NZD": 2,
	"CHF": 2, "SEK": 2, "NOK": 2, "DKK": 2, "PLN": 2, "CZK": 2,
	"INR": 2, "SGD": 2, "HKD": 2, "MYR": 2, "THB": 2, "PHP": 2,
	"IDR": 2, "AED": 2, "SAR": 2, "ZAR": 2, "BRL": 2, "MXN": 2,
	"TRY": 2, "ILS": 2, "CNY": 2, "TWD": 2,
	"JPY": 0, "KRW": 0, "VND": 0, "CLP": 0,
	"BHD": 3, "KWD": 3, "OMR": 3,
}

// IsSupportedCurrency reports whether code is a recognized ISO-4217 code.
func IsSupportedCurrency(code string) bool {
	_, ok := minorUnits[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// FormatMoney renders an amount in minor units as "<CODE> <decimal>", e.g.
// 1000 INR -> "INR 10.00", 1000 JPY -> "JPY 1000". Unknown codes error so a
// renderer never emits a malformed figure.
func FormatMoney(amount int64, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	digits, ok := minorUnits[code]
	if !ok {
		return "", fmt.Errorf("unsupported currency %q", code)
	}
	if digits == 0 {
		return fmt.Sprintf("%s %d", code, amount), nil
	}

	negative := amount < 0
	if negative {
		amount = -amount
	}
	divisor := int64(1)
	for i := 0; i < digits; i++ {
		divisor *= 10
	}
	whole := amount / divisor
	frac := amount % divisor
	sign := ""
	if negative {
		sign = "-"
	}
	return fmt.Sprintf("%s %s%d.%0*d", code, sign, whole, digits, frac), nil
}
