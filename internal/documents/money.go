package documents

import (
	"math"
	"strconv"
	"strings"
)

// FormatMoney renders v with two decimals and an optional trailing currency
// code. Non-finite values render as "".
func FormatMoney(v float64, currency string) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	out := strconv.FormatFloat(v, 'f', 2, 64)
	if out == "-0.00" {
		out = "0.00"
	}
	if cur := strings.ToUpper(strings.TrimSpace(currency)); cur != "" {
		out += " " + cur
	}
	return out
}

// FormatMoneyString parses raw and formats it like FormatMoney. Unparsable
// input renders as "".
func FormatMoneyString(raw, currency string) string {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return ""
	}
	return FormatMoney(v, currency)
}

// FormatQuantity drops trailing zeros: 2 -> "2", 1.5 -> "1.5".
func FormatQuantity(q float64) string {
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return ""
	}
	return strconv.FormatFloat(q, 'f', -1, 64)
}
