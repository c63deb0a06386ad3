package report

import (
	"math"
	"strconv"
	"time"
)

// formatCurrency renders a monetary amount with precision adapted to its
// magnitude: small values keep more significant decimals, values of ten and
// up get two. Nil and zero both render "N/A".
func formatCurrency(currency string, amount *float64) string {
	if amount == nil || *amount == 0 {
		return "N/A"
	}
	digits := 2
	if v := *amount; v > 0 && v < 10 {
		digits = -int(math.Floor(math.Log10(v))) + 3
	}
	sep := ""
	if len(currency) > 1 {
		sep = " "
	}
	return currency + sep + strconv.FormatFloat(*amount, 'f', digits, 64)
}

// formatUpDown renders a percent change with an explicit leading sign for
// positive values. Nil renders "N/A".
func formatUpDown(amount *float64) string {
	if amount == nil {
		return "N/A"
	}
	sign := ""
	if *amount > 0 {
		sign = "+"
	}
	return sign + strconv.FormatFloat(*amount, 'f', 2, 64) + "%"
}

// formatDate renders an RFC 3339 timestamp as a long-form date.
func formatDate(value string) string {
	if value == "" {
		return "N/A"
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return "N/A"
	}
	return t.Format("January 2, 2006")
}

// formatWhole renders a value with no decimals, for raw volume figures.
func formatWhole(v float64) string {
	return strconv.FormatFloat(v, 'f', 0, 64)
}
