package cart

import (
	"strings"

	"github.com/shopspring/decimal"
)

// WholeUnits rounds half-up to whole currency units for display.
func WholeUnits(d decimal.Decimal) string {
	return d.Round(0).String()
}

// Grouped renders d with the given places and comma thousands separators,
// e.g. 26500 -> "26,500.00".
func Grouped(d decimal.Decimal, places int32) string {
	raw := d.StringFixed(places)
	sign := ""
	if strings.HasPrefix(raw, "-") {
		sign, raw = "-", raw[1:]
	}
	intPart, frac := raw, ""
	if dot := strings.IndexByte(raw, '.'); dot >= 0 {
		intPart, frac = raw[:dot], raw[dot:]
	}

	var sb strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		sb.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(intPart[i : i+3])
	}
	return sign + sb.String() + frac
}

// ToMinorUnits converts naira to kobo.
func ToMinorUnits(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromMinorUnits converts kobo to naira.
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
