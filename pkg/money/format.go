package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatYen renders d as "¥1,280,000". Fractions are kept as-is.
func FormatYen(d decimal.Decimal) string {
	s := d.String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := "¥" + b.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
