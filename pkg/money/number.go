package money

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a tolerant numeric value. Anything that cannot be read as a
// finite number (NaN, Inf, garbage strings, objects) is treated as zero.
// Demo and partially-filled upstream data flows through this type, so it
// never fails to decode.
type Number float64

var numberReplacer = strings.NewReplacer(",", "", "¥", "", "￥", "", "円", "", " ", "", "　", "")

// ParseNumber reads s as a number, ignoring thousands separators and yen marks.
func ParseNumber(s string) Number {
	s = numberReplacer.Replace(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return Number(f).finite()
}

// Float returns the value as float64, with non-finite values coerced to 0.
func (n Number) Float() float64 {
	return float64(n.finite())
}

func (n Number) finite() Number {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return n
}

// UnmarshalJSON accepts JSON numbers, numeric strings and null.
func (n *Number) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	switch {
	case raw == "" || raw == "null":
		*n = 0
	case raw[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*n = 0
			return nil
		}
		*n = ParseNumber(s)
	default:
		*n = ParseNumber(raw)
	}
	return nil
}

// MarshalJSON always emits a finite JSON number.
func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Float())
}

// Ptr is a helper for optional amounts.
func Ptr(v float64) *Number {
	n := Number(v)
	return &n
}
