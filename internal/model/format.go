package model

import (
	"math"
	"strconv"
	"strings"
)

// FormatDecimal renders v the way the reading producers print floats:
// shortest round-trip digits, always with a fractional part ("500.0",
// "399.5"), and exponent notation outside [1e-4, 1e16).
func FormatDecimal(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if abs := math.Abs(v); abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
