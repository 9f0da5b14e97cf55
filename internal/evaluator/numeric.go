package evaluator

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// numberPattern matches integers, decimals, and a/b fractions.
var numberPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?(?:/\d+)?`)

// relTolerance is the relative tolerance for numeric comparison.
const relTolerance = 0.01

// absTolerance is used when the correct value is zero, where a relative
// tolerance would demand an exact match.
const absTolerance = 0.01

// extractNumber finds the first numeric value in s, resolving a/b fractions.
// Returns false when s contains no parsable number.
func extractNumber(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	if num, den, ok := strings.Cut(m, "/"); ok {
		n, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0, false
		}
		d, err := strconv.ParseFloat(den, 64)
		if err != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// numbersMatch reports whether got is within tolerance of want.
func numbersMatch(got, want float64) bool {
	if want == 0 {
		return math.Abs(got) <= absTolerance
	}
	return math.Abs(got-want) <= relTolerance*math.Abs(want)
}
