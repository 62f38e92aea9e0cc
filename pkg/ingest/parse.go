package ingest

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Reading is the outcome of parsing a numeric payload. OK is false when the payload
// does not start with a number or the number is not finite; Value is meaningless then.
type Reading struct {
	Value float64
	OK    bool
}

// ParseReading reads the leading decimal number of a payload after skipping leading
// whitespace, so "4.5 Richter" is 4.5 and "1_0" is 1. Hex forms and special values like
// "NaN" and "Infinity" do not count, and overflow to ±Inf is rejected.
func ParseReading(payload string) Reading {
	s := decimalPrefix(strings.TrimLeftFunc(payload, unicode.IsSpace))
	if s == "" {
		return Reading{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return Reading{}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}
	}
	return Reading{Value: v, OK: true}
}

// decimalPrefix returns the longest prefix of s matching
// [+-]? (digits [. digits?] | . digits) ([eE] [+-]? digits)?, or "" if none.
func decimalPrefix(s string) string {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	intDigits := digitsAt(s, i)
	i += intDigits
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		fracDigits = digitsAt(s, i+1)
		if intDigits > 0 || fracDigits > 0 {
			i += 1 + fracDigits
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return ""
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if n := digitsAt(s, j); n > 0 {
			i = j + n
		}
	}
	return s[:i]
}

func digitsAt(s string, i int) int {
	n := 0
	for i+n < len(s) && s[i+n] >= '0' && s[i+n] <= '9' {
		n++
	}
	return n
}
