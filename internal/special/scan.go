package special

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// nextToken skips leading white space and splits off the first
// white-space-delimited token.
func nextToken(s string) (tok, rest string) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end < 0 {
		return s, ""
	}
	return s[:end], s[end:]
}

// parseNumbers fills dst from the white-space-separated tokens of s and
// returns how many entries were read. Each token contributes its longest
// numeric prefix. A token without one ends the list.
func parseNumbers(s string, dst []float64) int {
	n := 0
	for n < len(dst) {
		var tok string
		tok, s = nextToken(s)
		if tok == "" {
			break
		}
		v, ok := numericPrefix(tok)
		if !ok {
			break
		}
		dst[n] = v
		n++
	}
	return n
}

// numericPrefix parses the longest prefix of tok that forms a decimal
// floating point number, in the manner of C's strtod.
func numericPrefix(tok string) (float64, bool) {
	i := 0
	if i < len(tok) && (tok[i] == '+' || tok[i] == '-') {
		i++
	}
	digits := 0
	for i < len(tok) && isDigit(tok[i]) {
		i++
		digits++
	}
	if i < len(tok) && tok[i] == '.' {
		i++
		for i < len(tok) && isDigit(tok[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return 0, false
	}
	if i < len(tok) && (tok[i] == 'e' || tok[i] == 'E') {
		j := i + 1
		if j < len(tok) && (tok[j] == '+' || tok[j] == '-') {
			j++
		}
		if j < len(tok) && isDigit(tok[j]) {
			for j < len(tok) && isDigit(tok[j]) {
				j++
			}
			i = j
		}
	}
	v, err := strconv.ParseFloat(tok[:i], 64)
	if err != nil && !math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}
