package extract

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// cursor walks a line left to right. Each method consumes input only on success.
type cursor struct {
	s string
	i int
}

func (c *cursor) lit(p string) bool {
	if strings.HasPrefix(c.s[c.i:], p) {
		c.i += len(p)
		return true
	}
	return false
}

// space consumes exactly one whitespace byte.
func (c *cursor) space() bool {
	if c.i < len(c.s) && isSpace(c.s[c.i]) {
		c.i++
		return true
	}
	return false
}

// spaces consumes zero or more whitespace bytes and reports how many.
func (c *cursor) spaces() int {
	start := c.i
	for c.i < len(c.s) && isSpace(c.s[c.i]) {
		c.i++
	}
	return c.i - start
}

// number consumes a run of digits and dots.
func (c *cursor) number() (string, bool) {
	return c.run(func(b byte) bool { return isDigit(b) || b == '.' })
}

// digits consumes a run of decimal digits.
func (c *cursor) digits() (string, bool) {
	return c.run(isDigit)
}

// word consumes a possibly empty run of letters, digits and underscores.
func (c *cursor) word() string {
	w, _ := c.run(func(b byte) bool {
		return b == '_' || isDigit(b) || unicode.IsLetter(rune(b))
	})
	return w
}

func (c *cursor) run(ok func(byte) bool) (string, bool) {
	start := c.i
	for c.i < len(c.s) && ok(c.s[c.i]) {
		c.i++
	}
	return c.s[start:c.i], c.i > start
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\r' || b == '\n' || b == '\f' || b == '\v' }
func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// indexes returns every start offset of sub in s, last first. Matchers that
// emulate a greedy leading wildcard try the rightmost occurrence first.
func indexes(s, sub string) []int {
	var out []int
	for i := strings.LastIndex(s, sub); i >= 0; i = strings.LastIndex(s[:i+len(sub)-1], sub) {
		out = append(out, i)
	}
	return out
}

// parseFloat returns def when s is not a valid number.
func parseFloat(s string, def float32) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return def
	}
	return float32(v)
}

// parseUint returns def when s is not a valid unsigned integer.
func parseUint(s string, def uint32) uint32 {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return def
	}
	return uint32(v)
}

// toUint32 converts f the way a saturating cast would: NaN and negatives
// become 0, anything above the range becomes math.MaxUint32.
func toUint32(f float32) uint32 {
	switch {
	case math.IsNaN(float64(f)) || f <= 0:
		return 0
	case f >= math.MaxUint32:
		return math.MaxUint32
	}
	return uint32(f)
}
