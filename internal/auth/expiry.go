package auth

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

// DefaultTokenDuration applies when an expiry string cannot be parsed
const DefaultTokenDuration = 30 * 24 * time.Hour

var expiryPattern = regexp.MustCompile(`^(\d+)([dhms])$`)

var expiryUnits = map[string]time.Duration{
	"d": 24 * time.Hour,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

// ParseExpiry parses "<integer><unit>" with unit one of d, h, m, s.
// Anything else, including values that overflow, yields DefaultTokenDuration.
func ParseExpiry(s string) time.Duration {
	match := expiryPattern.FindStringSubmatch(s)
	if match == nil {
		return DefaultTokenDuration
	}

	n, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return DefaultTokenDuration
	}
	unit := expiryUnits[match[2]]
	if n > math.MaxInt64/int64(unit) {
		return DefaultTokenDuration
	}
	return time.Duration(n) * unit
}
