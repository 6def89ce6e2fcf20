package racenet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseTime converts a colon-delimited race time ("h:mm:ss.fff",
// "mm:ss.fff", or "ss.fff") into seconds, preserving fractional seconds.
// Components are accumulated from the right: seconds, then minutes,
// then hours.
func ParseTime(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) == 0 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time format %q", s)
	}

	// reverse so parts[0] is always the seconds component
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	multipliers := [3]float64{1, 60, 3600}
	var total float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid time component %q in %q: %w", part, s, err)
		}
		total += v * multipliers[i]
	}
	return total, nil
}

// RoundMillis rounds a seconds value to millisecond precision. Stage deltas
// are differences of parsed floats and carry binary noise without it.
func RoundMillis(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}
