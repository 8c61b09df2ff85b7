package config

import (
	"fmt"
	"strconv"
	"strings"
)

// sizeUnits maps a unit letter to its multiplier (powers of 1024).
var sizeUnits = map[byte]int64{
	'K': 1 << 10,
	'M': 1 << 20,
	'G': 1 << 30,
	'T': 1 << 40,
}

// ParseSize parses a byte count such as "512", "100K", "1.5G", "10MB" or
// "1MiB". Unit letters are case-insensitive and binary.
func ParseSize(s string) (int64, error) {
	num := strings.ToUpper(strings.TrimSpace(s))
	if num == "" {
		return 0, fmt.Errorf("empty size")
	}

	// Drop a trailing "IB" or "B" so only the unit letter remains.
	if trimmed, ok := strings.CutSuffix(num, "IB"); ok {
		num = trimmed
	} else {
		num = strings.TrimSuffix(num, "B")
	}

	mult := int64(1)
	if n := len(num); n > 0 {
		if m, ok := sizeUnits[num[n-1]]; ok {
			mult = m
			num = num[:n-1]
		}
	}
	if num == "" || strings.HasPrefix(num, "-") {
		return 0, fmt.Errorf("invalid size %q", s)
	}

	if n, err := strconv.ParseInt(num, 10, 64); err == nil {
		return n * mult, nil
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(f * float64(mult)), nil
}
