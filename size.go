package jobeff

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Bytes is a size in bytes, used for download limits.
type Bytes int64

var sizeUnits = map[string]int64{
	"":    1,
	"b":   1,
	"k":   1 << 10,
	"kb":  1 << 10,
	"kib": 1 << 10,
	"m":   1 << 20,
	"mb":  1 << 20,
	"mib": 1 << 20,
	"g":   1 << 30,
	"gb":  1 << 30,
	"gib": 1 << 30,
	"t":   1 << 40,
	"tb":  1 << 40,
	"tib": 1 << 40,
}

// ParseBytes parses sizes like "512", "20kb" or "1 GiB". Units are always
// powers of two.
func ParseBytes(in string) (Bytes, error) {
	s := strings.TrimSpace(in)
	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r)
	})
	if split == -1 {
		split = len(s)
	}
	value, err := strconv.ParseInt(s[:split], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse size %q: %w", in, err)
	}
	unit := strings.ToLower(strings.TrimSpace(s[split:]))
	mult, found := sizeUnits[unit]
	if !found {
		return 0, fmt.Errorf("failed to parse size %q: unknown unit %q", in, unit)
	}
	if value > math.MaxInt64/mult {
		return 0, fmt.Errorf("failed to parse size %q: does not fit in int64", in)
	}
	return Bytes(value * mult), nil
}

func (b Bytes) String() string {
	switch {
	case b < 1<<10:
		return fmt.Sprintf("%d B", int64(b))
	case b < 1<<20:
		return fmt.Sprintf("%.2f KiB", float64(b)/(1<<10))
	case b < 1<<30:
		return fmt.Sprintf("%.2f MiB", float64(b)/(1<<20))
	case b < 1<<40:
		return fmt.Sprintf("%.2f GiB", float64(b)/(1<<30))
	}
	return fmt.Sprintf("%.2f TiB", float64(b)/(1<<40))
}
