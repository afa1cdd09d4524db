package quota

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DayKey returns the reporting day for the given instant. All instances
// report in UTC so counters agree across deployments.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// BuildKey addresses a usage counter by (day, caller identity, tier)
func BuildKey(day, identity, tier string) string {
	return fmt.Sprintf("usage:%s:%s:%s", day, identity, tier)
}

// CountWords counts whitespace-delimited tokens. The count is what gets
// charged against the daily budget, identically for every tier.
func CountWords(text string) int64 {
	return int64(len(strings.Fields(text)))
}

// FormatUsageHint encodes the client-visible usage cookie value
func FormatUsageHint(day string, used int64) string {
	return fmt.Sprintf("%s:%d", day, used)
}

// ParseUsageHint decodes a usage cookie value, returning zero for a value
// from another day or one that does not parse. The hint is advisory: it is
// only consulted when every counter backend is unreachable.
func ParseUsageHint(value, day string) int64 {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 || parts[0] != day {
		return 0
	}
	used, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || used < 0 {
		return 0
	}
	return used
}
