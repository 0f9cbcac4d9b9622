package printer

import (
	"time"

	"github.com/dustin/go-humanize"
)

// TimeAgo returns the time relative to now (e.g. "3 minutes ago").
func TimeAgo(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

// FormatTimestamp returns the timestamp in UTC, e.g. "2006-01-02 15:04:05 UTC".
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// FormatBytes returns a human size using binary units (e.g. "1.5 KiB").
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
