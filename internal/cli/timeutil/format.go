// Package timeutil formats the daemon health timestamps for status output.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// localTimeFormat renders timestamps the way `caskfs status` displays them.
const localTimeFormat = "Mon Jan 2 15:04:05 2006"

// FormatUptime turns a Go duration string from the health endpoint (for
// example "72h30m15s") into a compact day-granular form like "3d 0h 30m 15s".
// Unparseable input is returned as-is.
func FormatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := (d - minutes*time.Minute) / time.Second

	var b strings.Builder
	if days > 0 {
		fmt.Fprintf(&b, "%dd ", days)
	}
	if days > 0 || hours > 0 {
		fmt.Fprintf(&b, "%dh ", hours)
	}
	if days > 0 || hours > 0 || minutes > 0 {
		fmt.Fprintf(&b, "%dm ", minutes)
	}
	fmt.Fprintf(&b, "%ds", seconds)
	return b.String()
}

// FormatTime converts an RFC3339 timestamp to local time for display.
// Unparseable input is returned as-is.
func FormatTime(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}
	return t.Local().Format(localTimeFormat)
}
