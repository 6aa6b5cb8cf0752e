// Package output renders caskfs CLI results as tables, JSON, or YAML.
//
// Table output is the human-facing default; JSON and YAML emit the raw
// resource for scripting, in which case callers suppress success chatter.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format selects how a command renders its result.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat maps the value of an -o/--output flag to a Format. An empty
// value means table, the default.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table":
		return FormatTable, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (valid: table, json, yaml)", s)
	}
}

// Success writes a confirmation line, green when color is on.
func Success(w io.Writer, color bool, msg string) {
	if color {
		fmt.Fprintf(w, "\033[32m%s\033[0m\n", msg)
		return
	}
	fmt.Fprintln(w, msg)
}
