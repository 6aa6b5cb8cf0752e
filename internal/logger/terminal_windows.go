//go:build windows

package logger

// isTerminal reports false on Windows; the text handler simply skips color.
func isTerminal(uintptr) bool {
	return false
}
