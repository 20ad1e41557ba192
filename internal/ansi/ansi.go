// Package ansi provides ANSI escape code constants and helpers for terminal output.
// All colored/styled terminal output should reference these constants to avoid duplication.
package ansi

import "regexp"

// ANSI SGR (Select Graphic Rendition) codes.
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Yellow = "\033[33m"
	Green  = "\033[32m"
	Red    = "\033[31m"
	Cyan   = "\033[36m"
)

var sgr = regexp.MustCompile("\033\\[[0-9;]*m")

// Strip removes SGR sequences from s, leaving the plain text.
func Strip(s string) string {
	return sgr.ReplaceAllString(s, "")
}
