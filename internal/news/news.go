// Package news reads and updates NEWS-style changelogs, where the top entry
// names the next version and is marked UNRELEASED until the release happens.
//
// Recognised entry header lines:
//
//	0.4.0	2024-02-01
//	0.4.0 (2024-02-01)
//	0.4.0 2024-02-01
//	0.4.0
//
// An optional "Changelog for NAME" title followed by an underline and blank
// lines is skipped.
package news

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Unreleased marks the pending entry in either the version or date column.
const Unreleased = "UNRELEASED"

var (
	// ErrNoUnreleasedChanges indicates the top entry is already released.
	ErrNoUnreleasedChanges = errors.New("no unreleased changes")
	// ErrPendingExists indicates the top entry is already pending.
	ErrPendingExists = errors.New("pending entry already exists")
	// ErrEmpty indicates the file has no entries at all.
	ErrEmpty = errors.New("no entries in news file")
	// ErrUnexpectedVersion indicates the pending entry names another version.
	ErrUnexpectedVersion = errors.New("unexpected pending version")
)

// OddVersionError reports a version column that is not a plain dotted number.
type OddVersionError struct {
	Version string
}

// Error quotes the offending version column.
func (e *OddVersionError) Error() string {
	return fmt.Sprintf("odd version in news file: %q", e.Version)
}

var plainVersion = regexp.MustCompile(`^[0-9.]+$`)

// Entry is a parsed entry header line.
type Entry struct {
	Version string
	Date    string
	Pending bool
	layout  lineLayout
}

type lineLayout int

const (
	layoutTab lineLayout = iota
	layoutParen
	layoutSpace
	layoutBare
)

func (l lineLayout) format(version, date string) string {
	switch l {
	case layoutTab:
		return version + "\t" + date
	case layoutParen:
		return version + " (" + date + ")"
	case layoutSpace:
		return version + " " + date
	default:
		return version
	}
}

// parseEntry parses a header line. An odd version column yields
// *OddVersionError alongside the populated entry.
func parseEntry(line string) (Entry, error) {
	line = strings.TrimSpace(line)
	var e Entry
	switch {
	case strings.Contains(line, "\t"):
		e.Version, e.Date, _ = strings.Cut(line, "\t")
		e.layout = layoutTab
	case strings.Contains(line, " "):
		e.Version, e.Date, _ = strings.Cut(line, " ")
		if strings.HasPrefix(e.Date, "(") && strings.HasSuffix(e.Date, ")") {
			e.Date = e.Date[1 : len(e.Date)-1]
			e.layout = layoutParen
		} else {
			e.layout = layoutSpace
		}
	default:
		e.Version = line
		e.layout = layoutBare
	}
	e.Pending = e.Version == Unreleased || e.Date == Unreleased
	if e.Version != Unreleased && !plainVersion.MatchString(e.Version) {
		return e, &OddVersionError{Version: e.Version}
	}
	return e, nil
}

func splitLines(content []byte) []string {
	return strings.SplitAfter(string(content), "\n")
}

// skipHeader returns the index of the first entry line.
func skipHeader(lines []string) int {
	i := 0
	if i < len(lines) && strings.HasPrefix(lines[i], "Changelog for ") {
		i++
		if i < len(lines) && strings.HasPrefix(lines[i], "======") {
			i++
		}
		for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
			i++
		}
	}
	return i
}

func isEntryLine(line string) bool {
	return strings.TrimSpace(line) != "" && !strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "\t")
}

func topEntry(lines []string) (int, error) {
	i := skipHeader(lines)
	if i >= len(lines) || strings.TrimSpace(lines[i]) == "" {
		return 0, ErrEmpty
	}
	return i, nil
}

// FindPending returns the version of the pending top entry. It fails with
// ErrNoUnreleasedChanges if the top entry is released and with
// *OddVersionError if the version column does not parse.
func FindPending(content []byte) (string, error) {
	lines := splitLines(content)
	i, err := topEntry(lines)
	if err != nil {
		return "", err
	}
	e, err := parseEntry(lines[i])
	if err != nil {
		return "", err
	}
	if !e.Pending {
		return "", ErrNoUnreleasedChanges
	}
	return e.Version, nil
}

// FindLastReleased returns the version of the newest released entry. Lines
// that do not parse as entry headers are skipped.
func FindLastReleased(content []byte) (string, error) {
	lines := splitLines(content)
	start, err := topEntry(lines)
	if err != nil {
		return "", err
	}
	for _, line := range lines[start:] {
		if !isEntryLine(line) {
			continue
		}
		e, err := parseEntry(line)
		if err != nil {
			continue
		}
		if !e.Pending {
			return e.Version, nil
		}
	}
	return "", ErrEmpty
}

// MarkReleased stamps the pending top entry with releaseDate. The entry must
// name expected. It returns the new content and the entry's change lines.
func MarkReleased(content []byte, expected string, releaseDate time.Time) ([]byte, string, error) {
	lines := splitLines(content)
	i, err := topEntry(lines)
	if err != nil {
		return nil, "", err
	}
	e, err := parseEntry(lines[i])
	if err != nil {
		return nil, "", err
	}
	if !e.Pending {
		return nil, "", ErrNoUnreleasedChanges
	}
	if e.Version != expected {
		return nil, "", fmt.Errorf("%w: %s != %s", ErrUnexpectedVersion, e.Version, expected)
	}

	var changes strings.Builder
	for _, line := range lines[i+1:] {
		if isEntryLine(line) {
			break
		}
		changes.WriteString(line)
	}

	lines[i] = e.layout.format(e.Version, releaseDate.Format(time.DateOnly)) + "\n"
	return []byte(strings.Join(lines, "")), changes.String(), nil
}

// AddPending inserts a new pending entry for version above the top entry,
// reusing the top entry's layout. A bare top entry has no date column to
// hold the UNRELEASED marker, so the new entry uses the space layout.
func AddPending(content []byte, version string) ([]byte, error) {
	lines := splitLines(content)
	i, err := topEntry(lines)
	if err != nil {
		return nil, err
	}
	e, err := parseEntry(lines[i])
	if err != nil {
		return nil, err
	}
	if e.Pending {
		return nil, fmt.Errorf("%w: %s %s", ErrPendingExists, e.Version, e.Date)
	}
	layout := e.layout
	if layout == layoutBare {
		layout = layoutSpace
	}
	entry := layout.format(version, Unreleased) + "\n"
	out := make([]string, 0, len(lines)+2)
	out = append(out, lines[:i]...)
	out = append(out, entry, "\n")
	out = append(out, lines[i:]...)
	return []byte(strings.Join(out, "")), nil
}
