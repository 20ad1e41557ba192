// Package version models release version numbers: parsing in the dialects
// found in manifests and tag names, ordering, and component arithmetic.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Sentinel errors for version parsing and arithmetic.
var (
	// ErrMalformed indicates a version string that does not fit the grammar.
	ErrMalformed = errors.New("malformed version")
	// ErrNoPriorVersion indicates a decrement would drive a component negative.
	ErrNoPriorVersion = errors.New("no prior version")
	// ErrIndexOutOfRange indicates an increment targeted a missing component.
	ErrIndexOutOfRange = errors.New("component index out of range")
)

// Dialect selects how tolerant Parse is about surrounding decoration.
type Dialect int

const (
	// Manifest is the dialect of package manifests: "1.2.3" or "1.2.3-rc1".
	Manifest Dialect = iota
	// Tag is the dialect of tag names, which may carry a "v" prefix.
	Tag
)

// ParseError describes why a string could not be parsed as a Version.
type ParseError struct {
	Input  string
	Reason string
}

// Error quotes the input and says why it was rejected.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed version %q: %s", e.Input, e.Reason)
}

// Unwrap lets callers match ParseError with errors.Is(err, ErrMalformed).
func (e *ParseError) Unwrap() error { return ErrMalformed }

// Version is an ordered sequence of numeric components with an optional
// pre-release suffix (after '-') and local suffix (after '+').
// Versions are values; operations never mutate their receiver.
type Version struct {
	Components []int
	Pre        string
	Local      string
}

// New builds a Version from numeric components.
func New(components ...int) Version {
	c := make([]int, len(components))
	copy(c, components)
	return Version{Components: c}
}

// Parse parses s according to the dialect.
func Parse(s string, d Dialect) (Version, error) {
	raw := s
	s = strings.TrimSpace(s)
	if d == Tag {
		s = strings.TrimPrefix(strings.TrimPrefix(s, "v"), "V")
	}
	if s == "" {
		return Version{}, &ParseError{Input: raw, Reason: "empty"}
	}

	var v Version
	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Local = s[i+1:]
		s = s[:i]
		if !validSuffix(v.Local) {
			return Version{}, &ParseError{Input: raw, Reason: "invalid local suffix"}
		}
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Pre = s[i+1:]
		s = s[:i]
		if !validSuffix(v.Pre) {
			return Version{}, &ParseError{Input: raw, Reason: "invalid pre-release suffix"}
		}
	}

	for _, part := range strings.Split(s, ".") {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return Version{}, &ParseError{Input: raw, Reason: fmt.Sprintf("component %q is not a plain integer", part)}
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, &ParseError{Input: raw, Reason: err.Error()}
		}
		v.Components = append(v.Components, n)
	}
	return v, nil
}

// MustParse is like Parse with the Manifest dialect but panics on error.
// It is intended for constants in tests and tables.
func MustParse(s string) Version {
	v, err := Parse(s, Manifest)
	if err != nil {
		panic(err)
	}
	return v
}

func validSuffix(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '.', r == '-':
		default:
			return false
		}
	}
	return true
}

// String formats the version back to its canonical manifest form.
func (v Version) String() string {
	var b strings.Builder
	for i, c := range v.Components {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(c))
	}
	if v.Pre != "" {
		b.WriteByte('-')
		b.WriteString(v.Pre)
	}
	if v.Local != "" {
		b.WriteByte('+')
		b.WriteString(v.Local)
	}
	return b.String()
}

// Tuple renders the numeric components the way Python sources declare
// version tuples, e.g. "(1, 2, 3)".
func (v Version) Tuple() string {
	parts := make([]string, len(v.Components))
	for i, c := range v.Components {
		parts[i] = strconv.Itoa(c)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// IsZero reports whether v has no components.
func (v Version) IsZero() bool { return len(v.Components) == 0 }

// Compare returns -1, 0 or +1. Components are compared pairwise with the
// shorter sequence padded with zeros, so 1.2 equals 1.2.0. A version with a
// pre-release suffix sorts before the same version without one. Local
// suffixes do not participate in ordering.
func Compare(a, b Version) int {
	n := max(len(a.Components), len(b.Components))
	for i := 0; i < n; i++ {
		x, y := component(a, i), component(b, i)
		if x != y {
			if x < y {
				return -1
			}
			return 1
		}
	}
	return comparePre(a.Pre, b.Pre)
}

func component(v Version, i int) int {
	if i < len(v.Components) {
		return v.Components[i]
	}
	return 0
}

func comparePre(a, b string) int {
	switch {
	case a == b:
		return 0
	case a == "":
		return 1
	case b == "":
		return -1
	}
	va, vb := "v0.0.0-"+a, "v0.0.0-"+b
	if semver.IsValid(va) && semver.IsValid(vb) {
		return semver.Compare(va, vb)
	}
	return strings.Compare(a, b)
}

// Equal reports whether a and b denote the same release.
func Equal(a, b Version) bool { return Compare(a, b) == 0 }

// SameLine reports whether a and b belong to the same line of development:
// every component except the lowest-order one agrees.
func SameLine(a, b Version) bool {
	n := max(len(a.Components), len(b.Components))
	for i := 0; i < n-1; i++ {
		if component(a, i) != component(b, i) {
			return false
		}
	}
	return true
}

// Increment adds delta to the component at index. A positive delta zeroes all
// lower-order components and drops any pre-release or local suffix. A
// negative delta leaves the other components alone and fails with
// ErrNoPriorVersion if the component would become negative.
func Increment(v Version, index, delta int) (Version, error) {
	if index < 0 || index >= len(v.Components) {
		return Version{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(v.Components))
	}
	out := New(v.Components...)
	n := out.Components[index] + delta
	if n < 0 {
		return Version{}, fmt.Errorf("%w: decrementing %s at component %d", ErrNoPriorVersion, v, index)
	}
	out.Components[index] = n
	if delta > 0 {
		for i := index + 1; i < len(out.Components); i++ {
			out.Components[i] = 0
		}
		return out, nil
	}
	out.Pre, out.Local = v.Pre, v.Local
	return out, nil
}

// Next returns the version after v, bumping the lowest-order component.
func Next(v Version) (Version, error) {
	return Increment(v, len(v.Components)-1, 1)
}

// Previous returns the version before v, decrementing the lowest-order
// component. It is an estimate: the result may never have been released.
func Previous(v Version) (Version, error) {
	return Increment(v, len(v.Components)-1, -1)
}
