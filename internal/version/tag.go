package version

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Placeholder is the token substituted by the version in tag templates.
const Placeholder = "$VERSION"

// ErrNoPlaceholder indicates a tag template without exactly one placeholder.
var ErrNoPlaceholder = errors.New("tag template must contain exactly one " + Placeholder)

// ValidateTagTemplate checks that template can be expanded. Call it when
// configuration is loaded, not at release time.
func ValidateTagTemplate(template string) error {
	if n := strings.Count(template, Placeholder); n != 1 {
		return fmt.Errorf("%w: %q has %d", ErrNoPlaceholder, template, n)
	}
	return nil
}

// ExpandTag substitutes v into a validated template. No other interpolation
// takes place.
func ExpandTag(template string, v Version) string {
	return strings.Replace(template, Placeholder, v.String(), 1)
}

// TagMatcher recognizes tag names produced by a template and recovers the
// version they carry.
type TagMatcher struct {
	re *regexp.Regexp
}

// NewTagMatcher compiles a matcher for template.
func NewTagMatcher(template string) (*TagMatcher, error) {
	if err := ValidateTagTemplate(template); err != nil {
		return nil, err
	}
	before, after, _ := strings.Cut(template, Placeholder)
	re, err := regexp.Compile("^" + regexp.QuoteMeta(before) + "(.+)" + regexp.QuoteMeta(after) + "$")
	if err != nil {
		return nil, fmt.Errorf("compiling tag pattern for %q: %w", template, err)
	}
	return &TagMatcher{re: re}, nil
}

// Match returns the version embedded in tag, or false if tag was not produced
// by the template or its version does not parse.
func (m *TagMatcher) Match(tag string) (Version, bool) {
	sub := m.re.FindStringSubmatch(tag)
	if sub == nil {
		return Version{}, false
	}
	v, err := Parse(sub[1], Tag)
	if err != nil {
		return Version{}, false
	}
	return v, true
}
