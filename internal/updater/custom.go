package updater

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/papapumpkin/disperse/internal/version"
)

// Substitution tokens understood in Custom.NewLine.
const (
	tupledPlaceholder = "$TUPLED_VERSION"
	datePlaceholder   = "$DATE"
)

// Custom replaces the first line matching a project-defined pattern with a
// project-defined template, e.g. match `^__version__ = ` and new line
// `__version__ = "$VERSION"`.
type Custom struct {
	Match   string
	NewLine string
}

// Validate compiles the pattern and checks some line matches it.
func (c Custom) Validate(content []byte) error {
	re, err := c.compile()
	if err != nil {
		return err
	}
	if !strings.Contains(c.NewLine, version.Placeholder) && !strings.Contains(c.NewLine, tupledPlaceholder) {
		return fmt.Errorf("new_line %q has no %s or %s", c.NewLine, version.Placeholder, tupledPlaceholder)
	}
	for _, line := range strings.Split(string(content), "\n") {
		if re.MatchString(line) {
			return nil
		}
	}
	return fmt.Errorf("%w: no line matches %q", ErrNoMatches, c.Match)
}

// Update substitutes the new version into NewLine and swaps it in for the
// first matching line.
func (c Custom) Update(content []byte, v version.Version, releaseDate time.Time) ([]byte, error) {
	re, err := c.compile()
	if err != nil {
		return nil, err
	}
	replacement := strings.NewReplacer(
		tupledPlaceholder, v.Tuple(),
		version.Placeholder, v.String(),
		datePlaceholder, releaseDate.Format(time.DateOnly),
	).Replace(c.NewLine)

	lines := strings.SplitAfter(string(content), "\n")
	for i, line := range lines {
		body := strings.TrimRight(line, "\r\n")
		if !re.MatchString(body) {
			continue
		}
		lines[i] = replacement + line[len(body):]
		return []byte(strings.Join(lines, "")), nil
	}
	return nil, fmt.Errorf("%w: no line matches %q", ErrNoMatches, c.Match)
}

func (c Custom) compile() (*regexp.Regexp, error) {
	re, err := regexp.Compile(c.Match)
	if err != nil {
		return nil, fmt.Errorf("invalid match pattern %q: %w", c.Match, err)
	}
	return re, nil
}
