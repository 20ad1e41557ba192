package updater

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/papapumpkin/disperse/internal/version"
)

const (
	titleDirective = ".TH"
	dateField      = 3
	sourceField    = 4
)

// dateRules are tried in order against the existing date field; the first
// match decides the layout the release date is rendered in.
var dateRules = []struct {
	pattern *regexp.Regexp
	layout  string
}{
	{regexp.MustCompile(`^20[0-9]{2}-[0-1][0-9]-[0-3][0-9]$`), "2006-01-02"},
	{regexp.MustCompile(`^[A-Za-z]+ [0-9]{4}$`), "January 2006"},
}

// sourcePattern matches "name version" inside the source field.
var sourcePattern = regexp.MustCompile(`([^ ]+) ([0-9][0-9A-Za-z.+-]*)`)

// Manpage updates the date and version fields of the .TH title header of a
// roff man page.
type Manpage struct{}

// Validate requires a .TH line whose source field carries the $VERSION
// placeholder.
func (Manpage) Validate(content []byte) error {
	for _, line := range strings.Split(string(content), "\n") {
		th, ok := parseTitleLine(strings.TrimRight(line, "\r"))
		if !ok {
			continue
		}
		if strings.Contains(th.fields[sourceField].value, version.Placeholder) {
			return nil
		}
	}
	return ErrNoMatches
}

// Update rewrites the first .TH line. The date keeps the layout it already
// had; the source field keeps its name token and gets the new version.
func (Manpage) Update(content []byte, v version.Version, releaseDate time.Time) ([]byte, error) {
	lines := strings.SplitAfter(string(content), "\n")
	for i, line := range lines {
		body := strings.TrimRight(line, "\r\n")
		th, ok := parseTitleLine(body)
		if !ok {
			continue
		}
		date, source := &th.fields[dateField], &th.fields[sourceField]
		newSource, ok := formatSource(source.value, v)
		if !ok {
			return nil, fmt.Errorf("%w: %s source field %q carries no version", ErrNoMatches, titleDirective, source.value)
		}
		date.set(formatDate(date.value, releaseDate))
		source.set(newSource)
		lines[i] = th.String() + line[len(body):]
		return []byte(strings.Join(lines, "")), nil
	}
	return nil, fmt.Errorf("%w: no %s line with at least %d fields", ErrNoMatches, titleDirective, sourceField+1)
}

func formatDate(current string, releaseDate time.Time) string {
	for _, rule := range dateRules {
		if rule.pattern.MatchString(current) {
			return releaseDate.Format(rule.layout)
		}
	}
	return current
}

// formatSource reports false when current has neither the placeholder nor
// a "name version" pair to rewrite.
func formatSource(current string, v version.Version) (string, bool) {
	if strings.Contains(current, version.Placeholder) {
		return strings.ReplaceAll(current, version.Placeholder, v.String()), true
	}
	loc := sourcePattern.FindStringSubmatchIndex(current)
	if loc == nil {
		return current, false
	}
	return current[:loc[4]] + v.String() + current[loc[5]:], true
}

// field is one token of a directive line. raw is the token as written,
// value its unquoted form, and lead the whitespace preceding it.
type field struct {
	lead   string
	raw    string
	value  string
	quoted bool
}

// set replaces the field value, re-quoting when the original was quoted or
// the new value would otherwise split into several tokens.
func (f *field) set(value string) {
	if value == f.value {
		return
	}
	f.value = value
	if f.quoted || value == "" || strings.ContainsAny(value, " \t\"\\'") {
		f.raw = `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value) + `"`
		f.quoted = true
		return
	}
	f.raw = value
}

// directive is a tokenized request line; trail holds whitespace after the
// last field.
type directive struct {
	fields []field
	trail  string
}

func (d directive) String() string {
	var b strings.Builder
	for _, f := range d.fields {
		b.WriteString(f.lead)
		b.WriteString(f.raw)
	}
	b.WriteString(d.trail)
	return b.String()
}

// parseTitleLine tokenizes a .TH line with shell quoting rules. It reports
// false for other lines, unbalanced quoting and headers with too few fields.
func parseTitleLine(line string) (directive, bool) {
	if !strings.HasPrefix(line, titleDirective+" ") {
		return directive{}, false
	}
	d, ok := splitRaw(line)
	if !ok || len(d.fields) <= sourceField {
		return directive{}, false
	}
	for i := range d.fields {
		words, err := shellquote.Split(d.fields[i].raw)
		if err != nil || len(words) > 1 {
			return directive{}, false
		}
		if len(words) == 1 {
			d.fields[i].value = words[0]
		}
	}
	return d, true
}

// splitRaw cuts line at unquoted whitespace, keeping every token verbatim
// along with the whitespace in front of it.
func splitRaw(line string) (directive, bool) {
	var (
		fields []field
		cur    field
		start  = -1
		lead   strings.Builder
		quote  rune
		escape bool
	)
	for i, r := range line {
		if start < 0 {
			if r == ' ' || r == '\t' {
				lead.WriteRune(r)
				continue
			}
			start = i
			cur = field{lead: lead.String()}
			lead.Reset()
		}
		switch {
		case escape:
			escape = false
		case r == '\\' && quote != '\'':
			escape = true
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
			cur.quoted = true
		case r == ' ' || r == '\t':
			cur.raw = line[start:i]
			fields = append(fields, cur)
			start = -1
			lead.WriteRune(r)
		}
	}
	if quote != 0 || escape {
		return directive{}, false
	}
	if start >= 0 {
		cur.raw = line[start:]
		fields = append(fields, cur)
	}
	return directive{fields: fields, trail: lead.String()}, true
}
