package updater

import (
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2/unstable"

	"github.com/papapumpkin/disperse/internal/version"
)

// Manifest edits a single string key of a TOML manifest in place. Only the
// bytes of the value change; comments, ordering and every other table stay
// exactly as written.
type Manifest struct {
	// Key is the dotted path of the version key, e.g. package.version.
	Key []string
}

// CargoManifest targets package.version in Cargo.toml.
func CargoManifest() Manifest { return Manifest{Key: []string{"package", "version"}} }

// PyProjectManifest targets project.version in pyproject.toml.
func PyProjectManifest() Manifest { return Manifest{Key: []string{"project", "version"}} }

func (m Manifest) keyName() string { return strings.Join(m.Key, ".") }

// Validate parses content and checks the version key is present as a string.
func (m Manifest) Validate(content []byte) error {
	_, err := m.locate(content)
	return err
}

// Update replaces the value of the version key with v.
func (m Manifest) Update(content []byte, v version.Version, _ time.Time) ([]byte, error) {
	span, err := m.locate(content)
	if err != nil {
		return nil, err
	}
	quote := content[span.Offset]
	out := make([]byte, 0, len(content)+8)
	out = append(out, content[:span.Offset]...)
	out = append(out, quote)
	out = append(out, v.String()...)
	out = append(out, quote)
	out = append(out, content[span.Offset+span.Length:]...)
	return out, nil
}

// Read returns the current value of the version key.
func (m Manifest) Read(content []byte) (string, error) {
	span, err := m.locate(content)
	if err != nil {
		return "", err
	}
	raw := string(content[span.Offset+1 : span.Offset+span.Length-1])
	return raw, nil
}

// locate finds the byte range of the quoted version value. The whole
// document is parsed so malformed input is rejected even when the key
// appears before the error.
func (m Manifest) locate(content []byte) (unstable.Range, error) {
	var (
		p     unstable.Parser
		table []string
		found *unstable.Range
	)
	p.Reset(content)
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			table = keyParts(expr.Key())
		case unstable.KeyValue:
			if found != nil {
				continue
			}
			path := append(append([]string(nil), table...), keyParts(expr.Key())...)
			span, ok, err := m.match(path, expr.Value())
			if err != nil {
				return unstable.Range{}, err
			}
			if ok {
				found = &span
			}
		}
	}
	if err := p.Error(); err != nil {
		return unstable.Range{}, fmt.Errorf("parsing manifest: %w", err)
	}
	if found == nil {
		return unstable.Range{}, fmt.Errorf("%w: %s", ErrKeyNotFound, m.keyName())
	}
	raw := string(content[found.Offset : found.Offset+found.Length])
	if strings.HasPrefix(raw, `"""`) || strings.HasPrefix(raw, "'''") {
		return unstable.Range{}, fmt.Errorf("%w: %s is not a single-line string", ErrKeyNotFound, m.keyName())
	}
	return *found, nil
}

// match checks whether value, reached through path, is the version key.
// Inline tables are searched recursively.
func (m Manifest) match(path []string, value *unstable.Node) (unstable.Range, bool, error) {
	if !isPrefix(path, m.Key) {
		return unstable.Range{}, false, nil
	}
	if value.Kind == unstable.InlineTable {
		it := value.Children()
		for it.Next() {
			kv := it.Node()
			sub := append(append([]string(nil), path...), keyParts(kv.Key())...)
			if span, ok, err := m.match(sub, kv.Value()); ok || err != nil {
				return span, ok, err
			}
		}
		return unstable.Range{}, false, nil
	}
	if len(path) != len(m.Key) {
		return unstable.Range{}, false, nil
	}
	if value.Kind != unstable.String || value.Raw.Length < 2 {
		return unstable.Range{}, false, fmt.Errorf("%w: %s is not a single-line string", ErrKeyNotFound, m.keyName())
	}
	return value.Raw, true, nil
}

func keyParts(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

func isPrefix(prefix, full []string) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i := range prefix {
		if prefix[i] != full[i] {
			return false
		}
	}
	return true
}
