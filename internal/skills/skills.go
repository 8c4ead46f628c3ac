// Package skills extracts canonical skill names from free text.
package skills

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"gopkg.in/yaml.v3"

	"github.com/amishk599/jobcatalog/internal/normalize"
)

//go:embed taxonomy.yaml
var defaultTaxonomy []byte

// Taxonomy matches aliases in a single pass and maps each hit to its canonical name.
// The matcher keeps per-call state, so Match is serialized.
type Taxonomy struct {
	mu        sync.Mutex
	matcher   *ahocorasick.Matcher
	patterns  []string // padded, normalized aliases; index matches matcher hits
	canonical []string // canonical name per pattern
}

// Default returns the built-in taxonomy.
func Default() (*Taxonomy, error) {
	return Parse(defaultTaxonomy)
}

// Load reads a taxonomy file of `Canonical: [alias, ...]` entries.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill taxonomy: %w", err)
	}
	return Parse(data)
}

// Parse builds a taxonomy from YAML.
func Parse(data []byte) (*Taxonomy, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse skill taxonomy: %w", err)
	}
	return New(raw), nil
}

// New builds a taxonomy from canonical name → aliases. The canonical name is
// always an alias of itself.
func New(entries map[string][]string) *Taxonomy {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	t := &Taxonomy{}
	seen := make(map[string]bool)
	for _, name := range names {
		for _, alias := range append([]string{name}, entries[name]...) {
			p := pad(alias)
			if p == "  " || seen[p] {
				continue
			}
			seen[p] = true
			t.patterns = append(t.patterns, p)
			t.canonical = append(t.canonical, name)
		}
	}
	if len(t.patterns) > 0 {
		t.matcher = ahocorasick.NewStringMatcher(t.patterns)
	}
	return t
}

// Extract returns the sorted, distinct canonical skills mentioned in text.
func (t *Taxonomy) Extract(text string) []string {
	if t.matcher == nil || text == "" {
		return nil
	}
	t.mu.Lock()
	hits := t.matcher.Match([]byte(pad(text)))
	t.mu.Unlock()

	found := make(map[string]bool)
	for _, idx := range hits {
		if idx < len(t.canonical) {
			found[t.canonical[idx]] = true
		}
	}
	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Size is the number of alias patterns.
func (t *Taxonomy) Size() int { return len(t.patterns) }

// pad normalizes s into space-separated tokens with a leading and trailing
// space, so substring hits fall on word boundaries.
func pad(s string) string {
	return " " + strings.Join(normalize.Tokens(s), " ") + " "
}
