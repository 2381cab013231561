// Package macro loads a per-project flat mapping of trigger phrase to
// replacement text and expands a transcript against it, for use in
// "command" voice intent. No template engine or variable substitution;
// macros are a flat phrase -> replacement map.
package macro

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Set holds the loaded trigger -> replacement mapping, matched
// case-insensitively against the whole trimmed transcript.
type Set struct {
	entries map[string]string
}

// Load reads a flat YAML mapping from path. A missing file yields an
// empty, harmless Set rather than an error, since macros are optional.
func Load(path string) (*Set, error) {
	s := &Set{entries: map[string]string{}}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		s.entries[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return s, nil
}

// Expand matches text against the loaded trigger phrases (case-insensitive,
// whole-text match after trimming) and returns the replacement if one
// matches; otherwise returns text unchanged.
func (s *Set) Expand(text string) string {
	if s == nil || len(s.entries) == 0 {
		return text
	}
	key := strings.ToLower(strings.TrimSpace(text))
	if replacement, ok := s.entries[key]; ok {
		return replacement
	}
	return text
}

// Len returns the number of loaded macros.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}
