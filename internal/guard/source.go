package guard

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// termsFile is the on-disk shape of a banned terms list.
type termsFile struct {
	Terms []string `yaml:"terms"`
}

// LoadTerms reads a YAML terms file.
func LoadTerms(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("guard: read terms: %w", err)
	}
	var f termsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("guard: parse terms: %w", err)
	}
	return f.Terms, nil
}

// Source hands out the current Guard. Reloading swaps in a new Guard and
// never mutates one that callers may still hold.
type Source struct {
	current  atomic.Pointer[Guard]
	inline   []string
	path     string
	minChars int
}

// NewSource builds a Source from inline terms plus an optional terms file.
func NewSource(inline []string, path string, minChars int) (*Source, error) {
	s := &Source{inline: inline, path: path, minChars: minChars}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Guard returns the active Guard.
func (s *Source) Guard() *Guard {
	return s.current.Load()
}

// Check screens transcript with the active Guard.
func (s *Source) Check(transcript string) Verdict {
	return s.Guard().Check(transcript)
}

// Path returns the terms file path, or "" when only inline terms are used.
func (s *Source) Path() string {
	return s.path
}

// Reload rebuilds the Guard from the inline terms and the terms file.
// On error the previous Guard stays active.
func (s *Source) Reload() error {
	terms := append([]string(nil), s.inline...)
	if s.path != "" {
		fileTerms, err := LoadTerms(s.path)
		if err != nil {
			return err
		}
		terms = append(terms, fileTerms...)
	}
	s.current.Store(New(terms, s.minChars))
	return nil
}
