// Package guard screens transcripts before any paid model call.
package guard

import (
	"strings"
	"unicode/utf8"
)

// DefaultMinChars is the shortest transcript worth sending to the model.
const DefaultMinChars = 6

// RejectedReason is the client-facing reason for a banned transcript. It
// never names the matched term.
const RejectedReason = "transcript contains disallowed content"

// Verdict is the outcome of a Check.
type Verdict struct {
	Allowed bool
	// Reason is set when the transcript was rejected.
	Reason string
	// Term is the matched banned term. Server logs only.
	Term string
	// Insufficient is set for allowed transcripts too short to extract from.
	Insufficient bool
}

// Guard holds an immutable, lower-cased term list.
type Guard struct {
	terms    []string
	minChars int
}

// New builds a Guard. Blank terms are dropped and duplicates removed.
// A non-positive minChars selects DefaultMinChars.
func New(terms []string, minChars int) *Guard {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	seen := make(map[string]struct{}, len(terms))
	clean := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		clean = append(clean, t)
	}
	return &Guard{terms: clean, minChars: minChars}
}

// Terms returns a copy of the normalized term list.
func (g *Guard) Terms() []string {
	return append([]string(nil), g.terms...)
}

// Check screens a transcript. Banned terms win over the length check.
func (g *Guard) Check(transcript string) Verdict {
	lower := strings.ToLower(transcript)
	for _, t := range g.terms {
		if strings.Contains(lower, t) {
			return Verdict{Reason: RejectedReason, Term: t}
		}
	}
	if utf8.RuneCountInString(strings.TrimSpace(transcript)) < g.minChars {
		return Verdict{Allowed: true, Insufficient: true}
	}
	return Verdict{Allowed: true}
}
