package models

import "time"

// UnassignedTarget is used when no known contact matches the transcript.
const UnassignedTarget = "Unassigned"

// DateLayout is the calendar date format exchanged with clients and the model.
const DateLayout = "2006-01-02"

// ExtractionResult is the fixed-shape structure produced from a transcript.
type ExtractionResult struct {
	Target      string    `json:"target"`
	Description string    `json:"description"`
	Date        time.Time `json:"-"`
}

// DateString returns Date formatted as YYYY-MM-DD.
func (r ExtractionResult) DateString() string {
	return r.Date.Format(DateLayout)
}

// Outcome tells whether the model output was accepted or replaced.
type Outcome string

const (
	OutcomeParsed   Outcome = "parsed"
	OutcomeFallback Outcome = "fallback"
	// OutcomeSkipped marks a default result produced without calling the model.
	OutcomeSkipped Outcome = "skipped"
)

// Extraction is a tagged ExtractionResult.
type Extraction struct {
	Result  ExtractionResult
	Outcome Outcome
}

// FallbackExtraction builds the deterministic result used when the model is ignored.
func FallbackExtraction(transcript string, today time.Time) ExtractionResult {
	return ExtractionResult{
		Target:      UnassignedTarget,
		Description: transcript,
		Date:        DateOf(today),
	}
}

// DateOf truncates t to midnight in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// TokenUsage reports tokens consumed by a model call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}
