package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	json "github.com/goccy/go-json"

	"github.com/starford/ansuz/internal/models"
)

const extractSystem = `You extract one actionable item from a short voice note.
Reply with a single JSON object and nothing else. It must have exactly these fields:
  "target":      the person the note is about, copied exactly from the known names list, or "Unassigned" if none applies
  "description": a short description of what to do or what happened
  "date":        the relevant calendar date as YYYY-MM-DD
Rules:
- If the note mentions no date, use today's date.
- Resolve relative expressions such as "tomorrow" or "next Friday" to absolute dates using today's date.
- Do not add any other fields, comments or formatting.`

var fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\\n?(.*?)\\n?\\s*```$")

// Extractor produces ExtractionResults from transcripts.
type Extractor struct {
	llm    Completer
	logger *slog.Logger
}

// NewExtractor creates an Extractor on top of llm.
func NewExtractor(llm Completer, logger *slog.Logger) *Extractor {
	return &Extractor{llm: llm, logger: logger.With("service", "extract")}
}

// Extract asks the model for a structured result. A malformed reply is never
// an error: it yields a Fallback extraction. Only a failed provider call
// returns an error, which wraps apperr.ErrProviderUnavailable.
func (e *Extractor) Extract(ctx context.Context, transcript string, knownNames []string, today time.Time) (models.Extraction, models.TokenUsage, error) {
	prompt := buildExtractPrompt(transcript, knownNames, today)

	raw, usage, err := e.llm.Complete(ctx, extractSystem, prompt)
	if err != nil {
		return models.Extraction{}, usage, fmt.Errorf("extract.Extract: %w", err)
	}

	result, perr := parseResult(raw, knownNames)
	if perr != nil {
		e.logger.Info("model reply rejected, using fallback",
			slog.Int("reply_len", len(raw)),
			slog.String("reason", perr.Error()))
		return models.Extraction{
			Result:  models.FallbackExtraction(transcript, today),
			Outcome: models.OutcomeFallback,
		}, usage, nil
	}
	return models.Extraction{Result: result, Outcome: models.OutcomeParsed}, usage, nil
}

func buildExtractPrompt(transcript string, knownNames []string, today time.Time) string {
	names := "(none)"
	if len(knownNames) > 0 {
		names = strings.Join(knownNames, ", ")
	}
	return fmt.Sprintf("Today is %s (%s).\nKnown names: %s\n\nVoice note:\n%s",
		today.Format(models.DateLayout), today.Weekday(), names, transcript)
}

// rawResult is the exact reply shape. Unknown fields are rejected.
type rawResult struct {
	Target      string `json:"target"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

func (r rawResult) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Target, validation.Required),
		validation.Field(&r.Description, validation.Required),
		validation.Field(&r.Date, validation.Required, validation.Date(models.DateLayout)),
	)
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// parseResult decodes and validates a model reply. A target that is not one
// of knownNames is mapped to UnassignedTarget; a known one takes its canonical
// spelling.
func parseResult(raw string, knownNames []string) (models.ExtractionResult, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(stripFences(raw))))
	dec.DisallowUnknownFields()

	var r rawResult
	if err := dec.Decode(&r); err != nil {
		return models.ExtractionResult{}, fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return models.ExtractionResult{}, fmt.Errorf("trailing data after object")
	}

	r.Target = strings.TrimSpace(r.Target)
	r.Description = strings.TrimSpace(r.Description)
	r.Date = strings.TrimSpace(r.Date)
	if err := r.Validate(); err != nil {
		return models.ExtractionResult{}, fmt.Errorf("validate: %w", err)
	}

	date, _ := time.Parse(models.DateLayout, r.Date)
	return models.ExtractionResult{
		Target:      canonicalTarget(r.Target, knownNames),
		Description: r.Description,
		Date:        date,
	}, nil
}

func canonicalTarget(target string, knownNames []string) string {
	for _, n := range knownNames {
		if strings.EqualFold(strings.TrimSpace(n), target) {
			return n
		}
	}
	return models.UnassignedTarget
}
