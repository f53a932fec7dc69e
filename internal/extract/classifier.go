package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/ansuz/internal/models"
)

// Classification is an emotion label with the tokens spent producing it.
type Classification struct {
	Emotion models.Emotion
	// Mapped is false when the model reply did not name a known label.
	Mapped bool
	Usage  models.TokenUsage
}

// Classifier labels journal transcripts.
type Classifier struct {
	llm    Completer
	logger *slog.Logger
}

// NewClassifier creates a Classifier on top of llm.
func NewClassifier(llm Completer, logger *slog.Logger) *Classifier {
	return &Classifier{llm: llm, logger: logger.With("service", "classifier")}
}

func classifySystem() string {
	labels := make([]string, len(models.Emotions))
	for i, e := range models.Emotions {
		labels[i] = string(e)
	}
	return "Classify the dominant emotion of the journal entry. Answer with exactly one word from: " +
		strings.Join(labels, ", ") + ". No punctuation or explanation."
}

// Classify returns the emotion of transcript. A reply that does not map onto
// the fixed set yields EmotionCalm. Provider failures are returned.
func (c *Classifier) Classify(ctx context.Context, transcript string) (Classification, error) {
	raw, usage, err := c.llm.Complete(ctx, classifySystem(), transcript)
	if err != nil {
		return Classification{}, fmt.Errorf("extract.Classify: %w", err)
	}

	label := strings.Trim(strings.TrimSpace(stripFences(raw)), `."'`)
	if e, ok := models.ParseEmotion(label); ok {
		return Classification{Emotion: e, Mapped: true, Usage: usage}, nil
	}

	c.logger.Info("unmapped emotion label, using default", slog.Int("reply_len", len(raw)))
	return Classification{Emotion: models.EmotionCalm, Usage: usage}, nil
}
