package commit

import (
	"errors"
	"sort"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Payload is the caller-chosen destination of a commit. It is implemented
// only by TaskPayload, InteractionPayload and JournalPayload.
type Payload interface {
	Destination() models.Destination
	Validate() error
	sealed()
}

// TaskPayload commits a capture as a task. Target is optional; when it names
// a known contact the task is linked to it.
type TaskPayload struct {
	Target      string    `json:"target"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

func (TaskPayload) Destination() models.Destination { return models.DestinationTask }
func (TaskPayload) sealed()                         {}

func (p TaskPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Description, validation.Required, validation.Length(1, 2000)),
		validation.Field(&p.Date, validation.Required),
	)
}

// InteractionPayload commits a capture as an interaction with Target.
type InteractionPayload struct {
	Target      string    `json:"target"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

func (InteractionPayload) Destination() models.Destination { return models.DestinationInteraction }
func (InteractionPayload) sealed()                         {}

func (p InteractionPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Target, validation.Required,
			validation.NotIn(models.UnassignedTarget).Error("an interaction needs a known contact")),
		validation.Field(&p.Description, validation.Required, validation.Length(1, 2000)),
		validation.Field(&p.Date, validation.Required),
	)
}

// JournalPayload commits a capture as a journal entry that keeps the audio.
type JournalPayload struct {
	Transcript string         `json:"transcript"`
	Emotion    models.Emotion `json:"emotion_label"`
}

func (JournalPayload) Destination() models.Destination { return models.DestinationJournal }
func (JournalPayload) sealed()                         {}

func (p JournalPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Transcript, validation.Required),
		validation.Field(&p.Emotion, validation.Required, validation.In(emotionValues()...)),
	)
}

func emotionValues() []any {
	out := make([]any, len(models.Emotions))
	for i, e := range models.Emotions {
		out[i] = e
	}
	return out
}

// asValidationError converts ozzo validation errors to the domain shape.
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var errs validation.Errors
	if errors.As(err, &errs) && len(errs) > 0 {
		fields := make([]string, 0, len(errs))
		for f := range errs {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		return apperr.NewValidationError(fields[0], errs[fields[0]].Error())
	}
	return apperr.NewValidationError("payload", strings.TrimSpace(err.Error()))
}
