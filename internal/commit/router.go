// Package commit turns a reviewed capture into exactly one destination record.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/storage"
)

// Store is the persistence the router needs.
type Store interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	ConsumeCapture(ctx context.Context, id, ownerID string, now time.Time) (*models.TempCapture, error)
	FindContactByName(ctx context.Context, ownerID, name string) (*models.Contact, error)
	CreateTask(ctx context.Context, t models.Task) error
	CreateInteraction(ctx context.Context, i models.Interaction) error
	CreateJournalEntry(ctx context.Context, e models.JournalEntry) error
}

// Record is the destination record created by a commit. Exactly one of
// Task, Interaction and Journal is set, matching Destination.
type Record struct {
	Destination models.Destination   `json:"destination"`
	CaptureID   string               `json:"temp_capture_id"`
	Task        *models.Task         `json:"task,omitempty"`
	Interaction *models.Interaction  `json:"interaction,omitempty"`
	Journal     *models.JournalEntry `json:"journal_entry,omitempty"`
}

// Router commits captures.
type Router struct {
	store  Store
	blobs  storage.Provider
	now    func() time.Time
	logger *slog.Logger
}

// NewRouter creates a Router. A nil now uses time.Now.
func NewRouter(store Store, blobs storage.Provider, now func() time.Time, logger *slog.Logger) *Router {
	if now == nil {
		now = time.Now
	}
	return &Router{store: store, blobs: blobs, now: now, logger: logger.With("service", "commit")}
}

// Commit consumes the owner's capture and creates the record described by p,
// atomically. A capture that is unknown, expired, owned by someone else or
// already committed yields apperr.ErrNotFound.
func (r *Router) Commit(ctx context.Context, ownerID, captureID string, p Payload) (*Record, error) {
	if p == nil {
		return nil, apperr.NewValidationError("destination", "is required")
	}
	if err := p.Validate(); err != nil {
		return nil, asValidationError(err)
	}

	now := r.now()
	rec := &Record{Destination: p.Destination(), CaptureID: captureID}

	var (
		capture *models.TempCapture
		movedTo string
	)
	err := r.store.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		capture, err = r.store.ConsumeCapture(ctx, captureID, ownerID, now)
		if err != nil {
			return err
		}

		switch p := p.(type) {
		case TaskPayload:
			rec.Task, err = r.commitTask(ctx, ownerID, p, now)
		case InteractionPayload:
			rec.Interaction, err = r.commitInteraction(ctx, ownerID, p, now)
		case JournalPayload:
			entry := models.JournalEntry{
				ID:         uuid.NewString(),
				OwnerID:    ownerID,
				Transcript: p.Transcript,
				Emotion:    p.Emotion,
				MimeType:   capture.MimeType,
				Checksum:   capture.Checksum,
				HasAudio:   true,
				CreatedAt:  now,
			}
			if err := r.blobs.Move(capture.BlobKey(), entry.BlobKey()); err != nil {
				return fmt.Errorf("retain audio: %w", err)
			}
			movedTo = entry.BlobKey()
			if err := r.store.CreateJournalEntry(ctx, entry); err != nil {
				return err
			}
			rec.Journal = &entry
		default:
			return apperr.NewValidationError("destination", "unsupported")
		}
		return err
	})
	if err != nil {
		if movedTo != "" {
			if mvErr := r.blobs.Move(movedTo, models.CaptureBlobKey(captureID)); mvErr != nil {
				r.logger.Error("restore capture audio failed",
					slog.String("capture_id", captureID),
					slog.String("error", mvErr.Error()))
			}
		}
		return nil, fmt.Errorf("commit.Commit: %w", err)
	}

	if rec.Destination != models.DestinationJournal {
		if err := r.blobs.Delete(capture.BlobKey()); err != nil {
			r.logger.Warn("delete committed capture audio failed",
				slog.String("capture_id", captureID),
				slog.String("error", err.Error()))
		}
	}

	r.logger.Info("capture committed",
		slog.String("capture_id", captureID),
		slog.String("destination", string(rec.Destination)))
	return rec, nil
}

func (r *Router) commitTask(ctx context.Context, ownerID string, p TaskPayload, now time.Time) (*models.Task, error) {
	task := models.Task{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Description: p.Description,
		DueDate:     p.Date,
		CreatedAt:   now,
	}
	if p.Target != "" && p.Target != models.UnassignedTarget {
		c, err := r.store.FindContactByName(ctx, ownerID, p.Target)
		switch {
		case err == nil:
			task.ContactID = c.ID
		case !errors.Is(err, apperr.ErrNotFound):
			return nil, err
		}
	}
	if err := r.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *Router) commitInteraction(ctx context.Context, ownerID string, p InteractionPayload, now time.Time) (*models.Interaction, error) {
	c, err := r.store.FindContactByName(ctx, ownerID, p.Target)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NewValidationError("target", "unknown contact")
	}
	if err != nil {
		return nil, err
	}
	in := models.Interaction{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		ContactID:  c.ID,
		Note:       p.Description,
		OccurredOn: p.Date,
		CreatedAt:  now,
	}
	if err := r.store.CreateInteraction(ctx, in); err != nil {
		return nil, err
	}
	return &in, nil
}
