// Package voice coordinates the capture pipeline: upload, transcription,
// screening, quota-gated extraction, preview and commit.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/commit"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/guard"
	"github.com/starford/ansuz/internal/ledger"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/store"
)

// Defaults for Config.
const (
	DefaultTTL               = 24 * time.Hour
	DefaultMaxBytes          = 25 << 20
	DefaultPreviewDailyLimit = 20
	DefaultJournalDailyLimit = 10
)

// Store is the persistence the service reads directly.
type Store interface {
	CreateCapture(ctx context.Context, c models.TempCapture) error
	GetCapture(ctx context.Context, id, ownerID string, now time.Time) (*models.TempCapture, error)
	DeleteCapture(ctx context.Context, id, ownerID string) (bool, error)
	PurgeExpiredCaptures(ctx context.Context, now time.Time) ([]string, error)
	ContactNames(ctx context.Context, ownerID string) ([]string, error)
	GetJournalEntry(ctx context.Context, id, ownerID string) (*models.JournalEntry, error)
	ListJournalEntries(ctx context.Context, ownerID string, f store.JournalFilter) ([]models.JournalEntry, int, error)
}

// Transcriber converts audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeHint string) (string, error)
}

// Extractor produces a structured result from a transcript.
type Extractor interface {
	Extract(ctx context.Context, transcript string, knownNames []string, today time.Time) (models.Extraction, models.TokenUsage, error)
}

// Classifier labels a journal transcript.
type Classifier interface {
	Classify(ctx context.Context, transcript string) (extract.Classification, error)
}

// Screener is the content guard.
type Screener interface {
	Check(transcript string) guard.Verdict
}

// Quota is the usage ledger.
type Quota interface {
	Check(ctx context.Context, acct models.Account, dailyLimit int) error
	CommitUsage(ctx context.Context, acct models.Account, cost *float64) error
	Snapshot(ctx context.Context, acct models.Account) (models.UsageLedger, error)
}

// Committer routes a capture to its destination.
type Committer interface {
	Commit(ctx context.Context, ownerID, captureID string, p commit.Payload) (*commit.Record, error)
}

// Publisher receives per-owner change notifications.
type Publisher interface {
	Publish(event sse.Event)
	PublishUsage(ownerID string)
}

// Config holds the pipeline limits.
type Config struct {
	TTL               time.Duration
	MaxBytes          int64
	PreviewDailyLimit int
	JournalDailyLimit int
	Location          *time.Location
	Pricing           ledger.Pricing
	Now               func() time.Time
}

// Deps groups the collaborators of a Service.
type Deps struct {
	Store       Store
	Blobs       storage.Provider
	Transcriber Transcriber
	Extractor   Extractor
	Classifier  Classifier
	Guard       Screener
	Quota       Quota
	Router      Committer
	Events      Publisher
}

// Service implements the voice capture use cases.
type Service struct {
	Deps
	cfg    Config
	logger *slog.Logger
}

// NewService creates a Service. Zero Config fields take the package defaults.
func NewService(deps Deps, cfg Config, logger *slog.Logger) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.PreviewDailyLimit <= 0 {
		cfg.PreviewDailyLimit = DefaultPreviewDailyLimit
	}
	if cfg.JournalDailyLimit <= 0 {
		cfg.JournalDailyLimit = DefaultJournalDailyLimit
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{Deps: deps, cfg: cfg, logger: logger.With("service", "voice")}
}

// MaxBytes returns the upload size limit.
func (s *Service) MaxBytes() int64 {
	return s.cfg.MaxBytes
}

func (s *Service) today() time.Time {
	return models.DateOf(s.cfg.Now().In(s.cfg.Location))
}

func (s *Service) publish(ownerID, typ string, data any) {
	if s.Events != nil {
		s.Events.Publish(sse.Event{OwnerID: ownerID, Type: typ, Data: data})
	}
}

// Upload stores audio as a new temp capture owned by acct.
func (s *Service) Upload(ctx context.Context, acct models.Account, audio []byte, mimeHint string) (*models.TempCapture, error) {
	if len(audio) == 0 {
		return nil, apperr.NewValidationError("audio", "is empty")
	}
	if int64(len(audio)) > s.cfg.MaxBytes {
		return nil, apperr.NewValidationError("audio", fmt.Sprintf("exceeds %d bytes", s.cfg.MaxBytes))
	}

	now := s.cfg.Now()
	s.purgeExpired(ctx, now)

	c := models.TempCapture{
		ID:        uuid.NewString(),
		OwnerID:   acct.UserID,
		MimeType:  mimeHint,
		Size:      int64(len(audio)),
		Checksum:  checksum.Sum(audio),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.Blobs.Write(c.BlobKey(), audio); err != nil {
		return nil, fmt.Errorf("voice.Upload: write audio: %w", err)
	}
	if err := s.Store.CreateCapture(ctx, c); err != nil {
		_ = s.Blobs.Delete(c.BlobKey())
		return nil, fmt.Errorf("voice.Upload: %w", err)
	}

	s.logger.Info("capture created",
		slog.String("capture_id", c.ID),
		slog.String("user_id", acct.UserID),
		slog.Int64("size", c.Size))
	s.publish(acct.UserID, sse.EventCaptureCreated, map[string]any{
		"temp_capture_id": c.ID,
		"expires_at":      c.ExpiresAt,
	})
	return &c, nil
}

// purgeExpired drops expired captures and their audio. Failures only log.
func (s *Service) purgeExpired(ctx context.Context, now time.Time) {
	ids, err := s.Store.PurgeExpiredCaptures(ctx, now)
	if err != nil {
		s.logger.Warn("purge expired captures failed", slog.String("error", err.Error()))
		return
	}
	for _, id := range ids {
		if err := s.Blobs.Delete(models.CaptureBlobKey(id)); err != nil {
			s.logger.Warn("delete expired capture audio failed",
				slog.String("capture_id", id),
				slog.String("error", err.Error()))
		}
	}
	if len(ids) > 0 {
		s.logger.Info("expired captures purged", slog.Int("count", len(ids)))
	}
}

// loadCapture returns a live capture and its audio.
func (s *Service) loadCapture(ctx context.Context, acct models.Account, id string) (*models.TempCapture, []byte, error) {
	c, err := s.Store.GetCapture(ctx, id, acct.UserID, s.cfg.Now())
	if err != nil {
		return nil, nil, err
	}
	audio, err := s.Blobs.Read(c.BlobKey())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read audio: %w", err)
	}
	return c, audio, nil
}

// Transcribe returns the transcript of a live capture. It never modifies
// the capture and is not quota-gated.
func (s *Service) Transcribe(ctx context.Context, acct models.Account, id string) (string, error) {
	c, audio, err := s.loadCapture(ctx, acct, id)
	if err != nil {
		return "", fmt.Errorf("voice.Transcribe: %w", err)
	}
	text, err := s.Transcriber.Transcribe(ctx, audio, c.MimeType)
	if err != nil {
		s.logger.Warn("transcription failed",
			slog.String("capture_id", id),
			slog.String("error", err.Error()))
		return "", fmt.Errorf("voice.Transcribe: %w", err)
	}
	s.logger.Info("capture transcribed",
		slog.String("capture_id", id),
		slog.Int("transcript_len", len(text)))
	return text, nil
}

// Delete discards a capture. Unknown, expired and already deleted ids succeed.
func (s *Service) Delete(ctx context.Context, acct models.Account, id string) error {
	existed, err := s.Store.DeleteCapture(ctx, id, acct.UserID)
	if err != nil {
		return fmt.Errorf("voice.Delete: %w", err)
	}
	if !existed {
		return nil
	}
	if err := s.Blobs.Delete(models.CaptureBlobKey(id)); err != nil {
		s.logger.Warn("delete capture audio failed",
			slog.String("capture_id", id),
			slog.String("error", err.Error()))
	}
	s.logger.Info("capture deleted", slog.String("capture_id", id))
	s.publish(acct.UserID, sse.EventCaptureDeleted, map[string]string{"temp_capture_id": id})
	return nil
}

// resolveTranscript checks the quota once the capture is known to be live,
// then uses the supplied transcript or transcribes the capture. An
// over-quota caller never reaches the transcription provider.
func (s *Service) resolveTranscript(ctx context.Context, acct models.Account, id, supplied string, dailyLimit int) (string, error) {
	if supplied != "" {
		if _, err := s.Store.GetCapture(ctx, id, acct.UserID, s.cfg.Now()); err != nil {
			return "", err
		}
		if err := s.Quota.Check(ctx, acct, dailyLimit); err != nil {
			return "", err
		}
		return supplied, nil
	}
	c, audio, err := s.loadCapture(ctx, acct, id)
	if err != nil {
		return "", err
	}
	if err := s.Quota.Check(ctx, acct, dailyLimit); err != nil {
		return "", err
	}
	return s.Transcriber.Transcribe(ctx, audio, c.MimeType)
}

// screen runs the content guard. The matched term is logged, never returned.
func (s *Service) screen(id, text string) (guard.Verdict, error) {
	verdict := s.Guard.Check(text)
	if verdict.Allowed {
		return verdict, nil
	}
	s.logger.Info("transcript rejected by content guard", slog.String("capture_id", id))
	s.logger.Debug("content guard match",
		slog.String("capture_id", id),
		slog.String("term", verdict.Term))
	return verdict, &apperr.RejectedError{Reason: verdict.Reason}
}

// Preview is the reviewed result shown before the caller picks a destination.
type Preview struct {
	Transcript string
	Result     models.ExtractionResult
	Outcome    models.Outcome
}

// Preview screens the capture transcript and, when it is clean and long
// enough, runs extraction. The quota is checked before any provider call.
// transcript may be supplied by a client that already called Transcribe.
func (s *Service) Preview(ctx context.Context, acct models.Account, id, transcript string) (*Preview, error) {
	text, err := s.resolveTranscript(ctx, acct, id, transcript, s.cfg.PreviewDailyLimit)
	if err != nil {
		return nil, fmt.Errorf("voice.Preview: %w", err)
	}

	verdict, err := s.screen(id, text)
	if err != nil {
		return nil, fmt.Errorf("voice.Preview: %w", err)
	}

	today := s.today()
	if verdict.Insufficient {
		return &Preview{
			Transcript: text,
			Result:     models.FallbackExtraction(text, today),
			Outcome:    models.OutcomeSkipped,
		}, nil
	}

	names, err := s.Store.ContactNames(ctx, acct.UserID)
	if err != nil {
		return nil, fmt.Errorf("voice.Preview: %w", err)
	}

	ext, usage, err := s.Extractor.Extract(ctx, text, names, today)
	if err != nil {
		return nil, fmt.Errorf("voice.Preview: %w", err)
	}
	if err := s.Quota.CommitUsage(ctx, acct, s.cfg.Pricing.Cost(usage)); err != nil {
		return nil, fmt.Errorf("voice.Preview: %w", err)
	}
	if s.Events != nil {
		s.Events.PublishUsage(acct.UserID)
	}

	s.logger.Info("preview extracted",
		slog.String("capture_id", id),
		slog.String("outcome", string(ext.Outcome)))
	return &Preview{Transcript: text, Result: ext.Result, Outcome: ext.Outcome}, nil
}

// CommitRecord commits a capture as a task or interaction chosen by the caller.
func (s *Service) CommitRecord(ctx context.Context, acct models.Account, id string, p commit.Payload) (*commit.Record, error) {
	if p != nil && p.Destination() == models.DestinationJournal {
		return nil, apperr.NewValidationError("destination", "journal entries are created via the journal endpoint")
	}
	rec, err := s.Router.Commit(ctx, acct.UserID, id, p)
	if err != nil {
		return nil, fmt.Errorf("voice.CommitRecord: %w", err)
	}

	switch {
	case rec.Task != nil:
		s.publish(acct.UserID, sse.EventTaskCommitted, rec.Task)
	case rec.Interaction != nil:
		s.publish(acct.UserID, sse.EventInteractionCommitted, rec.Interaction)
	}
	return rec, nil
}

// CreateJournalEntry transcribes the capture's own audio, classifies it and
// commits it as a journal entry that retains the audio. The transcript is
// stored verbatim; client-supplied text is never accepted here.
func (s *Service) CreateJournalEntry(ctx context.Context, acct models.Account, id string) (*models.JournalEntry, error) {
	text, err := s.resolveTranscript(ctx, acct, id, "", s.cfg.JournalDailyLimit)
	if err != nil {
		return nil, fmt.Errorf("voice.CreateJournalEntry: %w", err)
	}

	verdict, err := s.screen(id, text)
	if err != nil {
		return nil, fmt.Errorf("voice.CreateJournalEntry: %w", err)
	}

	emotion := models.EmotionCalm
	if !verdict.Insufficient {
		cls, err := s.Classifier.Classify(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("voice.CreateJournalEntry: %w", err)
		}
		if err := s.Quota.CommitUsage(ctx, acct, s.cfg.Pricing.Cost(cls.Usage)); err != nil {
			return nil, fmt.Errorf("voice.CreateJournalEntry: %w", err)
		}
		if s.Events != nil {
			s.Events.PublishUsage(acct.UserID)
		}
		emotion = cls.Emotion
	}

	rec, err := s.Router.Commit(ctx, acct.UserID, id, commit.JournalPayload{Transcript: text, Emotion: emotion})
	if err != nil {
		return nil, fmt.Errorf("voice.CreateJournalEntry: %w", err)
	}

	s.logger.Info("journal entry created",
		slog.String("entry_id", rec.Journal.ID),
		slog.String("emotion", string(emotion)))
	s.publish(acct.UserID, sse.EventJournalCreated, map[string]string{
		"id":            rec.Journal.ID,
		"emotion_label": string(emotion),
	})
	return rec.Journal, nil
}

// ListJournal returns a page of the caller's journal entries.
func (s *Service) ListJournal(ctx context.Context, acct models.Account, f store.JournalFilter) ([]models.JournalEntry, int, error) {
	entries, total, err := s.Store.ListJournalEntries(ctx, acct.UserID, f)
	if err != nil {
		return nil, 0, fmt.Errorf("voice.ListJournal: %w", err)
	}
	return entries, total, nil
}

// JournalEntry returns one entry without touching its audio.
func (s *Service) JournalEntry(ctx context.Context, acct models.Account, id string) (*models.JournalEntry, error) {
	e, err := s.Store.GetJournalEntry(ctx, id, acct.UserID)
	if err != nil {
		return nil, fmt.Errorf("voice.JournalEntry: %w", err)
	}
	return e, nil
}

// GetJournal returns one entry and its retained audio, if any.
func (s *Service) GetJournal(ctx context.Context, acct models.Account, id string) (*models.JournalEntry, []byte, error) {
	e, err := s.Store.GetJournalEntry(ctx, id, acct.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("voice.GetJournal: %w", err)
	}
	if !e.HasAudio {
		return e, nil, nil
	}
	audio, err := s.Blobs.Read(e.BlobKey())
	if err != nil {
		s.logger.Warn("journal audio unavailable",
			slog.String("entry_id", id),
			slog.String("error", err.Error()))
		return e, nil, nil
	}
	return e, audio, nil
}

// Usage is the caller's ledger with the limits that apply to it.
type Usage struct {
	Ledger            models.UsageLedger
	PreviewDailyLimit int
	JournalDailyLimit int
}

// Usage returns the caller's usage after rollover.
func (s *Service) Usage(ctx context.Context, acct models.Account) (*Usage, error) {
	l, err := s.Quota.Snapshot(ctx, acct)
	if err != nil {
		return nil, fmt.Errorf("voice.Usage: %w", err)
	}
	return &Usage{
		Ledger:            l,
		PreviewDailyLimit: s.cfg.PreviewDailyLimit,
		JournalDailyLimit: s.cfg.JournalDailyLimit,
	}, nil
}
