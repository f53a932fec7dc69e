package api

import (
	"time"

	"github.com/starford/ansuz/internal/models"
)

// UploadCaptureRequest is the JSON form of a capture upload.
// Clients may instead send the raw audio as the request body.
type UploadCaptureRequest struct {
	AudioBase64 string `json:"audio_base64" validate:"required"`
	MimeType    string `json:"mime_type" example:"audio/webm"`
}

// CaptureResponse is returned after an upload.
type CaptureResponse struct {
	TempCaptureID string    `json:"temp_capture_id" validate:"required"`
	ExpiresAt     time.Time `json:"expires_at" validate:"required"`
}

// TranscriptResponse is the result of a transcription.
type TranscriptResponse struct {
	Text string `json:"text" example:"Llamar a Juan mañana" validate:"required"`
}

// PreviewRequest optionally carries a transcript the client already holds.
type PreviewRequest struct {
	Transcript string `json:"transcript,omitempty"`
}

// PreviewResponse is the extraction preview. Date is YYYY-MM-DD.
type PreviewResponse struct {
	Transcript  string         `json:"transcript" validate:"required"`
	Target      string         `json:"target" example:"Juan" validate:"required"`
	Description string         `json:"description" validate:"required"`
	Date        string         `json:"date" example:"2026-03-11" validate:"required"`
	Outcome     models.Outcome `json:"outcome" example:"parsed" validate:"required"`
}

// CommitRequest commits a capture to a task or interaction.
type CommitRequest struct {
	Destination string `json:"destination" example:"task" validate:"required"`
	Target      string `json:"target" example:"Juan"`
	Description string `json:"description" validate:"required"`
	Date        string `json:"date" example:"2026-03-11" validate:"required"`
}

// TaskResponse is a committed task.
type TaskResponse struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	DueDate     string    `json:"due_date"`
	ContactID   string    `json:"contact_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// InteractionResponse is a committed interaction.
type InteractionResponse struct {
	ID         string    `json:"id"`
	ContactID  string    `json:"contact_id"`
	Note       string    `json:"note"`
	OccurredOn string    `json:"occurred_on"`
	CreatedAt  time.Time `json:"created_at"`
}

// CommitResponse wraps the created record.
type CommitResponse struct {
	Destination models.Destination   `json:"destination"`
	Task        *TaskResponse        `json:"task,omitempty"`
	Interaction *InteractionResponse `json:"interaction,omitempty"`
}

// CreateJournalRequest creates a journal entry from a capture. The entry's
// transcript always comes from the capture's own audio.
type CreateJournalRequest struct {
	TempCaptureID string `json:"temp_capture_id" validate:"required"`
}

// JournalEntryResponse is a journal entry. AudioBase64 is only set on the
// single-entry endpoint.
type JournalEntryResponse struct {
	ID           string         `json:"id" validate:"required"`
	Transcript   string         `json:"transcript" validate:"required"`
	EmotionLabel models.Emotion `json:"emotion_label" example:"Gratitude" validate:"required"`
	HasAudio     bool           `json:"has_audio"`
	MimeType     string         `json:"mime_type,omitempty"`
	AudioBase64  string         `json:"audio_base64,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// JournalListResponse wraps paginated journal listings.
type JournalListResponse struct {
	Entries []JournalEntryResponse `json:"entries" validate:"required"`
	Total   int                    `json:"total" example:"42" validate:"required"`
}

// UsageResponse is the caller's usage ledger.
type UsageResponse struct {
	Tier                   models.Tier `json:"tier"`
	DailyCount             int         `json:"daily_count"`
	DailyResetAnchor       time.Time   `json:"daily_reset_anchor"`
	MonthlyCount           int         `json:"monthly_count"`
	MonthlyResetAnchor     time.Time   `json:"monthly_reset_anchor"`
	CumulativeCostEstimate float64     `json:"cumulative_cost_estimate"`
	PreviewDailyLimit      int         `json:"preview_daily_limit"`
	JournalDailyLimit      int         `json:"journal_daily_limit"`
}

func journalResponse(e *models.JournalEntry) JournalEntryResponse {
	return JournalEntryResponse{
		ID:           e.ID,
		Transcript:   e.Transcript,
		EmotionLabel: e.Emotion,
		HasAudio:     e.HasAudio,
		MimeType:     e.MimeType,
		CreatedAt:    e.CreatedAt,
	}
}

func taskResponse(t *models.Task) *TaskResponse {
	return &TaskResponse{
		ID:          t.ID,
		Description: t.Description,
		DueDate:     t.DueDate.Format(models.DateLayout),
		ContactID:   t.ContactID,
		CreatedAt:   t.CreatedAt,
	}
}

func interactionResponse(i *models.Interaction) *InteractionResponse {
	return &InteractionResponse{
		ID:         i.ID,
		ContactID:  i.ContactID,
		Note:       i.Note,
		OccurredOn: i.OccurredOn.Format(models.DateLayout),
		CreatedAt:  i.CreatedAt,
	}
}
