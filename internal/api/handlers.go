package api

import (
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/commit"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/voice"
)

const (
	smallBodyLimit     = 1 << 20
	maxJournalPage     = 200
	defaultJournalPage = 50
)

// Handler holds API route handlers.
type Handler struct {
	svc    *voice.Service
	events *sse.Broker
}

// NewHandler creates a new Handler.
func NewHandler(svc *voice.Service, events *sse.Broker) *Handler {
	return &Handler{svc: svc, events: events}
}

// UploadCapture handles POST /api/voice-captures.
//
//	@Summary		Upload audio as a temporary capture
//	@Tags			captures
//	@Accept			application/octet-stream,audio/webm,audio/wav,json
//	@Produce		json
//	@Param			body	body		UploadCaptureRequest	false	"JSON form; otherwise the raw audio is the body"
//	@Success		201		{object}	CaptureResponse
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/voice-captures [post]
func (h *Handler) UploadCapture(w http.ResponseWriter, r *http.Request) {
	audio, mimeType, err := h.readAudio(w, r)
	if err != nil {
		writeError(w, r, "upload capture", err)
		return
	}

	c, err := h.svc.Upload(r.Context(), account(r), audio, mimeType)
	if err != nil {
		writeError(w, r, "upload capture", err)
		return
	}
	writeJSON(w, http.StatusCreated, CaptureResponse{TempCaptureID: c.ID, ExpiresAt: c.ExpiresAt})
}

// readAudio accepts either a raw audio body (Content-Type is the mime hint)
// or a JSON body with base64 audio.
func (h *Handler) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	maxBytes := h.svc.MaxBytes()
	contentType := strings.TrimSpace(r.Header.Get("Content-Type"))

	if strings.HasPrefix(contentType, "application/json") {
		var req UploadCaptureRequest
		if err := decodeJSON(w, r, int64(base64.StdEncoding.EncodedLen(int(maxBytes)))+smallBodyLimit, false, &req); err != nil {
			return nil, "", err
		}
		audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
		if err != nil {
			return nil, "", apperr.NewValidationError("audio_base64", "is not valid base64")
		}
		return audio, req.MimeType, nil
	}

	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, "", apperr.NewValidationError("audio", "exceeds "+strconv.FormatInt(maxBytes, 10)+" bytes")
	}
	if err != nil {
		return nil, "", apperr.NewValidationError("audio", "could not read body")
	}
	return audio, contentType, nil
}

// TranscribeCapture handles POST /api/voice-captures/{id}/transcribe.
//
//	@Summary		Transcribe a capture
//	@Tags			captures
//	@Produce		json
//	@Param			id	path		string	true	"Capture id"
//	@Success		200	{object}	TranscriptResponse
//	@Failure		404	{object}	errResponse
//	@Failure		503	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/voice-captures/{id}/transcribe [post]
func (h *Handler) TranscribeCapture(w http.ResponseWriter, r *http.Request) {
	text, err := h.svc.Transcribe(r.Context(), account(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "transcribe capture", err)
		return
	}
	writeJSON(w, http.StatusOK, TranscriptResponse{Text: text})
}

// DeleteCapture handles DELETE /api/voice-captures/{id}.
//
//	@Summary		Discard a capture (idempotent)
//	@Tags			captures
//	@Produce		json
//	@Param			id	path	string	true	"Capture id"
//	@Success		200
//	@Security		BearerAuth
//	@Router			/voice-captures/{id} [delete]
func (h *Handler) DeleteCapture(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), account(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, "delete capture", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PreviewCapture handles POST /api/voice-captures/{id}/preview.
//
//	@Summary		Screen and extract a capture
//	@Tags			captures
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Capture id"
//	@Param			body	body		PreviewRequest	false	"Transcript already obtained by the client"
//	@Success		200		{object}	PreviewResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		429		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/voice-captures/{id}/preview [post]
func (h *Handler) PreviewCapture(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(w, r, smallBodyLimit, true, &req); err != nil {
		writeError(w, r, "preview capture", err)
		return
	}

	p, err := h.svc.Preview(r.Context(), account(r), chi.URLParam(r, "id"), strings.TrimSpace(req.Transcript))
	if err != nil {
		writeError(w, r, "preview capture", err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{
		Transcript:  p.Transcript,
		Target:      p.Result.Target,
		Description: p.Result.Description,
		Date:        p.Result.DateString(),
		Outcome:     p.Outcome,
	})
}

// CommitCapture handles POST /api/voice-captures/{id}/commit.
//
//	@Summary		Commit a capture as a task or interaction
//	@Tags			captures
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Capture id"
//	@Param			body	body		CommitRequest	true	"Reviewed result and destination"
//	@Success		201		{object}	CommitResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/voice-captures/{id}/commit [post]
func (h *Handler) CommitCapture(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := decodeJSON(w, r, smallBodyLimit, false, &req); err != nil {
		writeError(w, r, "commit capture", err)
		return
	}
	date, err := time.Parse(models.DateLayout, strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, r, "commit capture", apperr.NewValidationError("date", "must be YYYY-MM-DD"))
		return
	}

	var payload commit.Payload
	switch models.Destination(req.Destination) {
	case models.DestinationTask:
		payload = commit.TaskPayload{Target: strings.TrimSpace(req.Target), Description: strings.TrimSpace(req.Description), Date: date}
	case models.DestinationInteraction:
		payload = commit.InteractionPayload{Target: strings.TrimSpace(req.Target), Description: strings.TrimSpace(req.Description), Date: date}
	case models.DestinationJournal:
		writeError(w, r, "commit capture", apperr.NewValidationError("destination", "use POST /journal-entries"))
		return
	default:
		writeError(w, r, "commit capture", apperr.NewValidationError("destination", "must be task or interaction"))
		return
	}

	rec, err := h.svc.CommitRecord(r.Context(), account(r), chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, r, "commit capture", err)
		return
	}

	resp := CommitResponse{Destination: rec.Destination}
	if rec.Task != nil {
		resp.Task = taskResponse(rec.Task)
	}
	if rec.Interaction != nil {
		resp.Interaction = interactionResponse(rec.Interaction)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// CreateJournalEntry handles POST /api/journal-entries.
//
//	@Summary		Create a journal entry from a capture
//	@Tags			journal
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateJournalRequest	true	"Capture to journal"
//	@Success		201		{object}	JournalEntryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		429		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journal-entries [post]
func (h *Handler) CreateJournalEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateJournalRequest
	if err := decodeJSON(w, r, smallBodyLimit, false, &req); err != nil {
		writeError(w, r, "create journal entry", err)
		return
	}
	if strings.TrimSpace(req.TempCaptureID) == "" {
		writeError(w, r, "create journal entry", apperr.NewValidationError("temp_capture_id", "is required"))
		return
	}

	e, err := h.svc.CreateJournalEntry(r.Context(), account(r), req.TempCaptureID)
	if err != nil {
		writeError(w, r, "create journal entry", err)
		return
	}
	writeJSON(w, http.StatusCreated, journalResponse(e))
}

// ListJournalEntries handles GET /api/journal-entries.
//
//	@Summary		List journal entries without audio
//	@Tags			journal
//	@Produce		json
//	@Param			q		query		string	false	"Full-text query"
//	@Param			emotion	query		string	false	"Emotion label"	Enums(Calm, Stress, Gratitude, Sadness, Joy, Depressive)
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Success		200		{object}	JournalListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journal-entries [get]
func (h *Handler) ListJournalEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	if limit <= 0 {
		limit = defaultJournalPage
	}
	limit = min(limit, maxJournalPage)

	f := store.JournalFilter{Query: q.Get("q"), Limit: limit, Offset: max(offset, 0)}
	if raw := q.Get("emotion"); raw != "" {
		e, ok := models.ParseEmotion(raw)
		if !ok {
			writeError(w, r, "list journal", apperr.NewValidationError("emotion", "unknown emotion label"))
			return
		}
		f.Emotion = e
	}

	entries, total, err := h.svc.ListJournal(r.Context(), account(r), f)
	if err != nil {
		writeError(w, r, "list journal", err)
		return
	}
	resp := JournalListResponse{Entries: make([]JournalEntryResponse, 0, len(entries)), Total: total}
	for i := range entries {
		resp.Entries = append(resp.Entries, journalResponse(&entries[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJournalEntry handles GET /api/journal-entries/{id}.
//
//	@Summary		Get a journal entry with its audio
//	@Tags			journal
//	@Produce		json
//	@Param			id	path		string	true	"Entry id"
//	@Success		200	{object}	JournalEntryResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journal-entries/{id} [get]
func (h *Handler) GetJournalEntry(w http.ResponseWriter, r *http.Request) {
	e, audio, err := h.svc.GetJournal(r.Context(), account(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get journal entry", err)
		return
	}
	resp := journalResponse(e)
	if audio != nil {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJournalAudio handles GET /api/journal-entries/{id}/audio.
//
//	@Summary		Stream the retained audio of a journal entry
//	@Tags			journal
//	@Produce		octet-stream
//	@Param			id				path	string	true	"Entry id"
//	@Param			If-None-Match	header	string	false	"Audio checksum"
//	@Success		200
//	@Success		304
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/journal-entries/{id}/audio [get]
func (h *Handler) GetJournalAudio(w http.ResponseWriter, r *http.Request) {
	e, audio, err := h.svc.GetJournal(r.Context(), account(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, "get journal audio", err)
		return
	}
	if audio == nil {
		writeJSON(w, http.StatusNotFound, errorBody("no audio"))
		return
	}

	sum := e.Checksum
	if sum == "" {
		sum = checksum.Sum(audio)
	}
	w.Header().Set("ETag", checksum.ETag(sum))
	w.Header().Set("Cache-Control", "private, max-age=0")
	if checksum.Matches(r.Header.Get("If-None-Match"), sum) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	mimeType := e.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		slog.Debug("write audio interrupted", slog.String("error", err.Error()))
	}
}

// GetUsage handles GET /api/usage.
//
//	@Summary		Current usage and limits
//	@Tags			usage
//	@Produce		json
//	@Success		200	{object}	UsageResponse
//	@Security		BearerAuth
//	@Router			/usage [get]
func (h *Handler) GetUsage(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Usage(r.Context(), account(r))
	if err != nil {
		writeError(w, r, "get usage", err)
		return
	}
	writeJSON(w, http.StatusOK, UsageResponse{
		Tier:                   u.Ledger.Tier,
		DailyCount:             u.Ledger.DailyCount,
		DailyResetAnchor:       u.Ledger.DailyResetAnchor,
		MonthlyCount:           u.Ledger.MonthlyCount,
		MonthlyResetAnchor:     u.Ledger.MonthlyResetAnchor,
		CumulativeCostEstimate: u.Ledger.CumulativeCost,
		PreviewDailyLimit:      u.PreviewDailyLimit,
		JournalDailyLimit:      u.JournalDailyLimit,
	})
}

// Events handles GET /api/events.
//
//	@Summary		Stream the caller's capture and journal events
//	@Tags			events
//	@Produce		text/event-stream
//	@Success		200
//	@Security		BearerAuth
//	@Router			/events [get]
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	h.events.Serve(w, r, account(r).UserID)
}
