package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/auth"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/voice"
)

// NewRouter creates a chi router with all API routes mounted.
// events, if non-nil, is served at GET /events inside the auth group.
func NewRouter(svc *voice.Service, authn auth.Authenticator, events *sse.Broker) chi.Router {
	h := NewHandler(svc, events)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authn))

	r.Route("/voice-captures", func(r chi.Router) {
		r.Post("/", h.UploadCapture)
		r.Delete("/{id}", h.DeleteCapture)
		r.Post("/{id}/transcribe", h.TranscribeCapture)
		r.Post("/{id}/preview", h.PreviewCapture)
		r.Post("/{id}/commit", h.CommitCapture)
	})

	r.Route("/journal-entries", func(r chi.Router) {
		r.Get("/", h.ListJournalEntries)
		r.Post("/", h.CreateJournalEntry)
		r.Get("/{id}", h.GetJournalEntry)
		r.Get("/{id}/audio", h.GetJournalAudio)
	})

	r.Get("/usage", h.GetUsage)

	if events != nil {
		r.Get("/events", h.Events)
	}

	return r
}
