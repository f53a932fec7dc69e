package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/auth"
	"github.com/starford/ansuz/internal/commit"
	"github.com/starford/ansuz/internal/extract"
	"github.com/starford/ansuz/internal/guard"
	"github.com/starford/ansuz/internal/ledger"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/voice"
)

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return s.text, s.err
}

type stubLLM struct {
	reply string
}

func (s *stubLLM) Complete(context.Context, string, string) (string, models.TokenUsage, error) {
	return s.reply, models.TokenUsage{InputTokens: 10, OutputTokens: 5}, nil
}

type testEnv struct {
	db          *store.DB
	transcriber *stubTranscriber
	router      http.Handler
}

// newTestEnv wires the real store, blobs, ledger and router behind the API.
// An empty secret authenticates every request as user u1.
func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestDB(t)
	_, blobs := testutil.TestBlobs(t)
	now := func() time.Time { return testNow }

	env := &testEnv{db: db, transcriber: &stubTranscriber{text: "Llamar a Juan mañana por su cumpleaños"}}
	svc := voice.NewService(voice.Deps{
		Store:       db,
		Blobs:       blobs,
		Transcriber: env.transcriber,
		Extractor:   extract.NewExtractor(&stubLLM{reply: `{"target":"Juan","description":"Llamar por su cumpleaños","date":"2026-03-11"}`}, logger),
		Classifier:  extract.NewClassifier(&stubLLM{reply: "Gratitude"}, logger),
		Guard:       guard.New([]string{"palabrota"}, guard.DefaultMinChars),
		Quota:       ledger.NewService(db, ledger.Config{Location: time.UTC, Now: now}, logger),
		Router:      commit.NewRouter(db, blobs, now, logger),
	}, voice.Config{
		MaxBytes:          1024,
		PreviewDailyLimit: 2,
		JournalDailyLimit: 2,
		Location:          time.UTC,
		Now:               now,
	}, logger)

	var authn auth.Authenticator = auth.Static{Account: models.Account{UserID: "u1", Tier: models.TierMetered}}
	if secret != "" {
		authn = auth.NewJWTVerifier(secret, "ansuz")
	}
	env.router = NewRouter(svc, authn, nil)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/voice-captures", strings.NewReader("fake-opus-bytes"))
	req.Header.Set("Content-Type", "audio/webm")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp CaptureResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TempCaptureID == "" {
		t.Fatal("empty temp_capture_id")
	}
	if !resp.ExpiresAt.Equal(testNow.Add(voice.DefaultTTL)) {
		t.Errorf("expires_at = %v", resp.ExpiresAt)
	}
	return resp.TempCaptureID
}

func TestCaptureToTask(t *testing.T) {
	env := newTestEnv(t, "")
	if err := env.db.CreateContact(context.Background(), models.Contact{ID: "juan-1", OwnerID: "u1", Name: "Juan"}); err != nil {
		t.Fatal(err)
	}

	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/voice-captures/"+id+"/transcribe", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("transcribe status = %d, body = %s", w.Code, w.Body.String())
	}
	var tr TranscriptResponse
	_ = json.Unmarshal(w.Body.Bytes(), &tr)
	if tr.Text != "Llamar a Juan mañana por su cumpleaños" {
		t.Errorf("text = %q", tr.Text)
	}

	w = env.do(t, http.MethodPost, "/voice-captures/"+id+"/preview", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("preview status = %d, body = %s", w.Code, w.Body.String())
	}
	var pv PreviewResponse
	_ = json.Unmarshal(w.Body.Bytes(), &pv)
	if pv.Target != "Juan" || pv.Date != "2026-03-11" || pv.Outcome != models.OutcomeParsed {
		t.Errorf("preview = %+v", pv)
	}

	w = env.do(t, http.MethodPost, "/voice-captures/"+id+"/commit", CommitRequest{
		Destination: "task",
		Target:      pv.Target,
		Description: pv.Description,
		Date:        pv.Date,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("commit status = %d, body = %s", w.Code, w.Body.String())
	}
	var cr CommitResponse
	_ = json.Unmarshal(w.Body.Bytes(), &cr)
	if cr.Task == nil {
		t.Fatalf("missing task in %s", w.Body.String())
	}
	if cr.Task.ContactID != "juan-1" || cr.Task.DueDate != "2026-03-11" {
		t.Errorf("task = %+v", cr.Task)
	}

	// The capture is consumed.
	w = env.do(t, http.MethodPost, "/voice-captures/"+id+"/transcribe", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("transcribe after commit = %d, want 404", w.Code)
	}
}

func TestUploadJSONBase64(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/voice-captures", UploadCaptureRequest{
		AudioBase64: base64.StdEncoding.EncodeToString([]byte("wav-bytes")),
		MimeType:    "audio/wav",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, "/voice-captures", UploadCaptureRequest{AudioBase64: "%%%"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad base64 = %d, want 400", w.Code)
	}
}

func TestUploadTooLarge(t *testing.T) {
	env := newTestEnv(t, "")

	req := httptest.NewRequest(http.MethodPost, "/voice-captures", bytes.NewReader(make([]byte, 2048)))
	req.Header.Set("Content-Type", "audio/webm")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/voice-captures", http.NoBody)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty upload = %d, want 400", w.Code)
	}
}

func TestDeleteCaptureIdempotent(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.upload(t)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodDelete, "/voice-captures/"+id, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("delete #%d = %d", i+1, w.Code)
		}
	}
	w := env.do(t, http.MethodDelete, "/voice-captures/never-existed", nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete unknown = %d, want 200", w.Code)
	}
}

func TestPreviewRejectedContent(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/voice-captures/"+id+"/preview", PreviewRequest{Transcript: "una palabrota aquí"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var body errResponse
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.Reason != guard.RejectedReason {
		t.Errorf("reason = %q, want %q", body.Reason, guard.RejectedReason)
	}
	if strings.Contains(w.Body.String(), "palabrota") {
		t.Errorf("response leaks the matched term: %s", w.Body.String())
	}
}

func TestPreviewQuotaExceeded(t *testing.T) {
	env := newTestEnv(t, "")

	for i := 0; i < 2; i++ {
		id := env.upload(t)
		w := env.do(t, http.MethodPost, "/voice-captures/"+id+"/preview", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("preview #%d = %d, body = %s", i+1, w.Code, w.Body.String())
		}
	}

	id := env.upload(t)
	w := env.do(t, http.MethodPost, "/voice-captures/"+id+"/preview", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("third preview = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), "upgrade") {
		t.Errorf("body = %s", w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/usage", nil)
	var u UsageResponse
	_ = json.Unmarshal(w.Body.Bytes(), &u)
	if u.DailyCount != 2 || u.PreviewDailyLimit != 2 {
		t.Errorf("usage = %+v", u)
	}
}

func TestTranscribeProviderDown(t *testing.T) {
	env := newTestEnv(t, "")
	env.transcriber.err = apperr.Provider("deepgram", errors.New("connection refused"))
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/voice-captures/"+id+"/transcribe", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCommitValidation(t *testing.T) {
	env := newTestEnv(t, "")
	id := env.upload(t)

	cases := []struct {
		name string
		req  CommitRequest
	}{
		{"bad date", CommitRequest{Destination: "task", Description: "x", Date: "11/03/2026"}},
		{"unknown destination", CommitRequest{Destination: "calendar", Description: "x", Date: "2026-03-11"}},
		{"journal via commit", CommitRequest{Destination: "journal", Description: "x", Date: "2026-03-11"}},
		{"empty description", CommitRequest{Destination: "task", Date: "2026-03-11"}},
		{"interaction without contact", CommitRequest{Destination: "interaction", Target: "Unassigned", Description: "x", Date: "2026-03-11"}},
	}
	for _, tc := range cases {
		w := env.do(t, http.MethodPost, "/voice-captures/"+id+"/commit", tc.req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, w.Code)
		}
	}

	// Rejected payloads leave the capture in place.
	w := env.do(t, http.MethodPost, "/voice-captures/"+id+"/transcribe", nil)
	if w.Code != http.StatusOK {
		t.Errorf("capture consumed by invalid commit: %d", w.Code)
	}
}

func TestJournalLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	env.transcriber.text = "Hoy me sentí agradecida por mi familia"
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/journal-entries", CreateJournalRequest{TempCaptureID: id})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created JournalEntryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.EmotionLabel != models.EmotionGratitude || !created.HasAudio {
		t.Errorf("created = %+v", created)
	}

	w = env.do(t, http.MethodGet, "/journal-entries?emotion=gratitude", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list JournalListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &list)
	if list.Total != 1 || len(list.Entries) != 1 {
		t.Fatalf("list = %+v", list)
	}
	if list.Entries[0].AudioBase64 != "" {
		t.Error("list must not carry audio")
	}

	w = env.do(t, http.MethodGet, "/journal-entries/"+created.ID, nil)
	var got JournalEntryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	audio, _ := base64.StdEncoding.DecodeString(got.AudioBase64)
	if string(audio) != "fake-opus-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if got.Transcript != "Hoy me sentí agradecida por mi familia" {
		t.Errorf("transcript = %q", got.Transcript)
	}
}

func TestJournalIgnoresClientTranscript(t *testing.T) {
	env := newTestEnv(t, "")
	env.transcriber.text = "Hoy me sentí agradecida por mi familia"
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/journal-entries", map[string]string{
		"temp_capture_id": id,
		"transcript":      "Texto que no corresponde al audio",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}
	var created JournalEntryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Transcript != "Hoy me sentí agradecida por mi familia" {
		t.Errorf("transcript = %q, want the capture's own transcription", created.Transcript)
	}
}

func TestJournalAudioETag(t *testing.T) {
	env := newTestEnv(t, "")
	env.transcriber.text = "Un día tranquilo en casa"
	id := env.upload(t)

	w := env.do(t, http.MethodPost, "/journal-entries", CreateJournalRequest{TempCaptureID: id})
	var created JournalEntryResponse
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = env.do(t, http.MethodGet, "/journal-entries/"+created.ID+"/audio", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("audio status = %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "audio/webm" {
		t.Errorf("content-type = %q", got)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}

	req := httptest.NewRequest(http.MethodGet, "/journal-entries/"+created.ID+"/audio", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("conditional get = %d, want 304", rec.Code)
	}
}

func TestListJournalInvalidEmotion(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/journal-entries?emotion=Anger", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestJournalEntryNotFound(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/journal-entries/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	w = env.do(t, http.MethodPost, "/journal-entries", CreateJournalRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing capture id = %d, want 400", w.Code)
	}
}

func TestAuthJWT(t *testing.T) {
	env := newTestEnv(t, "test-secret")

	w := env.do(t, http.MethodGet, "/usage", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d, want 401", w.Code)
	}

	token, err := auth.NewJWTVerifier("test-secret", "ansuz").Issue(models.Account{UserID: "u9", Tier: models.TierUnmetered}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("with token = %d, body = %s", rec.Code, rec.Body.String())
	}
	var u UsageResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &u)
	if u.Tier != models.TierUnmetered {
		t.Errorf("tier = %q", u.Tier)
	}

	req = httptest.NewRequest(http.MethodGet, "/usage", nil)
	req.Header.Set("Authorization", "Bearer "+token+"x")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("tampered token = %d, want 401", rec.Code)
	}
}

func TestCapturesAreOwnerScoped(t *testing.T) {
	env := newTestEnv(t, "s3cret")
	verifier := auth.NewJWTVerifier("s3cret", "ansuz")
	alice, _ := verifier.Issue(models.Account{UserID: "alice", Tier: models.TierMetered}, time.Hour)
	bob, _ := verifier.Issue(models.Account{UserID: "bob", Tier: models.TierMetered}, time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/voice-captures", strings.NewReader("audio"))
	req.Header.Set("Authorization", "Bearer "+alice)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload = %d, body = %s", w.Code, w.Body.String())
	}
	var c CaptureResponse
	_ = json.Unmarshal(w.Body.Bytes(), &c)

	req = httptest.NewRequest(http.MethodPost, "/voice-captures/"+c.TempCaptureID+"/transcribe", nil)
	req.Header.Set("Authorization", "Bearer "+bob)
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("other owner transcribe = %d, want 404", w.Code)
	}
}
