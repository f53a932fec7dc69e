package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/ledger"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/testutil"
	"github.com/starford/ansuz/internal/voice"
)

var owner = models.Account{UserID: "u1", Tier: models.TierMetered}

func testServer(t *testing.T) (*Server, *store.DB) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db := testutil.TestDB(t)
	_, blobs := testutil.TestBlobs(t)
	svc := voice.NewService(voice.Deps{
		Store: db,
		Blobs: blobs,
		Quota: ledger.NewService(db, ledger.Config{}, logger),
	}, voice.Config{}, logger)

	return New(svc, owner), db
}

func seed(t *testing.T, db *store.DB, id, owner, transcript string, emotion models.Emotion, at time.Time) {
	t.Helper()
	err := db.CreateJournalEntry(context.Background(), models.JournalEntry{
		ID:         id,
		OwnerID:    owner,
		Transcript: transcript,
		Emotion:    emotion,
		CreatedAt:  at,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_journal_entries":
		result, err = srv.listJournalEntries(ctx, req)
	case "search_journal":
		result, err = srv.searchJournal(ctx, req)
	case "read_journal_entry":
		result, err = srv.readJournalEntry(ctx, req)
	case "usage_summary":
		result, err = srv.usageSummary(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListJournalEntries(t *testing.T) {
	srv, db := testServer(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seed(t, db, "j1", "u1", "Hoy me sentí agradecida por mi familia", models.EmotionGratitude, base)
	seed(t, db, "j2", "u1", "Mucho trabajo y poco tiempo", models.EmotionStress, base.Add(time.Hour))
	seed(t, db, "j3", "u2", "Entrada de otra persona", models.EmotionJoy, base)

	r := callTool(t, srv, "list_journal_entries", map[string]any{})
	var page entryPage
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatalf("decode: %v (%s)", err, resultText(r))
	}
	if page.Total != 2 || len(page.Entries) != 2 {
		t.Fatalf("page = %+v", page)
	}
	if page.Entries[0].ID != "j2" {
		t.Errorf("first entry = %s, want newest j2", page.Entries[0].ID)
	}

	r = callTool(t, srv, "list_journal_entries", map[string]any{"emotion": "gratitude"})
	page = entryPage{}
	_ = json.Unmarshal([]byte(resultText(r)), &page)
	if page.Total != 1 || page.Entries[0].ID != "j1" {
		t.Errorf("filtered page = %+v", page)
	}
}

func TestListJournalEntriesBadEmotion(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "list_journal_entries", map[string]any{"emotion": "Anger"})
	if !r.IsError {
		t.Error("expected error for unknown emotion")
	}
}

func TestSearchJournal(t *testing.T) {
	srv, db := testServer(t)
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seed(t, db, "j1", "u1", "Paseo por la playa con mi hermana", models.EmotionJoy, base)
	seed(t, db, "j2", "u1", "Reunión larga en la oficina", models.EmotionStress, base)

	r := callTool(t, srv, "search_journal", map[string]any{"query": "playa"})
	text := resultText(r)
	if !strings.Contains(text, `"j1"`) || strings.Contains(text, `"j2"`) {
		t.Errorf("search result = %s", text)
	}

	r = callTool(t, srv, "search_journal", map[string]any{})
	if !r.IsError {
		t.Error("expected error for missing query")
	}
}

func TestReadJournalEntry(t *testing.T) {
	srv, db := testServer(t)
	seed(t, db, "j1", "u1", "Un día tranquilo", models.EmotionCalm, time.Now())
	seed(t, db, "other", "u2", "No es mío", models.EmotionCalm, time.Now())

	r := callTool(t, srv, "read_journal_entry", map[string]any{"id": "j1"})
	if r.IsError || !strings.Contains(resultText(r), "Un día tranquilo") {
		t.Errorf("read = %s", resultText(r))
	}

	r = callTool(t, srv, "read_journal_entry", map[string]any{"id": "other"})
	if !r.IsError {
		t.Error("expected not found for another user's entry")
	}
}

// metadataJournal serves entries from a map and has no audio access.
type metadataJournal struct {
	entries map[string]models.JournalEntry
}

func (m metadataJournal) ListJournal(context.Context, models.Account, store.JournalFilter) ([]models.JournalEntry, int, error) {
	return nil, 0, nil
}

func (m metadataJournal) JournalEntry(_ context.Context, acct models.Account, id string) (*models.JournalEntry, error) {
	e, ok := m.entries[id]
	if !ok || e.OwnerID != acct.UserID {
		return nil, apperr.ErrNotFound
	}
	return &e, nil
}

func (m metadataJournal) Usage(context.Context, models.Account) (*voice.Usage, error) {
	return &voice.Usage{}, nil
}

func TestReadJournalEntry_WithRetainedAudio(t *testing.T) {
	srv := New(metadataJournal{entries: map[string]models.JournalEntry{
		"j1": {ID: "j1", OwnerID: "u1", Transcript: "Grabado con audio", Emotion: models.EmotionJoy, HasAudio: true, CreatedAt: time.Now()},
	}}, owner)

	r := callTool(t, srv, "read_journal_entry", map[string]any{"id": "j1"})
	if r.IsError || !strings.Contains(resultText(r), "Grabado con audio") {
		t.Errorf("read = %s", resultText(r))
	}

	r = callTool(t, srv, "read_journal_entry", map[string]any{"id": "missing"})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("missing = %s", resultText(r))
	}
}

func TestUsageSummary(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "usage_summary", nil)
	text := resultText(r)
	if !strings.Contains(text, `"daily_count": 0`) || !strings.Contains(text, `"preview_daily_limit": 20`) {
		t.Errorf("usage = %s", text)
	}
}

func TestGuideResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readGuideResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || !strings.Contains(tc.Text, "Depressive") {
		t.Errorf("guide = %+v", contents)
	}
}
