// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes one user's journal and usage over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/store"
	"github.com/starford/ansuz/internal/voice"
)

const (
	guideURI     = "ansuz://journal-guide"
	defaultLimit = 20
	maxLimit     = 200
)

// Journal is the subset of voice.Service the tools read from.
type Journal interface {
	ListJournal(ctx context.Context, acct models.Account, f store.JournalFilter) ([]models.JournalEntry, int, error)
	JournalEntry(ctx context.Context, acct models.Account, id string) (*models.JournalEntry, error)
	Usage(ctx context.Context, acct models.Account) (*voice.Usage, error)
}

// Server wraps the MCP server with Ansuz tools bound to one account.
type Server struct {
	mcp     *server.MCPServer
	journal Journal
	acct    models.Account
}

// New creates a new MCP server with all Ansuz tools registered.
func New(journal Journal, acct models.Account) *Server {
	s := &Server{journal: journal, acct: acct}

	s.mcp = server.NewMCPServer(
		"Ansuz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_journal_entries",
		mcp.WithDescription("List journal entries, newest first. Audio is never included."),
		mcp.WithString("emotion", mcp.Description("Optional emotion label filter (Calm, Stress, Gratitude, Sadness, Joy, Depressive)")),
		mcp.WithNumber("limit", mcp.Description("Page size, default 20, max 200")),
		mcp.WithNumber("offset", mcp.Description("Number of entries to skip")),
	), s.listJournalEntries)

	s.mcp.AddTool(mcp.NewTool("search_journal",
		mcp.WithDescription("Full-text search through journal transcripts."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchJournal)

	s.mcp.AddTool(mcp.NewTool("read_journal_entry",
		mcp.WithDescription("Read a single journal entry by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Journal entry id")),
	), s.readJournalEntry)

	s.mcp.AddTool(mcp.NewTool("usage_summary",
		mcp.WithDescription("Current AI usage counters and daily limits."),
	), s.usageSummary)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Journal Guide",
			mcp.WithResourceDescription("Journal entry fields and the emotion label set."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type entrySummary struct {
	ID           string         `json:"id"`
	Transcript   string         `json:"transcript"`
	EmotionLabel models.Emotion `json:"emotion_label"`
	HasAudio     bool           `json:"has_audio"`
	CreatedAt    string         `json:"created_at"`
}

type entryPage struct {
	Entries []entrySummary `json:"entries"`
	Total   int            `json:"total"`
}

func summarize(e *models.JournalEntry) entrySummary {
	return entrySummary{
		ID:           e.ID,
		Transcript:   e.Transcript,
		EmotionLabel: e.Emotion,
		HasAudio:     e.HasAudio,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) list(ctx context.Context, f store.JournalFilter) *mcp.CallToolResult {
	entries, total, err := s.journal.ListJournal(ctx, s.acct, f)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	page := entryPage{Entries: make([]entrySummary, 0, len(entries)), Total: total}
	for i := range entries {
		page.Entries = append(page.Entries, summarize(&entries[i]))
	}
	return jsonResult(page)
}

func (s *Server) listJournalEntries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	f := store.JournalFilter{
		Limit:  min(limit, maxLimit),
		Offset: max(req.GetInt("offset", 0), 0),
	}
	if raw := req.GetString("emotion", ""); raw != "" {
		e, ok := models.ParseEmotion(raw)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("unknown emotion label: %s", raw)), nil
		}
		f.Emotion = e
	}
	return s.list(ctx, f), nil
}

func (s *Server) searchJournal(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return s.list(ctx, store.JournalFilter{Query: query, Limit: defaultLimit}), nil
}

func (s *Server) readJournalEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.journal.JournalEntry(ctx, s.acct, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(summarize(e)), nil
}

func (s *Server) usageSummary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	u, err := s.journal.Usage(ctx, s.acct)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"tier":                     u.Ledger.Tier,
		"daily_count":              u.Ledger.DailyCount,
		"monthly_count":            u.Ledger.MonthlyCount,
		"cumulative_cost_estimate": u.Ledger.CumulativeCost,
		"preview_daily_limit":      u.PreviewDailyLimit,
		"journal_daily_limit":      u.JournalDailyLimit,
	}), nil
}

func (s *Server) readGuideResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     JournalGuide,
		},
	}, nil
}
