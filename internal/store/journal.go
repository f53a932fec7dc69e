package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// JournalFilter narrows a journal listing.
type JournalFilter struct {
	Query   string
	Emotion models.Emotion
	Limit   int
	Offset  int
}

// JournalStore persists journal entries.
type JournalStore interface {
	CreateJournalEntry(ctx context.Context, e models.JournalEntry) error
	GetJournalEntry(ctx context.Context, id, ownerID string) (*models.JournalEntry, error)
	ListJournalEntries(ctx context.Context, ownerID string, f JournalFilter) ([]models.JournalEntry, int, error)
}

var _ JournalStore = (*DB)(nil)

var journalColumns = []string{
	"id", "owner_id", "transcript", "emotion", "mime_type", "checksum", "has_audio", "created_at",
}

// CreateJournalEntry inserts the entry and its search document.
func (db *DB) CreateJournalEntry(ctx context.Context, e models.JournalEntry) error {
	query, args, err := sq.Insert("journal_entries").
		Columns(journalColumns...).
		Values(e.ID, e.OwnerID, e.Transcript, string(e.Emotion), e.MimeType, e.Checksum, e.HasAudio, e.CreatedAt.Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build journal insert: %w", err)
	}

	q := db.q(ctx)
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: create journal entry: %w", err)
	}
	return ftsInsert(ctx, q, e.ID, e.Transcript)
}

// GetJournalEntry returns an entry owned by ownerID.
func (db *DB) GetJournalEntry(ctx context.Context, id, ownerID string) (*models.JournalEntry, error) {
	query, args, err := sq.Select(journalColumns...).
		From("journal_entries").
		Where(sq.Eq{"id": id, "owner_id": ownerID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build journal get: %w", err)
	}

	e, err := scanJournal(db.q(ctx).QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get journal entry: %w", err)
	}
	return e, nil
}

// ListJournalEntries returns a page of entries, newest first, and the total
// count matching the filter.
func (db *DB) ListJournalEntries(ctx context.Context, ownerID string, f JournalFilter) ([]models.JournalEntry, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := sq.And{sq.Eq{"owner_id": ownerID}}
	if f.Emotion != "" {
		where = append(where, sq.Eq{"emotion": string(f.Emotion)})
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		where = append(where, searchPredicate(q))
	}

	countSQL, countArgs, err := sq.Select("count(*)").From("journal_entries").Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("store: build journal count: %w", err)
	}
	var total int
	if err := db.q(ctx).QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count journal entries: %w", err)
	}

	query, args, err := sq.Select(journalColumns...).
		From("journal_entries").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(max(f.Offset, 0))).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("store: build journal list: %w", err)
	}

	rows, err := db.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list journal entries: %w", err)
	}
	defer rows.Close()

	var out []models.JournalEntry
	for rows.Next() {
		e, err := scanJournal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("store: scan journal entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJournal(row rowScanner) (*models.JournalEntry, error) {
	var (
		e       models.JournalEntry
		emotion string
		created int64
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Transcript, &emotion, &e.MimeType, &e.Checksum, &e.HasAudio, &created); err != nil {
		return nil, err
	}
	e.Emotion = models.Emotion(emotion)
	e.CreatedAt = fromUnix(created)
	return &e, nil
}
