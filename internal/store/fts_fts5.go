//go:build sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS journal_fts USING fts5(
			entry_id UNINDEXED,
			transcript,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(ctx context.Context, q querier, id, transcript string) error {
	_, err := q.ExecContext(ctx, `INSERT INTO journal_fts (entry_id, transcript) VALUES (?, ?)`, id, transcript)
	if err != nil {
		return fmt.Errorf("store: insert fts: %w", err)
	}
	return nil
}

// searchPredicate matches every word of q as a quoted FTS5 term.
func searchPredicate(q string) sq.Sqlizer {
	words := strings.Fields(q)
	terms := make([]string, 0, len(words))
	for _, w := range words {
		terms = append(terms, `"`+strings.ReplaceAll(w, `"`, `""`)+`"`)
	}
	return sq.Expr(`id IN (SELECT entry_id FROM journal_fts WHERE journal_fts MATCH ?)`, strings.Join(terms, " "))
}
