//go:build !sqlite_fts5

package store

import (
	"context"
	"database/sql"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on journal_entries.transcript.
	return nil
}

func ftsInsert(context.Context, querier, string, string) error { return nil }

func searchPredicate(q string) sq.Sqlizer {
	var and sq.And
	for _, w := range strings.Fields(q) {
		and = append(and, sq.Expr(`transcript LIKE ? ESCAPE '\'`, "%"+escapeLike(w)+"%"))
	}
	return and
}

// escapeLike makes LIKE wildcards in s match literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
