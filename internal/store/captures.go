package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// CaptureStore manages temporary capture rows.
type CaptureStore interface {
	CreateCapture(ctx context.Context, c models.TempCapture) error
	GetCapture(ctx context.Context, id, ownerID string, now time.Time) (*models.TempCapture, error)
	DeleteCapture(ctx context.Context, id, ownerID string) (bool, error)
	ConsumeCapture(ctx context.Context, id, ownerID string, now time.Time) (*models.TempCapture, error)
	PurgeExpiredCaptures(ctx context.Context, now time.Time) ([]string, error)
}

var _ CaptureStore = (*DB)(nil)

const captureColumns = `id, owner_id, mime_type, size, checksum, created_at, expires_at`

// CreateCapture inserts a new capture row.
func (db *DB) CreateCapture(ctx context.Context, c models.TempCapture) error {
	_, err := db.q(ctx).ExecContext(ctx, `
		INSERT INTO temp_captures (`+captureColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.OwnerID, c.MimeType, c.Size, c.Checksum, c.CreatedAt.Unix(), c.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("store: create capture: %w", err)
	}
	return nil
}

// GetCapture returns a live capture owned by ownerID.
// Expired captures and captures of other owners are reported as not found.
func (db *DB) GetCapture(ctx context.Context, id, ownerID string, now time.Time) (*models.TempCapture, error) {
	row := db.q(ctx).QueryRowContext(ctx, `
		SELECT `+captureColumns+`
		FROM temp_captures
		WHERE id = ? AND owner_id = ? AND expires_at > ?
	`, id, ownerID, now.Unix())
	c, err := scanCapture(row)
	if err != nil {
		return nil, fmt.Errorf("store: get capture: %w", err)
	}
	return c, nil
}

// DeleteCapture removes the capture row. It reports whether a row existed.
func (db *DB) DeleteCapture(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := db.q(ctx).ExecContext(ctx,
		`DELETE FROM temp_captures WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("store: delete capture: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ConsumeCapture deletes a live capture and returns it. Exactly one caller
// can consume a given capture; later callers get apperr.ErrNotFound.
func (db *DB) ConsumeCapture(ctx context.Context, id, ownerID string, now time.Time) (*models.TempCapture, error) {
	row := db.q(ctx).QueryRowContext(ctx, `
		DELETE FROM temp_captures
		WHERE id = ? AND owner_id = ? AND expires_at > ?
		RETURNING `+captureColumns,
		id, ownerID, now.Unix())
	c, err := scanCapture(row)
	if err != nil {
		return nil, fmt.Errorf("store: consume capture: %w", err)
	}
	return c, nil
}

// PurgeExpiredCaptures deletes every capture whose TTL has elapsed and
// returns their ids so the caller can drop the blobs.
func (db *DB) PurgeExpiredCaptures(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`DELETE FROM temp_captures WHERE expires_at <= ? RETURNING id`, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("store: purge captures: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: purge captures: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanCapture(row *sql.Row) (*models.TempCapture, error) {
	var (
		c                  models.TempCapture
		created, expiresAt int64
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.MimeType, &c.Size, &c.Checksum, &created, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.CreatedAt = fromUnix(created)
	c.ExpiresAt = fromUnix(expiresAt)
	return &c, nil
}
