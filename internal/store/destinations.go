package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// DestinationStore writes committed records into the task, interaction and
// contact tables shared with the respective collaborators.
type DestinationStore interface {
	CreateTask(ctx context.Context, t models.Task) error
	CreateInteraction(ctx context.Context, i models.Interaction) error
	FindContactByName(ctx context.Context, ownerID, name string) (*models.Contact, error)
	ContactNames(ctx context.Context, ownerID string) ([]string, error)
}

var _ DestinationStore = (*DB)(nil)

// CreateContact inserts a contact. Contacts are normally managed by the
// contacts collaborator; this is used for seeding.
func (db *DB) CreateContact(ctx context.Context, c models.Contact) error {
	_, err := db.q(ctx).ExecContext(ctx,
		`INSERT INTO contacts (id, owner_id, name) VALUES (?, ?, ?)`, c.ID, c.OwnerID, c.Name)
	if err != nil {
		return fmt.Errorf("store: create contact: %w", err)
	}
	return nil
}

// FindContactByName resolves a contact by name, ignoring case and surrounding
// space. Case folding happens in Go because SQLite's lower() is ASCII-only.
func (db *DB) FindContactByName(ctx context.Context, ownerID, name string) (*models.Contact, error) {
	want := strings.TrimSpace(name)
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT id, owner_id, name FROM contacts WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: find contact: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c models.Contact
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name); err != nil {
			return nil, fmt.Errorf("store: find contact: %w", err)
		}
		if strings.EqualFold(strings.TrimSpace(c.Name), want) {
			return &c, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: find contact: %w", err)
	}
	return nil, apperr.ErrNotFound
}

// ContactNames lists the names of the owner's contacts, alphabetically.
func (db *DB) ContactNames(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := db.q(ctx).QueryContext(ctx,
		`SELECT name FROM contacts WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("store: list contacts: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("store: list contacts: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// CreateTask inserts a task.
func (db *DB) CreateTask(ctx context.Context, t models.Task) error {
	var contactID any
	if t.ContactID != "" {
		contactID = t.ContactID
	}
	query, args, err := sq.Insert("tasks").
		Columns("id", "owner_id", "description", "due_date", "contact_id", "created_at").
		Values(t.ID, t.OwnerID, t.Description, t.DueDate.Format(models.DateLayout), contactID, t.CreatedAt.Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build task insert: %w", err)
	}
	if _, err := db.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

// GetTask returns a task owned by ownerID.
func (db *DB) GetTask(ctx context.Context, id, ownerID string) (*models.Task, error) {
	var (
		t         models.Task
		due       string
		contactID sql.NullString
		created   int64
	)
	err := db.q(ctx).QueryRowContext(ctx, `
		SELECT id, owner_id, description, due_date, contact_id, created_at
		FROM tasks WHERE id = ? AND owner_id = ?
	`, id, ownerID).Scan(&t.ID, &t.OwnerID, &t.Description, &due, &contactID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	t.DueDate, _ = time.Parse(models.DateLayout, due)
	t.ContactID = contactID.String
	t.CreatedAt = fromUnix(created)
	return &t, nil
}

// CreateInteraction inserts an interaction.
func (db *DB) CreateInteraction(ctx context.Context, i models.Interaction) error {
	query, args, err := sq.Insert("interactions").
		Columns("id", "owner_id", "contact_id", "note", "occurred_on", "created_at").
		Values(i.ID, i.OwnerID, i.ContactID, i.Note, i.OccurredOn.Format(models.DateLayout), i.CreatedAt.Unix()).
		ToSql()
	if err != nil {
		return fmt.Errorf("store: build interaction insert: %w", err)
	}
	if _, err := db.q(ctx).ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: create interaction: %w", err)
	}
	return nil
}

// GetInteraction returns an interaction owned by ownerID.
func (db *DB) GetInteraction(ctx context.Context, id, ownerID string) (*models.Interaction, error) {
	var (
		i        models.Interaction
		occurred string
		created  int64
	)
	err := db.q(ctx).QueryRowContext(ctx, `
		SELECT id, owner_id, contact_id, note, occurred_on, created_at
		FROM interactions WHERE id = ? AND owner_id = ?
	`, id, ownerID).Scan(&i.ID, &i.OwnerID, &i.ContactID, &i.Note, &occurred, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get interaction: %w", err)
	}
	i.OccurredOn, _ = time.Parse(models.DateLayout, occurred)
	i.CreatedAt = fromUnix(created)
	return &i, nil
}
