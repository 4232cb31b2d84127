package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"care-intake/pkg"

	"github.com/google/uuid"
)

// Repository persists session documents in Postgres, one JSONB row per
// session.  It implements core.Persister.
type Repository struct {
	DB *sql.DB
}

// NewRepository constructs a Repository from an existing sql.DB.  The caller
// owns the connection lifecycle.
func NewRepository(db *sql.DB) *Repository { return &Repository{DB: db} }

// SaveDocument upserts the full session document.
func (r *Repository) SaveDocument(ctx context.Context, sessionID string, doc *pkg.SessionDocument) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return fmt.Errorf("invalid session key %q: %w", sessionID, err)
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal session document: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO sessions (id, document, updated_at)
         VALUES ($1, $2, NOW())
         ON CONFLICT (id) DO UPDATE
         SET document = EXCLUDED.document, updated_at = NOW()`,
		id, payload,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", sessionID, err)
	}
	return nil
}

// LoadDocument reads a session document.  A session that was never persisted
// yields (nil, nil).
func (r *Repository) LoadDocument(ctx context.Context, sessionID string) (*pkg.SessionDocument, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		// Not a key we could ever have written.
		return nil, nil
	}
	var payload []byte
	err = r.DB.QueryRowContext(ctx,
		`SELECT document FROM sessions WHERE id = $1`, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	var doc pkg.SessionDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &doc, nil
}

// DeleteDocument removes a session's row.  Deleting an absent session is not
// an error.
func (r *Repository) DeleteDocument(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil
	}
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}
