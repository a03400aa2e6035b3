package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

func (s *Store) PutSession(ctx context.Context, sess *models.Session) error {
	if sess == nil || sess.ID == "" {
		return store.NewValidationError("id", "session id is required")
	}
	doc, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", sess.ID, err)
	}

	ctx, cancel := opCtx(ctx)
	defer cancel()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (id, session, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			session    = EXCLUDED.session,
			updated_at = EXCLUDED.updated_at`,
		sess.ID, doc, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT session FROM sessions WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var sess models.Session
	if err := json.Unmarshal(doc, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]*models.Session, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT session FROM sessions ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Session, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var sess models.Session
		if err := json.Unmarshal(doc, &sess); err != nil {
			return nil, fmt.Errorf("failed to decode session row: %w", err)
		}
		out = append(out, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read session rows: %w", err)
	}
	return out, nil
}
