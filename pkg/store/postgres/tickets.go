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

func (s *Store) PutTicket(ctx context.Context, t *models.Ticket) error {
	if t == nil || t.ID == "" {
		return store.NewValidationError("id", "ticket id is required")
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode ticket %s: %w", t.ID, err)
	}

	ctx, cancel := opCtx(ctx)
	defer cancel()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO tickets (id, project_id, status, ticket, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			status     = EXCLUDED.status,
			ticket     = EXCLUDED.ticket,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		t.ID, t.ProjectID, string(t.Status), doc, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to store ticket %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT ticket FROM tickets WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ticket %s: %w", id, err)
	}

	var t models.Ticket
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("failed to decode ticket %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) ListTickets(ctx context.Context) ([]*models.Ticket, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT ticket FROM tickets ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Ticket, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan ticket row: %w", err)
		}
		var t models.Ticket
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("failed to decode ticket row: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ticket rows: %w", err)
	}
	return out, nil
}
