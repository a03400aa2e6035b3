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

func (s *Store) PutEvidence(ctx context.Context, e *models.EvidenceEntry) error {
	if e == nil || e.ID == "" {
		return store.NewValidationError("id", "evidence id is required")
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode evidence %s: %w", e.ID, err)
	}

	ctx, cancel := opCtx(ctx)
	defer cancel()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO evidence_entries (id, entry, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			entry      = EXCLUDED.entry,
			created_at = EXCLUDED.created_at`,
		e.ID, doc, e.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to store evidence %s: %w", e.ID, err)
	}
	return nil
}

func (s *Store) GetEvidence(ctx context.Context, id string) (*models.EvidenceEntry, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT entry FROM evidence_entries WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load evidence %s: %w", id, err)
	}

	var e models.EvidenceEntry
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("failed to decode evidence %s: %w", id, err)
	}
	return &e, nil
}

func (s *Store) ListEvidence(ctx context.Context) ([]*models.EvidenceEntry, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT entry FROM evidence_entries ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	out := make([]*models.EvidenceEntry, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan evidence row: %w", err)
		}
		var e models.EvidenceEntry
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("failed to decode evidence row: %w", err)
		}
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read evidence rows: %w", err)
	}
	return out, nil
}
