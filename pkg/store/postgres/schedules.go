package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/codehive/swarmd/pkg/models"
	"github.com/codehive/swarmd/pkg/store"
)

func (s *Store) PutScheduledTask(ctx context.Context, t *models.ScheduledTask) error {
	if t == nil || t.ID == "" {
		return store.NewValidationError("id", "task id is required")
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode scheduled task %s: %w", t.ID, err)
	}

	ctx, cancel := opCtx(ctx)
	defer cancel()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scheduled_tasks (id, enabled, next_run_at, task)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			enabled     = EXCLUDED.enabled,
			next_run_at = EXCLUDED.next_run_at,
			task        = EXCLUDED.task`,
		t.ID, t.Enabled, t.NextRunAt, doc)
	if err != nil {
		return fmt.Errorf("failed to store scheduled task %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetScheduledTask(ctx context.Context, id string) (*models.ScheduledTask, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT task FROM scheduled_tasks WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled task %s: %w", id, err)
	}

	var t models.ScheduledTask
	if err := json.Unmarshal(doc, &t); err != nil {
		return nil, fmt.Errorf("failed to decode scheduled task %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) ListScheduledTasks(ctx context.Context) ([]*models.ScheduledTask, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	return s.queryTasks(ctx, `SELECT task FROM scheduled_tasks ORDER BY next_run_at, id`)
}

func (s *Store) DeleteScheduledTask(ctx context.Context, id string) error {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM scheduled_tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete scheduled task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListDueTasks(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()
	return s.queryTasks(ctx, `
		SELECT task FROM scheduled_tasks
		WHERE enabled AND next_run_at <= $1
		ORDER BY next_run_at, id`, now)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*models.ScheduledTask, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}
	defer rows.Close()

	out := make([]*models.ScheduledTask, 0)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan scheduled task row: %w", err)
		}
		var t models.ScheduledTask
		if err := json.Unmarshal(doc, &t); err != nil {
			return nil, fmt.Errorf("failed to decode scheduled task row: %w", err)
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scheduled task rows: %w", err)
	}
	return out, nil
}
