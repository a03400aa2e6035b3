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

const jobColumns = `id, session_id, prompt, mode, origin, status, progress,
	current_stage, result, error, created_at, started_at, completed_at`

func (s *Store) PutJob(ctx context.Context, j *models.Job) error {
	if j == nil || j.ID == "" {
		return store.NewValidationError("id", "job id is required")
	}
	var result []byte
	if j.Result != nil {
		var err error
		result, err = json.Marshal(j.Result)
		if err != nil {
			return fmt.Errorf("failed to encode result of job %s: %w", j.ID, err)
		}
	}

	ctx, cancel := opCtx(ctx)
	defer cancel()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			session_id    = EXCLUDED.session_id,
			prompt        = EXCLUDED.prompt,
			mode          = EXCLUDED.mode,
			origin        = EXCLUDED.origin,
			status        = EXCLUDED.status,
			progress      = EXCLUDED.progress,
			current_stage = EXCLUDED.current_stage,
			result        = EXCLUDED.result,
			error         = EXCLUDED.error,
			created_at    = EXCLUDED.created_at,
			started_at    = EXCLUDED.started_at,
			completed_at  = EXCLUDED.completed_at`,
		j.ID, j.SessionID, j.Prompt, string(j.Mode), j.Origin, string(j.Status),
		j.Progress, j.CurrentStage, result, j.Error,
		j.CreatedAt, j.StartedAt, j.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to store job %s: %w", j.ID, err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]*models.Job, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job rows: %w", err)
	}
	return out, nil
}

// ClaimNextQueued picks the oldest queued job under FOR UPDATE SKIP LOCKED,
// so concurrent workers never claim the same job and never block each
// other.
func (s *Store) ClaimNextQueued(ctx context.Context) (*models.Job, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1
		ORDER BY created_at, id
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		string(models.JobStateQueued))
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select queued job: %w", err)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx,
		`UPDATE jobs SET status = $2, started_at = $3 WHERE id = $1`,
		j.ID, string(models.JobStateRunning), now); err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", j.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim of job %s: %w", j.ID, err)
	}

	j.Status = models.JobStateRunning
	j.StartedAt = &now
	return j, nil
}

func (s *Store) ResetRunning(ctx context.Context) (int, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, started_at = NULL WHERE status = $1`,
		string(models.JobStateRunning), string(models.JobStateQueued))
	if err != nil {
		return 0, fmt.Errorf("failed to requeue running jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, cancel := opCtx(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM jobs
		WHERE status = ANY($1)
		  AND COALESCE(completed_at, created_at) < $2`,
		[]string{
			string(models.JobStateCompleted),
			string(models.JobStateFailed),
			string(models.JobStateCancelled),
		}, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete terminal jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (*models.Job, error) {
	var (
		j      models.Job
		mode   string
		status string
		result []byte
	)
	if err := row.Scan(&j.ID, &j.SessionID, &j.Prompt, &mode, &j.Origin, &status,
		&j.Progress, &j.CurrentStage, &result, &j.Error,
		&j.CreatedAt, &j.StartedAt, &j.CompletedAt); err != nil {
		return nil, err
	}
	j.Mode = models.PipelineMode(mode)
	j.Status = models.JobState(status)
	if len(result) > 0 {
		j.Result = &models.SwarmResult{}
		if err := json.Unmarshal(result, j.Result); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
	}
	return &j, nil
}
