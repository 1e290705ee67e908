package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"telegram-memo-assistant/internal/domain"
	"telegram-memo-assistant/internal/domain/model"
	"telegram-memo-assistant/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

// jobRepo is the authoritative job store. Status transitions guard against
// leaving a terminal state at the SQL level: the WHERE clause excludes
// terminal rows, so a redelivered entry racing a finished job surfaces as
// domain.ErrAlreadyTerminal instead of a double transition.
type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

const terminalGuard = `status NOT IN ('completed', 'failed', 'expired')`

func (r *jobRepo) Create(ctx context.Context, job *model.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO jobs (id, kind, user_id, payload, status, attempt_count, result, last_error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err = r.pool.Exec(ctx, q,
		job.ID, string(job.Kind), job.UserID, payload, string(job.Status),
		job.AttemptCount, job.Result, job.LastError, job.CreatedAt, job.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *jobRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	const q = `
SELECT id, kind, user_id, payload, status, attempt_count, result, last_error, created_at, updated_at
FROM jobs WHERE id = $1;`

	var job model.Job
	var kind, status string
	var payload []byte
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&job.ID, &kind, &job.UserID, &payload, &status,
		&job.AttemptCount, &job.Result, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	job.Kind = model.JobKind(kind)
	job.Status = model.JobStatus(status)
	job.Payload = map[string]string{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return nil, err
		}
	}
	return &job, nil
}

func (r *jobRepo) MarkProcessing(ctx context.Context, id string) (int, error) {
	const q = `
UPDATE jobs
SET status = 'processing', attempt_count = attempt_count + 1, updated_at = $2
WHERE id = $1 AND ` + terminalGuard + `
RETURNING attempt_count;`

	var attempts int
	err := r.pool.QueryRow(ctx, q, id, time.Now()).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, r.noRowsReason(ctx, id)
	}
	return attempts, err
}

func (r *jobRepo) Requeue(ctx context.Context, id string, lastError string) error {
	const q = `
UPDATE jobs SET status = 'queued', last_error = $2, updated_at = $3
WHERE id = $1 AND ` + terminalGuard + `;`
	return r.transition(ctx, q, id, lastError)
}

func (r *jobRepo) Complete(ctx context.Context, id string, result string) error {
	const q = `
UPDATE jobs SET status = 'completed', result = $2, last_error = '', updated_at = $3
WHERE id = $1 AND ` + terminalGuard + `;`
	return r.transition(ctx, q, id, result)
}

func (r *jobRepo) Terminate(ctx context.Context, id string, status model.JobStatus, lastError string) error {
	if status != model.JobStatusFailed && status != model.JobStatusExpired {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE jobs SET status = $4, last_error = $2, updated_at = $3
WHERE id = $1 AND ` + terminalGuard + `;`

	tag, err := r.pool.Exec(ctx, q, id, lastError, time.Now(), string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.noRowsReason(ctx, id)
	}
	return nil
}

func (r *jobRepo) transition(ctx context.Context, q, id, arg string) error {
	tag, err := r.pool.Exec(ctx, q, id, arg, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.noRowsReason(ctx, id)
	}
	return nil
}

// noRowsReason distinguishes "job gone" from "job already terminal" after a
// guarded update matched nothing.
func (r *jobRepo) noRowsReason(ctx context.Context, id string) error {
	var status string
	err := r.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if model.JobStatus(status).Terminal() {
		return domain.ErrAlreadyTerminal
	}
	return domain.ErrNotFound
}
