// Package postgres implements internal/store.JobStore over a pgx
// connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/etmap/rawdata/internal/models"
	"github.com/etmap/rawdata/internal/store"
)

const uniqueViolationCode = "23505"

// Store is a Postgres-backed store.JobStore.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and configures a pool tuned the way the teacher's
// import-elevation tool configures its pool.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the etmap_jobs table if it does not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS etmap_jobs (
			request_id    TEXT PRIMARY KEY,
			date_from     TEXT NOT NULL,
			date_to       TEXT NOT NULL,
			geometry      JSONB NOT NULL,
			request_json  JSONB NOT NULL,
			status        TEXT NOT NULL,
			error_message TEXT,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO etmap_jobs
			(request_id, date_from, date_to, geometry, request_json, status, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, job.RequestID, job.DateFrom, job.DateTo, job.Geometry, job.OriginalReq, job.Status, job.ErrorMessage, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return store.ErrDuplicateIdentifier
		}
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, requestID string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT request_id, date_from, date_to, geometry, request_json, status, error_message, created_at, updated_at
		FROM etmap_jobs WHERE request_id = $1
	`, requestID)

	job := &models.Job{}
	err := row.Scan(&job.RequestID, &job.DateFrom, &job.DateTo, &job.Geometry, &job.OriginalReq, &job.Status, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return job, nil
}

func (s *Store) UpdateStatus(ctx context.Context, requestID string, status models.JobStatus, errMsg *string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE etmap_jobs SET status = $2, error_message = $3, updated_at = $4
		WHERE request_id = $1
	`, requestID, status, errMsg, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) FindByDateRangeAndGeometry(ctx context.Context, dateFrom, dateTo string) ([]*models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT request_id, date_from, date_to, geometry, request_json, status, error_message, created_at, updated_at
		FROM etmap_jobs WHERE date_from = $1 AND date_to = $2
	`, dateFrom, dateTo)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []*models.Job
	for rows.Next() {
		job := &models.Job{}
		if err := rows.Scan(&job.RequestID, &job.DateFrom, &job.DateTo, &job.Geometry, &job.OriginalReq, &job.Status, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}
	return out, nil
}
