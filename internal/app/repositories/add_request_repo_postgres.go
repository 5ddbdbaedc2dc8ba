package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

type postgresAddRequestRepo struct {
	db *sql.DB
}

func NewPostgresAddRequestRepo(db *sql.DB) (AddRequestRepository, error) {
	repo := &postgresAddRequestRepo{db: db}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *postgresAddRequestRepo) ensureSchema() error {
	const createTable = `
        CREATE TABLE IF NOT EXISTS add_requests (
            registration_id TEXT NOT NULL,
            group_id TEXT NOT NULL,
            requested_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            no_of_attempts INTEGER NOT NULL DEFAULT 0,
            last_attempt TIMESTAMPTZ NULL,
            fulfilled BOOLEAN NOT NULL DEFAULT FALSE,
            fulfilled_at TIMESTAMPTZ NULL,
            PRIMARY KEY (registration_id, group_id)
        )`
	if _, err := r.db.Exec(createTable); err != nil {
		return err
	}
	if _, err := r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_add_requests_pending ON add_requests (group_id, fulfilled, requested_at)`); err != nil {
		return err
	}
	return nil
}

func (r *postgresAddRequestRepo) Create(ctx context.Context, registrationID, groupID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
        INSERT INTO add_requests (registration_id, group_id, requested_at)
        VALUES ($1, $2, $3)`, registrationID, groupID, at.UTC())
	return r.mapError(err)
}

func (r *postgresAddRequestRepo) Pending(ctx context.Context, groupID string, maxAttempts int) ([]AddRequest, error) {
	const query = `
        SELECT registration_id, group_id, requested_at, no_of_attempts, last_attempt
        FROM add_requests
        WHERE group_id = $1 AND fulfilled = FALSE AND ($2 <= 0 OR no_of_attempts < $2)
        ORDER BY requested_at, registration_id`
	rows, err := r.db.QueryContext(ctx, query, groupID, maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("pending add requests for %s: %w", groupID, err)
	}
	defer rows.Close()

	var out []AddRequest
	for rows.Next() {
		var (
			req  AddRequest
			last sql.NullTime
		)
		if err := rows.Scan(&req.RegistrationID, &req.GroupID, &req.RequestedAt, &req.Attempts, &last); err != nil {
			return nil, err
		}
		req.RequestedAt = req.RequestedAt.UTC()
		if last.Valid {
			t := last.Time.UTC()
			req.LastAttempt = &t
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *postgresAddRequestRepo) MarkFulfilled(ctx context.Context, registrationID, groupID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE add_requests
        SET fulfilled = TRUE, fulfilled_at = $1, last_attempt = $1
        WHERE registration_id = $2 AND group_id = $3`, at.UTC(), registrationID, groupID)
	return r.expectRow(res, err)
}

func (r *postgresAddRequestRepo) IncrementAttempt(ctx context.Context, registrationID, groupID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
        UPDATE add_requests
        SET no_of_attempts = no_of_attempts + 1, last_attempt = $1
        WHERE registration_id = $2 AND group_id = $3`, at.UTC(), registrationID, groupID)
	return r.expectRow(res, err)
}

func (r *postgresAddRequestRepo) expectRow(res sql.Result, err error) error {
	if err != nil {
		return r.mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAddRequestNotFound
	}
	return nil
}

func (r *postgresAddRequestRepo) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAddRequestNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrAddRequestExists
	}
	return err
}
