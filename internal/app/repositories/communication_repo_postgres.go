package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/communication"
)

type postgresCommunicationRepo struct {
	db *sql.DB
}

func NewPostgresCommunicationRepo(db *sql.DB) (CommunicationRepository, error) {
	repo := &postgresCommunicationRepo{db: db}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *postgresCommunicationRepo) ensureSchema() error {
	const createTable = `
        CREATE TABLE IF NOT EXISTS communications (
            phone TEXT NOT NULL,
            reason TEXT NOT NULL,
            contacted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            status TEXT NOT NULL DEFAULT '',
            PRIMARY KEY (phone, reason)
        )`
	_, err := r.db.Exec(createTable)
	return err
}

func (r *postgresCommunicationRepo) Upsert(ctx context.Context, rec communication.Record) error {
	const query = `
        INSERT INTO communications (phone, reason, contacted_at, status)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (phone, reason)
        DO UPDATE SET contacted_at = EXCLUDED.contacted_at,
                      status = EXCLUDED.status`
	if _, err := r.db.ExecContext(ctx, query, rec.Phone, rec.Reason, rec.Timestamp.UTC(), rec.Status); err != nil {
		return fmt.Errorf("upsert communication %s/%s: %w", rec.Phone, rec.Reason, err)
	}
	return nil
}

func (r *postgresCommunicationRepo) Last(ctx context.Context, phone, reason string) (*communication.Record, error) {
	const query = `
        SELECT phone, reason, contacted_at, status
        FROM communications
        WHERE phone = $1 AND reason = $2`
	var rec communication.Record
	err := r.db.QueryRowContext(ctx, query, phone, reason).Scan(&rec.Phone, &rec.Reason, &rec.Timestamp, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCommunicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last communication %s/%s: %w", phone, reason, err)
	}
	rec.Timestamp = rec.Timestamp.UTC()
	return &rec, nil
}
