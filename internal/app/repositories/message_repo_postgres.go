package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/message"
)

type postgresMessageRepo struct {
	db *sql.DB
}

func NewPostgresMessageRepo(db *sql.DB) (MessageRepository, error) {
	repo := &postgresMessageRepo{db: db}
	if err := repo.ensureSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *postgresMessageRepo) ensureSchema() error {
	const createTable = `
        CREATE TABLE IF NOT EXISTS group_messages (
            id TEXT PRIMARY KEY,
            group_id TEXT NOT NULL,
            sender_phone TEXT NOT NULL DEFAULT '',
            sent_at TIMESTAMPTZ NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            message_type TEXT NOT NULL DEFAULT ''
        )`
	if _, err := r.db.Exec(createTable); err != nil {
		return err
	}
	if _, err := r.db.Exec(`CREATE INDEX IF NOT EXISTS idx_group_messages_group_sent ON group_messages (group_id, sent_at DESC)`); err != nil {
		return err
	}
	return nil
}

func (r *postgresMessageRepo) LastTimestamp(ctx context.Context, groupID string) (time.Time, error) {
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(sent_at) FROM group_messages WHERE group_id = $1`, groupID).Scan(&last); err != nil {
		return time.Time{}, fmt.Errorf("last message timestamp for %s: %w", groupID, err)
	}
	if !last.Valid {
		return time.Time{}, nil
	}
	return last.Time.UTC(), nil
}

func (r *postgresMessageRepo) InsertBatch(ctx context.Context, msgs []message.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO group_messages (id, group_id, sender_phone, sent_at, body, message_type)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, m := range msgs {
		res, err := stmt.ExecContext(ctx, m.ID, m.GroupID, m.SenderPhone, m.Timestamp.UTC(), m.Text, m.Type)
		if err != nil {
			return 0, fmt.Errorf("insert message %s: %w", m.ID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}
