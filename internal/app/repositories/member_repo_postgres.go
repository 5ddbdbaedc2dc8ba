package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/member"
	"github.com/lib/pq"
)

// The members table belongs to the registration system; this repository only reads it.
type postgresMemberRepo struct {
	db *sql.DB
}

func NewPostgresMemberRepo(db *sql.DB) MemberRepository {
	return &postgresMemberRepo{db: db}
}

func (r *postgresMemberRepo) ListMembers(ctx context.Context) ([]member.Record, error) {
	const query = `
        SELECT registration_id, phones, max_expiration, transferred, birth_date
        FROM members
        ORDER BY created_at, registration_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []member.Record
	for rows.Next() {
		var (
			rec         member.Record
			phones      []string
			maxExp      sql.NullTime
			transferred sql.NullBool
			birth       sql.NullTime
		)
		if err := rows.Scan(&rec.RegistrationID, pq.Array(&phones), &maxExp, &transferred, &birth); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		rec.Phones = phones
		rec.Transferred = transferred.Valid && transferred.Bool
		if maxExp.Valid {
			t := maxExp.Time.UTC()
			rec.MaxExpiration = &t
		}
		if birth.Valid {
			t := birth.Time.UTC()
			rec.BirthDate = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postgresMemberRepo) PhonesByRegistration(ctx context.Context, registrationID string) ([]string, error) {
	var phones []string
	err := r.db.QueryRowContext(ctx, `SELECT phones FROM members WHERE registration_id = $1`, registrationID).Scan(pq.Array(&phones))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("phones for registration %s: %w", registrationID, err)
	}
	return phones, nil
}
