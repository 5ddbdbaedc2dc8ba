package repositories

import (
	"context"
	"errors"
	"sync"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/member"
)

var ErrRegistrationNotFound = errors.New("registration not found")

// MemberRepository reads the authoritative member database. The engine never writes to it.
type MemberRepository interface {
	// ListMembers returns every registration in a stable order; lookups rely on it for first-match-wins.
	ListMembers(ctx context.Context) ([]member.Record, error)
	PhonesByRegistration(ctx context.Context, registrationID string) ([]string, error)
}

type inMemoryMemberRepo struct {
	mu      sync.RWMutex
	records []member.Record
}

// NewInMemoryMemberRepo keeps the given records in insertion order.
func NewInMemoryMemberRepo(records ...member.Record) MemberRepository {
	return &inMemoryMemberRepo{records: append([]member.Record(nil), records...)}
}

func (r *inMemoryMemberRepo) ListMembers(ctx context.Context) ([]member.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]member.Record, len(r.records))
	copy(out, r.records)
	return out, nil
}

func (r *inMemoryMemberRepo) PhonesByRegistration(ctx context.Context, registrationID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		if rec.RegistrationID == registrationID {
			return append([]string(nil), rec.Phones...), nil
		}
	}
	return nil, ErrRegistrationNotFound
}
