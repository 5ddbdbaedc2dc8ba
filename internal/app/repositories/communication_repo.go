package repositories

import (
	"context"
	"errors"
	"sync"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/communication"
)

var ErrCommunicationNotFound = errors.New("communication not found")

// CommunicationRepository keeps one warning record per (phone, reason).
type CommunicationRepository interface {
	Upsert(ctx context.Context, rec communication.Record) error
	Last(ctx context.Context, phone, reason string) (*communication.Record, error)
}

type commKey struct {
	phone  string
	reason string
}

type inMemoryCommunicationRepo struct {
	mu      sync.RWMutex
	records map[commKey]communication.Record
}

func NewInMemoryCommunicationRepo() CommunicationRepository {
	return &inMemoryCommunicationRepo{records: make(map[commKey]communication.Record)}
}

func (r *inMemoryCommunicationRepo) Upsert(ctx context.Context, rec communication.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[commKey{rec.Phone, rec.Reason}] = rec
	return nil
}

func (r *inMemoryCommunicationRepo) Last(ctx context.Context, phone, reason string) (*communication.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[commKey{phone, reason}]
	if !ok {
		return nil, ErrCommunicationNotFound
	}
	return &rec, nil
}
