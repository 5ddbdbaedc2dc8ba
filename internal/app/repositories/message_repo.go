package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/message"
)

// MessageRepository stores group messages captured by the fetch mode.
type MessageRepository interface {
	// LastTimestamp returns the newest stored timestamp for a group, or the zero time.
	LastTimestamp(ctx context.Context, groupID string) (time.Time, error)
	// InsertBatch stores messages, ignoring ids already present, and returns how many were new.
	InsertBatch(ctx context.Context, msgs []message.Message) (int, error)
}

type inMemoryMessageRepo struct {
	mu   sync.RWMutex
	byID map[string]message.Message
}

func NewInMemoryMessageRepo() MessageRepository {
	return &inMemoryMessageRepo{byID: make(map[string]message.Message)}
}

func (r *inMemoryMessageRepo) LastTimestamp(ctx context.Context, groupID string) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var last time.Time
	for _, m := range r.byID {
		if m.GroupID == groupID && m.Timestamp.After(last) {
			last = m.Timestamp
		}
	}
	return last, nil
}

func (r *inMemoryMessageRepo) InsertBatch(ctx context.Context, msgs []message.Message) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, m := range msgs {
		if _, exists := r.byID[m.ID]; exists {
			continue
		}
		r.byID[m.ID] = m
		inserted++
	}
	return inserted, nil
}
