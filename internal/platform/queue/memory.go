package queue

import (
	"context"
	"sync"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
)

type memoryQueue struct {
	name  string
	mu    sync.Mutex
	items []action.Record
}

// NewMemory returns a process-local queue. Producers and workers must share the instance.
func NewMemory(name string) Queue {
	return &memoryQueue{name: name}
}

func (q *memoryQueue) Name() string { return q.name }

func (q *memoryQueue) Push(ctx context.Context, rec action.Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, rec)
	return nil
}

func (q *memoryQueue) DrainAll(ctx context.Context) ([]action.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]action.Record, len(q.items))
	copy(out, q.items)
	return out, nil
}

func (q *memoryQueue) PopOne(ctx context.Context) (*action.Record, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	head := q.items[0]
	q.items = q.items[1:]
	return &head, nil
}
