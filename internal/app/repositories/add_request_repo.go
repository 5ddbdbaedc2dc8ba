package repositories

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrAddRequestExists   = errors.New("add request already exists")
	ErrAddRequestNotFound = errors.New("add request not found")
)

// AddRequest asks for a registration to be put into a group. Retry bookkeeping lives here, not in the queue.
type AddRequest struct {
	RegistrationID string
	GroupID        string
	RequestedAt    time.Time
	Attempts       int
	LastAttempt    *time.Time
	Fulfilled      bool
	FulfilledAt    *time.Time
}

type AddRequestRepository interface {
	Create(ctx context.Context, registrationID, groupID string, at time.Time) error
	// Pending lists unfulfilled requests for a group, oldest first. maxAttempts <= 0 disables the cutoff.
	Pending(ctx context.Context, groupID string, maxAttempts int) ([]AddRequest, error)
	MarkFulfilled(ctx context.Context, registrationID, groupID string, at time.Time) error
	IncrementAttempt(ctx context.Context, registrationID, groupID string, at time.Time) error
}

type addRequestKey struct {
	registrationID string
	groupID        string
}

type inMemoryAddRequestRepo struct {
	mu    sync.RWMutex
	items map[addRequestKey]*AddRequest
}

func NewInMemoryAddRequestRepo() AddRequestRepository {
	return &inMemoryAddRequestRepo{items: make(map[addRequestKey]*AddRequest)}
}

func (r *inMemoryAddRequestRepo) Create(ctx context.Context, registrationID, groupID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := addRequestKey{registrationID, groupID}
	if _, exists := r.items[key]; exists {
		return ErrAddRequestExists
	}
	r.items[key] = &AddRequest{RegistrationID: registrationID, GroupID: groupID, RequestedAt: at.UTC()}
	return nil
}

func (r *inMemoryAddRequestRepo) Pending(ctx context.Context, groupID string, maxAttempts int) ([]AddRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []AddRequest
	for _, req := range r.items {
		if req.GroupID != groupID || req.Fulfilled {
			continue
		}
		if maxAttempts > 0 && req.Attempts >= maxAttempts {
			continue
		}
		out = append(out, *req)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].RequestedAt.Before(out[j].RequestedAt)
		}
		return out[i].RegistrationID < out[j].RegistrationID
	})
	return out, nil
}

func (r *inMemoryAddRequestRepo) MarkFulfilled(ctx context.Context, registrationID, groupID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[addRequestKey{registrationID, groupID}]
	if !ok {
		return ErrAddRequestNotFound
	}
	t := at.UTC()
	req.Fulfilled = true
	req.FulfilledAt = &t
	req.LastAttempt = &t
	return nil
}

func (r *inMemoryAddRequestRepo) IncrementAttempt(ctx context.Context, registrationID, groupID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.items[addRequestKey{registrationID, groupID}]
	if !ok {
		return ErrAddRequestNotFound
	}
	t := at.UTC()
	req.Attempts++
	req.LastAttempt = &t
	return nil
}
