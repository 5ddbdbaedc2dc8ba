package repositories

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MembershipEntry is written when a phone is added, invited or found already present.
type MembershipEntry struct {
	Phone          string
	GroupID        string
	RegistrationID string
	Status         string
	At             time.Time
}

// MembershipExit is written after a verified removal.
type MembershipExit struct {
	Phone   string
	GroupID string
	Reason  string
	At      time.Time
}

// MembershipRecord is one lifecycle row. A row is open while ExitedAt is nil.
type MembershipRecord struct {
	ID             uint
	Phone          string
	GroupID        string
	RegistrationID string
	EntryStatus    string
	EnteredAt      *time.Time
	ExitedAt       *time.Time
	ExitReason     string
}

// MembershipRepository persists group entry and exit history.
type MembershipRepository interface {
	RecordEntry(ctx context.Context, entry MembershipEntry) error
	RecordExit(ctx context.Context, exit MembershipExit) error
	History(ctx context.Context, groupID, phone string) ([]MembershipRecord, error)
}

type memoryMembershipRepo struct {
	mu     sync.Mutex
	nextID uint
	rows   []*MembershipRecord
}

// NewInMemoryMembershipRepo returns an in-memory membership repository implementation.
func NewInMemoryMembershipRepo() MembershipRepository {
	return &memoryMembershipRepo{}
}

func (r *memoryMembershipRepo) openRow(groupID, phone string) *MembershipRecord {
	for i := len(r.rows) - 1; i >= 0; i-- {
		row := r.rows[i]
		if row.GroupID == groupID && row.Phone == phone && row.ExitedAt == nil {
			return row
		}
	}
	return nil
}

func (r *memoryMembershipRepo) insert(row *MembershipRecord) {
	r.nextID++
	row.ID = r.nextID
	r.rows = append(r.rows, row)
}

func (r *memoryMembershipRepo) RecordEntry(ctx context.Context, entry MembershipEntry) error {
	groupID, phone := strings.TrimSpace(entry.GroupID), strings.TrimSpace(entry.Phone)
	at := entry.At.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if row := r.openRow(groupID, phone); row != nil {
		row.EntryStatus = entry.Status
		if entry.RegistrationID != "" {
			row.RegistrationID = entry.RegistrationID
		}
		if row.EnteredAt == nil {
			row.EnteredAt = &at
		}
		return nil
	}
	r.insert(&MembershipRecord{
		Phone:          phone,
		GroupID:        groupID,
		RegistrationID: entry.RegistrationID,
		EntryStatus:    entry.Status,
		EnteredAt:      &at,
	})
	return nil
}

func (r *memoryMembershipRepo) RecordExit(ctx context.Context, exit MembershipExit) error {
	groupID, phone := strings.TrimSpace(exit.GroupID), strings.TrimSpace(exit.Phone)
	at := exit.At.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	if row := r.openRow(groupID, phone); row != nil {
		row.ExitedAt = &at
		row.ExitReason = exit.Reason
		return nil
	}
	// Members that joined before tracking started only get an exit row.
	r.insert(&MembershipRecord{
		Phone:      phone,
		GroupID:    groupID,
		ExitedAt:   &at,
		ExitReason: exit.Reason,
	})
	return nil
}

func (r *memoryMembershipRepo) History(ctx context.Context, groupID, phone string) ([]MembershipRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MembershipRecord
	for _, row := range r.rows {
		if row.GroupID == groupID && row.Phone == phone {
			out = append(out, *row)
		}
	}
	return out, nil
}
