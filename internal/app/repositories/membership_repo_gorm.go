package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

type groupMembershipRow struct {
	ID             uint   `gorm:"primaryKey"`
	GroupID        string `gorm:"not null;index:idx_group_memberships_lookup,priority:1"`
	Phone          string `gorm:"not null;index:idx_group_memberships_lookup,priority:2"`
	RegistrationID string `gorm:"not null;default:''"`
	EntryStatus    string `gorm:"not null;default:''"`
	EnteredAt      *time.Time
	ExitedAt       *time.Time `gorm:"index"`
	ExitReason     string    `gorm:"not null;default:''"`
}

func (groupMembershipRow) TableName() string { return "group_memberships" }

type gormMembershipRepo struct {
	db *gorm.DB
}

// NewGormMembershipRepo migrates the group_memberships table and returns a repository over it.
func NewGormMembershipRepo(db *gorm.DB) (MembershipRepository, error) {
	if err := db.AutoMigrate(&groupMembershipRow{}); err != nil {
		return nil, fmt.Errorf("migrate group_memberships: %w", err)
	}
	return &gormMembershipRepo{db: db}, nil
}

func findOpenRow(tx *gorm.DB, groupID, phone string) (*groupMembershipRow, error) {
	var row groupMembershipRow
	err := tx.Where("group_id = ? AND phone = ? AND exited_at IS NULL", groupID, phone).
		Order("id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormMembershipRepo) RecordEntry(ctx context.Context, entry MembershipEntry) error {
	groupID, phone := strings.TrimSpace(entry.GroupID), strings.TrimSpace(entry.Phone)
	at := entry.At.UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findOpenRow(tx, groupID, phone)
		if err != nil {
			return err
		}
		if row == nil {
			return tx.Create(&groupMembershipRow{
				GroupID:        groupID,
				Phone:          phone,
				RegistrationID: entry.RegistrationID,
				EntryStatus:    entry.Status,
				EnteredAt:      &at,
			}).Error
		}
		updates := map[string]any{"entry_status": entry.Status}
		if entry.RegistrationID != "" {
			updates["registration_id"] = entry.RegistrationID
		}
		if row.EnteredAt == nil {
			updates["entered_at"] = at
		}
		return tx.Model(row).Updates(updates).Error
	})
}

func (r *gormMembershipRepo) RecordExit(ctx context.Context, exit MembershipExit) error {
	groupID, phone := strings.TrimSpace(exit.GroupID), strings.TrimSpace(exit.Phone)
	at := exit.At.UTC()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := findOpenRow(tx, groupID, phone)
		if err != nil {
			return err
		}
		if row == nil {
			return tx.Create(&groupMembershipRow{
				GroupID:    groupID,
				Phone:      phone,
				ExitedAt:   &at,
				ExitReason: exit.Reason,
			}).Error
		}
		return tx.Model(row).Updates(map[string]any{"exited_at": at, "exit_reason": exit.Reason}).Error
	})
}

func (r *gormMembershipRepo) History(ctx context.Context, groupID, phone string) ([]MembershipRecord, error) {
	var rows []groupMembershipRow
	if err := r.db.WithContext(ctx).
		Where("group_id = ? AND phone = ?", groupID, phone).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]MembershipRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, MembershipRecord{
			ID:             row.ID,
			Phone:          row.Phone,
			GroupID:        row.GroupID,
			RegistrationID: row.RegistrationID,
			EntryStatus:    row.EntryStatus,
			EnteredAt:      row.EnteredAt,
			ExitedAt:       row.ExitedAt,
			ExitReason:     row.ExitReason,
		})
	}
	return out, nil
}
