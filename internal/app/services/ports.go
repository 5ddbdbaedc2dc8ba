package services

import (
	"context"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/group"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/auditlog"
)

// Messenger is the slice of the messaging client the engine needs.
type Messenger interface {
	// ListGroups returns every group the bot belongs to, with participants.
	ListGroups(ctx context.Context) ([]group.Roster, error)
	GetGroup(ctx context.Context, groupID string) (*group.Roster, error)
	// ListChatPhones returns the phones present in the bot's contact list.
	ListChatPhones(ctx context.Context) ([]string, error)
	SelfPhone() string
	AddParticipant(ctx context.Context, groupID, phone string) (group.AddResult, error)
	RemoveParticipant(ctx context.Context, groupID, participantJID string) error
}

// AlertSink delivers operator alerts. Send never fails from the caller's point of view.
type AlertSink interface {
	Send(ctx context.Context, channel, text string)
}

// WarningSender notifies a member that a removal is pending.
type WarningSender interface {
	SendWarning(ctx context.Context, phone, reason string) error
}

// RemovalGate decides whether a gated removal may be queued now.
type RemovalGate interface {
	ShouldRemoveNow(ctx context.Context, phone, reason string) bool
}

// ActionLog is the append-only audit trail.
type ActionLog interface {
	Write(e auditlog.Entry) error
}

const (
	AlertChannelOps = "ops"
)

type nopAlerts struct{}

func (nopAlerts) Send(context.Context, string, string) {}

type nopActionLog struct{}

func (nopActionLog) Write(auditlog.Entry) error { return nil }
