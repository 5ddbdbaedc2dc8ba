package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/group"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/metrics"
)

// Messenger adapts a connected whatsmeow client to the engine's group operations.
// Every network call waits on a shared limiter so loops running side by side
// stay under the account's request budget.
type Messenger struct {
	client  *whatsmeow.Client
	limiter *rate.Limiter
	log     waLog.Logger
}

func NewMessenger(client *whatsmeow.Client, callsPerMinute int, log waLog.Logger) *Messenger {
	if log == nil {
		log = waLog.Noop
	}
	limit := rate.Inf
	if callsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(callsPerMinute))
	}
	return &Messenger{client: client, limiter: rate.NewLimiter(limit, 1), log: log}
}

func (m *Messenger) call(ctx context.Context, name string, fn func() error) error {
	if m.client == nil {
		return ErrClientUnavailable
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	start := time.Now()
	err := fn()
	metrics.ClientCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	return err
}

func (m *Messenger) ListGroups(ctx context.Context) ([]group.Roster, error) {
	var raw []*types.GroupInfo
	err := m.call(ctx, "list_groups", func() error {
		var err error
		raw, err = m.client.GetJoinedGroups()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	out := make([]group.Roster, 0, len(raw))
	for _, info := range raw {
		if info == nil {
			continue
		}
		if info.IsParent {
			// Community parents only hold admins; members live in the linked groups.
			continue
		}
		out = append(out, m.toRoster(ctx, info))
	}
	return out, nil
}

func (m *Messenger) GetGroup(ctx context.Context, groupID string) (*group.Roster, error) {
	jid, err := ParseJID(groupID)
	if err != nil {
		return nil, err
	}
	var info *types.GroupInfo
	err = m.call(ctx, "get_group", func() error {
		var err error
		info, err = m.client.GetGroupInfo(jid)
		return err
	})
	if err != nil {
		return nil, mapGroupError(err)
	}
	if info == nil {
		return nil, group.ErrGroupNotFound
	}
	roster := m.toRoster(ctx, info)
	return &roster, nil
}

// ListChatPhones returns the phone of every contact the bot has a chat with.
func (m *Messenger) ListChatPhones(ctx context.Context) ([]string, error) {
	if m.client == nil {
		return nil, ErrClientUnavailable
	}
	contacts, err := m.client.Store.Contacts.GetAllContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	seen := make(map[string]struct{}, len(contacts))
	for jid := range contacts {
		if phone := m.phoneFor(ctx, jid); phone != "" {
			seen[phone] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Messenger) SelfPhone() string {
	if m.client == nil || m.client.Store == nil || m.client.Store.ID == nil {
		return ""
	}
	return m.client.Store.ID.User
}

// AddParticipant adds phone to the group. When the member's privacy settings
// refuse direct adds, an invite message is sent to them instead.
func (m *Messenger) AddParticipant(ctx context.Context, groupID, phone string) (group.AddResult, error) {
	res := group.AddResult{Phone: phone, Status: group.AddStatusFailed}
	gjid, err := ParseJID(groupID)
	if err != nil {
		return res, err
	}
	target, err := ParseJID(phone)
	if err != nil {
		return res, err
	}

	var results []types.GroupParticipant
	err = m.call(ctx, "add_participant", func() error {
		var err error
		results, err = m.client.UpdateGroupParticipants(gjid, []types.JID{target}, whatsmeow.ParticipantChangeAdd)
		return err
	})
	if err != nil {
		return res, mapGroupError(err)
	}
	if len(results) == 0 {
		return res, fmt.Errorf("add %s: empty response", phone)
	}

	p := results[0]
	res.Code = p.Error
	switch {
	case p.Error == 0 || p.Error == 200:
		res.Status = group.AddStatusAdded
	case p.Error == 409:
		res.Status = group.AddStatusAlreadyPresent
	case p.Error == 403 && p.AddRequest != nil:
		if err := m.sendInvite(ctx, gjid, target, p.AddRequest); err != nil {
			m.log.Warnf("invite to %s for %s failed: %v", phone, groupID, err)
			return res, nil
		}
		res.Status = group.AddStatusInvited
	default:
		m.log.Warnf("add %s to %s refused with code %d", phone, groupID, p.Error)
	}
	return res, nil
}

func (m *Messenger) sendInvite(ctx context.Context, gjid, target types.JID, req *types.GroupParticipantAddRequest) error {
	var name string
	if info, err := m.client.GetGroupInfo(gjid); err == nil && info != nil {
		name = info.GroupName.Name
	}
	msg := &waE2E.Message{
		GroupInviteMessage: &waE2E.GroupInviteMessage{
			GroupJID:         proto.String(gjid.String()),
			InviteCode:       proto.String(req.Code),
			InviteExpiration: proto.Int64(req.Expiration.Unix()),
			GroupName:        proto.String(name),
		},
	}
	return m.call(ctx, "send_invite", func() error {
		_, err := m.client.SendMessage(ctx, target, msg)
		return err
	})
}

func (m *Messenger) RemoveParticipant(ctx context.Context, groupID, participantJID string) error {
	gjid, err := ParseJID(groupID)
	if err != nil {
		return err
	}
	target, err := ParseJID(participantJID)
	if err != nil {
		return err
	}
	var results []types.GroupParticipant
	err = m.call(ctx, "remove_participant", func() error {
		var err error
		results, err = m.client.UpdateGroupParticipants(gjid, []types.JID{target}, whatsmeow.ParticipantChangeRemove)
		return err
	})
	if err != nil {
		return mapGroupError(err)
	}
	for _, p := range results {
		if p.Error != 0 && p.Error != 200 {
			return fmt.Errorf("remove %s from %s refused with code %d", participantJID, groupID, p.Error)
		}
	}
	return nil
}

func (m *Messenger) toRoster(ctx context.Context, info *types.GroupInfo) group.Roster {
	r := group.Roster{
		ID:           info.JID.String(),
		Name:         info.GroupName.Name,
		IsCommunity:  info.IsParent,
		Participants: make([]group.Participant, 0, len(info.Participants)),
	}
	if !info.LinkedParentJID.IsEmpty() {
		r.ParentID = info.LinkedParentJID.String()
	}
	for _, p := range info.Participants {
		phone := participantPhone(p)
		if phone == "" {
			phone = m.phoneFor(ctx, p.JID)
		}
		r.Participants = append(r.Participants, group.Participant{
			JID:     p.JID.String(),
			Phone:   phone,
			IsAdmin: p.IsAdmin || p.IsSuperAdmin,
		})
	}
	return r
}

func participantPhone(p types.GroupParticipant) string {
	switch {
	case !p.PhoneNumber.IsEmpty():
		return p.PhoneNumber.User
	case p.JID.Server == types.DefaultUserServer:
		return p.JID.User
	default:
		return ""
	}
}

// phoneFor resolves a user JID to a phone, following the LID mapping when needed.
func (m *Messenger) phoneFor(ctx context.Context, jid types.JID) string {
	switch jid.Server {
	case types.DefaultUserServer:
		return jid.User
	case types.HiddenUserServer:
		if m.client == nil || m.client.Store == nil || m.client.Store.LIDs == nil {
			return ""
		}
		pn, err := m.client.Store.LIDs.GetPNForLID(ctx, jid)
		if err != nil || pn.IsEmpty() {
			m.log.Debugf("no phone mapped for %s", jid.String())
			return ""
		}
		return pn.User
	default:
		return ""
	}
}

func mapGroupError(err error) error {
	switch {
	case errors.Is(err, whatsmeow.ErrNotInGroup):
		return fmt.Errorf("%w: %v", group.ErrNotInGroup, err)
	case errors.Is(err, whatsmeow.ErrGroupNotFound):
		return fmt.Errorf("%w: %v", group.ErrGroupNotFound, err)
	default:
		return err
	}
}

// ParseJID accepts a full JID or a bare phone number.
func ParseJID(raw string) (types.JID, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return types.JID{}, ErrInvalidJID
	}
	if strings.Contains(clean, "@") {
		jid, err := types.ParseJID(clean)
		if err != nil {
			return types.JID{}, fmt.Errorf("%w: %v", ErrInvalidJID, err)
		}
		return jid, nil
	}
	var digits strings.Builder
	for _, r := range clean {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return types.JID{}, ErrInvalidJID
	}
	return types.NewJID(digits.String(), types.DefaultUserServer), nil
}
