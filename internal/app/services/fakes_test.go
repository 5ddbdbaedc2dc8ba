package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/communication"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/group"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/member"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/auditlog"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type removal struct {
	GroupID string
	JID     string
}

// fakeMessenger keeps rosters in memory and applies adds and removes to them.
type fakeMessenger struct {
	mu     sync.Mutex
	self   string
	order  []string
	groups map[string]*group.Roster
	chats  []string

	listErr    error
	chatsErr   error
	removeErr  map[string]error
	addResults map[string]group.AddResult
	// sticky keeps participants in place after a successful remove call.
	sticky bool

	removed []removal
	added   []string
}

func newFakeMessenger(self string, groups ...group.Roster) *fakeMessenger {
	m := &fakeMessenger{
		self:       self,
		groups:     make(map[string]*group.Roster),
		removeErr:  make(map[string]error),
		addResults: make(map[string]group.AddResult),
	}
	for _, g := range groups {
		g := g
		g.Participants = append([]group.Participant(nil), g.Participants...)
		m.groups[g.ID] = &g
		m.order = append(m.order, g.ID)
	}
	return m
}

func (m *fakeMessenger) ListGroups(ctx context.Context) ([]group.Roster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]group.Roster, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, copyRoster(m.groups[id]))
	}
	return out, nil
}

func (m *fakeMessenger) GetGroup(ctx context.Context, groupID string) (*group.Roster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[groupID]
	if !ok {
		return nil, group.ErrGroupNotFound
	}
	r := copyRoster(g)
	return &r, nil
}

func (m *fakeMessenger) ListChatPhones(ctx context.Context) ([]string, error) {
	if m.chatsErr != nil {
		return nil, m.chatsErr
	}
	return append([]string(nil), m.chats...), nil
}

func (m *fakeMessenger) SelfPhone() string { return m.self }

func (m *fakeMessenger) AddParticipant(ctx context.Context, groupID, phone string) (group.AddResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.added = append(m.added, phone)
	res, ok := m.addResults[phone]
	if !ok {
		res = group.AddResult{Phone: phone, Status: group.AddStatusAdded, Code: 200}
	}
	if res.Status == group.AddStatusAdded {
		if g, ok := m.groups[groupID]; ok {
			g.Participants = append(g.Participants, group.Participant{JID: phone + "@s.whatsapp.net", Phone: phone})
		}
	}
	return res, nil
}

func (m *fakeMessenger) RemoveParticipant(ctx context.Context, groupID, participantJID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.removeErr[groupID]; err != nil {
		return err
	}
	m.removed = append(m.removed, removal{GroupID: groupID, JID: participantJID})
	if m.sticky {
		return nil
	}
	for _, g := range m.groups {
		if g.ID != groupID && g.ParentID != groupID {
			continue
		}
		kept := g.Participants[:0]
		for _, p := range g.Participants {
			if p.JID != participantJID {
				kept = append(kept, p)
			}
		}
		g.Participants = kept
	}
	return nil
}

func copyRoster(g *group.Roster) group.Roster {
	r := *g
	r.Participants = append([]group.Participant(nil), g.Participants...)
	return r
}

func participant(phone string, admin bool) group.Participant {
	return group.Participant{JID: phone + "@s.whatsapp.net", Phone: phone, IsAdmin: admin}
}

type recordedAlert struct {
	Channel string
	Text    string
}

type recordingAlerts struct {
	mu     sync.Mutex
	alerts []recordedAlert
}

func (r *recordingAlerts) Send(ctx context.Context, channel, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, recordedAlert{Channel: channel, Text: text})
}

type warning struct {
	Phone  string
	Reason string
}

type recordingWarner struct {
	mu       sync.Mutex
	err      error
	warnings []warning
}

func (r *recordingWarner) SendWarning(ctx context.Context, phone, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.warnings = append(r.warnings, warning{Phone: phone, Reason: reason})
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []auditlog.Entry
}

func (r *recordingAudit) Write(e auditlog.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *recordingAudit) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// brokenCommunications fails every call, to exercise the gate's fail-open path.
type brokenCommunications struct{}

func (brokenCommunications) Upsert(context.Context, communication.Record) error {
	return errors.New("datastore down")
}

func (brokenCommunications) Last(context.Context, string, string) (*communication.Record, error) {
	return nil, errors.New("datastore down")
}

var _ repositories.CommunicationRepository = brokenCommunications{}

type gateFunc func(ctx context.Context, phone, reason string) bool

func (f gateFunc) ShouldRemoveNow(ctx context.Context, phone, reason string) bool {
	return f(ctx, phone, reason)
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func activeUntil() *time.Time {
	t := testNow.AddDate(1, 0, 0)
	return &t
}

func expiredAt() *time.Time {
	t := testNow.AddDate(0, -2, 0)
	return &t
}

func fixedResolver() *StatusResolver {
	r := NewStatusResolver(10, 18)
	r.Now = func() time.Time { return testNow }
	return r
}

func adultActive(id string, phones ...string) member.Record {
	return member.Record{RegistrationID: id, Phones: phones, MaxExpiration: activeUntil(), BirthDate: date(1980, time.May, 4)}
}
