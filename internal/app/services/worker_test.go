package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/group"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/member"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/queue"
)

type workerFixture struct {
	messenger   *fakeMessenger
	queue       queue.Queue
	addRequests repositories.AddRequestRepository
	memberships repositories.MembershipRepository
	alerts      *recordingAlerts
	audit       *recordingAudit
	worker      *Worker
}

func newWorkerFixture(t *testing.T, m *fakeMessenger, protected []string, records ...member.Record) *workerFixture {
	t.Helper()
	f := &workerFixture{
		messenger:   m,
		queue:       queue.NewMemory("test:worker"),
		addRequests: repositories.NewInMemoryAddRequestRepo(),
		memberships: repositories.NewInMemoryMembershipRepo(),
		alerts:      &recordingAlerts{},
		audit:       &recordingAudit{},
	}
	f.worker = NewWorker(WorkerDeps{
		Messenger:   m,
		Queue:       f.queue,
		Members:     repositories.NewInMemoryMemberRepo(records...),
		AddRequests: f.addRequests,
		Memberships: f.memberships,
		Protected:   NewProtectedSet(protected),
		Alerts:      f.alerts,
		Audit:       f.audit,
		Retry:       RetryPolicy{Attempts: 1, Initial: time.Millisecond},
		IdlePoll:    time.Millisecond,
	})
	f.worker.now = func() time.Time { return testNow }
	return f
}

func (f *workerFixture) push(t *testing.T, rec action.Record) {
	t.Helper()
	require.NoError(t, f.queue.Push(context.Background(), rec))
}

func removeRecord(groupID, phone string) action.Record {
	return action.Record{Type: action.TypeRemove, GroupID: groupID, Phone: phone, Reason: action.StringPtr(ReasonInactive)}
}

func TestWorkerIdleOnEmptyQueue(t *testing.T) {
	f := newWorkerFixture(t, newFakeMessenger(botPhone), nil)
	outcome, err := f.worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeIdle, outcome)
	assert.False(t, outcome.Attempted())
}

func TestWorkerRemovesAndRecordsExit(t *testing.T) {
	ctx := context.Background()
	g := generalGroup(participant("5511987654321", false))
	f := newWorkerFixture(t, newFakeMessenger(botPhone, g), nil)
	f.push(t, removeRecord(g.ID, "5511987654321"))

	outcome, err := f.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Equal(t, []removal{{GroupID: g.ID, JID: "5511987654321@s.whatsapp.net"}}, f.messenger.removed)

	history, err := f.memberships.History(ctx, g.ID, "5511987654321")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.NotNil(t, history[0].ExitedAt)
	assert.Equal(t, ReasonInactive, history[0].ExitReason)
	assert.Contains(t, f.audit.actions(), "removed")
}

func TestWorkerMatchesNinthDigitVariant(t *testing.T) {
	g := generalGroup(participant("551187654321", false))
	f := newWorkerFixture(t, newFakeMessenger(botPhone, g), nil)
	f.push(t, removeRecord(g.ID, "5511987654321"))

	outcome, err := f.worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
}

func TestWorkerRemoveSkips(t *testing.T) {
	tests := []struct {
		name      string
		members   []group.Participant
		protected []string
		audit     string
	}{
		{"admin", []group.Participant{participant("5511987654321", true)}, nil, "skip-admin"},
		{"absent", nil, nil, "skip-absent"},
		{"protected", []group.Participant{participant("5511987654321", false)}, []string{"11 98765-4321"}, "skip-protected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := generalGroup(tt.members...)
			f := newWorkerFixture(t, newFakeMessenger(botPhone, g), tt.protected)
			f.push(t, removeRecord(g.ID, "5511987654321"))

			outcome, err := f.worker.ProcessOne(context.Background())
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, outcome)
			assert.False(t, outcome.Attempted())
			assert.Empty(t, f.messenger.removed)
			assert.Equal(t, []string{tt.audit}, f.audit.actions())
		})
	}
}

func TestWorkerPrefersCommunityRemoval(t *testing.T) {
	ctx := context.Background()
	g := generalGroup(participant("5511987654321", false))
	g.ParentID = "120363999999999999@g.us"
	f := newWorkerFixture(t, newFakeMessenger(botPhone, g), nil)
	f.push(t, removeRecord(g.ID, "5511987654321"))

	outcome, err := f.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	require.Len(t, f.messenger.removed, 1)
	assert.Equal(t, g.ParentID, f.messenger.removed[0].GroupID)

	history, err := f.memberships.History(ctx, g.ParentID, "5511987654321")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestWorkerFallsBackToGroupRemoval(t *testing.T) {
	g := generalGroup(participant("5511987654321", false))
	g.ParentID = "120363999999999999@g.us"
	m := newFakeMessenger(botPhone, g)
	m.removeErr[g.ParentID] = errors.New("not-authorized")
	f := newWorkerFixture(t, m, nil)
	f.push(t, removeRecord(g.ID, "5511987654321"))

	outcome, err := f.worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Equal(t, []removal{{GroupID: g.ID, JID: "5511987654321@s.whatsapp.net"}}, m.removed)
}

func TestWorkerFailsWhenRemovalNotVerified(t *testing.T) {
	ctx := context.Background()
	g := generalGroup(participant("5511987654321", false))
	m := newFakeMessenger(botPhone, g)
	m.sticky = true
	f := newWorkerFixture(t, m, nil)
	f.push(t, removeRecord(g.ID, "5511987654321"))

	outcome, err := f.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	history, err := f.memberships.History(ctx, g.ID, "5511987654321")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestWorkerFailsOnUnknownGroup(t *testing.T) {
	f := newWorkerFixture(t, newFakeMessenger(botPhone), nil)
	f.push(t, removeRecord("gone@g.us", "5511987654321"))

	outcome, err := f.worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)
}

func addRecord(groupID, registration string) action.Record {
	return action.Record{Type: action.TypeAdd, GroupID: groupID, RegistrationID: action.StringPtr(registration)}
}

func TestWorkerAddFulfillsRequest(t *testing.T) {
	ctx := context.Background()
	g := generalGroup()
	m := newFakeMessenger(botPhone, g)
	f := newWorkerFixture(t, m, nil, adultActive("r1", "11987654321"))
	require.NoError(t, f.addRequests.Create(ctx, "r1", g.ID, testNow))
	f.push(t, addRecord(g.ID, "r1"))

	outcome, err := f.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Equal(t, []string{"5511987654321"}, m.added)

	pending, err := f.addRequests.Pending(ctx, g.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	history, err := f.memberships.History(ctx, g.ID, "5511987654321")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "r1", history[0].RegistrationID)
	assert.Equal(t, string(group.AddStatusAdded), history[0].EntryStatus)
}

func TestWorkerAddPrefersChatVariant(t *testing.T) {
	g := generalGroup()
	m := newFakeMessenger(botPhone, g)
	m.chats = []string{"551187654321"}
	f := newWorkerFixture(t, m, nil, adultActive("r1", "11987654321"))
	f.push(t, addRecord(g.ID, "r1"))

	_, err := f.worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"551187654321"}, m.added)
}

func TestWorkerAddInviteCountsAsSuccess(t *testing.T) {
	ctx := context.Background()
	g := generalGroup()
	m := newFakeMessenger(botPhone, g)
	m.addResults["5511987654321"] = group.AddResult{Phone: "5511987654321", Status: group.AddStatusInvited, Code: 403}
	f := newWorkerFixture(t, m, nil, adultActive("r1", "11987654321"))
	require.NoError(t, f.addRequests.Create(ctx, "r1", g.ID, testNow))
	f.push(t, addRecord(g.ID, "r1"))

	outcome, err := f.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, outcome)
	assert.Contains(t, f.audit.actions(), "add-invited")
}

func TestWorkerAddFailureCountsAttempt(t *testing.T) {
	ctx := context.Background()
	g := generalGroup()
	m := newFakeMessenger(botPhone, g)
	m.addResults["5511987654321"] = group.AddResult{Phone: "5511987654321", Status: group.AddStatusFailed, Code: 408}
	f := newWorkerFixture(t, m, nil, adultActive("r1", "11987654321"))
	require.NoError(t, f.addRequests.Create(ctx, "r1", g.ID, testNow))
	f.push(t, addRecord(g.ID, "r1"))

	outcome, err := f.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	pending, err := f.addRequests.Pending(ctx, g.ID, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
}

func TestWorkerAddNeedsBotAdmin(t *testing.T) {
	ctx := context.Background()
	g := group.Roster{ID: "g1@g.us", Name: "MB | Geral", Participants: []group.Participant{participant(botPhone, false)}}
	m := newFakeMessenger(botPhone, g)
	f := newWorkerFixture(t, m, nil, adultActive("r1", "11987654321"))
	require.NoError(t, f.addRequests.Create(ctx, "r1", g.ID, testNow))
	f.push(t, addRecord(g.ID, "r1"))

	outcome, err := f.worker.ProcessOne(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
	assert.Empty(t, m.added)
	require.Len(t, f.alerts.alerts, 1)
	assert.Contains(t, f.alerts.alerts[0].Text, "MB | Geral")

	pending, err := f.addRequests.Pending(ctx, g.ID, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Zero(t, pending[0].Attempts)
}

func TestWorkerAddUnknownRegistrationIsSkipped(t *testing.T) {
	g := generalGroup()
	f := newWorkerFixture(t, newFakeMessenger(botPhone, g), nil)
	f.push(t, addRecord(g.ID, "missing"))

	outcome, err := f.worker.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, outcome)
}

func TestWorkerRunUntilEmpty(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g := generalGroup(participant("5511987654321", false), participant("5511976543210", false))
	f := newWorkerFixture(t, newFakeMessenger(botPhone, g), nil)
	f.push(t, removeRecord(g.ID, "5511987654321"))
	f.push(t, removeRecord(g.ID, "5511976543210"))

	require.NoError(t, f.worker.Run(ctx, true))
	assert.Len(t, f.messenger.removed, 2)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newWorkerFixture(t, newFakeMessenger(botPhone), nil)

	done := make(chan error, 1)
	go func() { done <- f.worker.Run(ctx, false) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}

// flakyQueue fails the first failures pops, then behaves like the wrapped queue.
type flakyQueue struct {
	queue.Queue
	failures int
}

func (q *flakyQueue) PopOne(ctx context.Context) (*action.Record, error) {
	if q.failures != 0 {
		if q.failures > 0 {
			q.failures--
		}
		return nil, errors.New("transient redis error")
	}
	return q.Queue.PopOne(ctx)
}

func TestWorkerPopErrorIsNotIdle(t *testing.T) {
	g := generalGroup(participant("5511987654321", false))
	f := newWorkerFixture(t, newFakeMessenger(botPhone, g), nil)
	f.push(t, removeRecord(g.ID, "5511987654321"))
	f.worker.Queue = &flakyQueue{Queue: f.queue, failures: 1}

	outcome, err := f.worker.ProcessOne(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	items, err := f.queue.DrainAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestWorkerRunUntilEmptySurvivesPopError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	g := generalGroup(participant("5511987654321", false))
	f := newWorkerFixture(t, newFakeMessenger(botPhone, g), nil)
	f.push(t, removeRecord(g.ID, "5511987654321"))
	f.worker.Queue = &flakyQueue{Queue: f.queue, failures: 1}

	require.NoError(t, f.worker.Run(ctx, true))
	assert.Len(t, f.messenger.removed, 1)

	items, err := f.queue.DrainAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestWorkerRunUntilEmptyGivesUpOnUnreadableQueue(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := newWorkerFixture(t, newFakeMessenger(botPhone), nil)
	f.push(t, removeRecord("g1@g.us", "5511987654321"))
	f.worker.Queue = &flakyQueue{Queue: f.queue, failures: -1}

	err := f.worker.Run(ctx, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreadable")
}
