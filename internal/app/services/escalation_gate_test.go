package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/communication"
)

const (
	testWaiting = 72 * time.Hour
	testRewarn  = 7 * 24 * time.Hour
)

func newTestGate(repo repositories.CommunicationRepository, warner WarningSender, now *time.Time) *EscalationGate {
	g := NewEscalationGate(repo, warner, testWaiting, testRewarn, nil)
	g.Now = func() time.Time { return *now }
	return g
}

func TestGateFirstContactWarnsOnce(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewInMemoryCommunicationRepo()
	warner := &recordingWarner{}
	now := testNow
	gate := newTestGate(repo, warner, &now)

	assert.False(t, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonInactive))

	require.Len(t, warner.warnings, 1)
	assert.Equal(t, warning{Phone: "5511987654321", Reason: ReasonInactive}, warner.warnings[0])
	rec, err := repo.Last(ctx, "5511987654321", ReasonInactive)
	require.NoError(t, err)
	assert.Equal(t, communication.StatusWarned, rec.Status)
	assert.True(t, rec.Timestamp.Equal(testNow))
}

func TestGateWaitingPeriodBoundaries(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		age  time.Duration
		want bool
	}{
		{"just warned", 0, false},
		{"one second before", testWaiting - time.Second, false},
		{"exactly at", testWaiting, true},
		{"one second after", testWaiting + time.Second, true},
		{"one second before rewarn", testRewarn - time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := repositories.NewInMemoryCommunicationRepo()
			require.NoError(t, repo.Upsert(ctx, communication.Record{
				Phone: "5511987654321", Reason: ReasonInactive, Timestamp: testNow, Status: communication.StatusWarned,
			}))
			warner := &recordingWarner{}
			now := testNow.Add(tt.age)
			gate := newTestGate(repo, warner, &now)

			assert.Equal(t, tt.want, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonInactive))
			assert.Empty(t, warner.warnings)
		})
	}
}

func TestGateRewarnsAfterAWeek(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewInMemoryCommunicationRepo()
	warner := &recordingWarner{}
	now := testNow
	gate := newTestGate(repo, warner, &now)

	assert.False(t, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonInactive))
	now = testNow.Add(testRewarn)
	assert.False(t, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonInactive))

	require.Len(t, warner.warnings, 2)
	rec, err := repo.Last(ctx, "5511987654321", ReasonInactive)
	require.NoError(t, err)
	assert.Equal(t, communication.StatusRewarned, rec.Status)
	assert.True(t, rec.Timestamp.Equal(now))

	// the re-warning restarts the waiting period
	now = now.Add(testWaiting + time.Second)
	assert.True(t, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonInactive))
}

func TestGateTracksReasonsSeparately(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewInMemoryCommunicationRepo()
	warner := &recordingWarner{}
	now := testNow
	gate := newTestGate(repo, warner, &now)

	assert.False(t, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonInactive))
	assert.False(t, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonNotFound))
	assert.Len(t, warner.warnings, 2)
}

func TestGateFailsOpen(t *testing.T) {
	ctx := context.Background()
	now := testNow

	t.Run("datastore error", func(t *testing.T) {
		warner := &recordingWarner{}
		gate := newTestGate(brokenCommunications{}, warner, &now)
		assert.True(t, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonInactive))
		assert.Empty(t, warner.warnings)
	})

	t.Run("warning delivery error", func(t *testing.T) {
		repo := repositories.NewInMemoryCommunicationRepo()
		gate := newTestGate(repo, &recordingWarner{err: errors.New("webhook down")}, &now)
		assert.True(t, gate.ShouldRemoveNow(ctx, "5511987654321", ReasonInactive))
		_, err := repo.Last(ctx, "5511987654321", ReasonInactive)
		assert.ErrorIs(t, err, repositories.ErrCommunicationNotFound)
	})
}
