package services

import (
	"context"
	"errors"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/communication"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/metrics"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// EscalationGate warns a member before a status-based removal and releases the removal
// once the waiting period has passed. Errors release it too.
type EscalationGate struct {
	repo        repositories.CommunicationRepository
	warner      WarningSender
	waiting     time.Duration
	rewarnAfter time.Duration
	log         waLog.Logger

	Now func() time.Time
}

func NewEscalationGate(repo repositories.CommunicationRepository, warner WarningSender, waiting, rewarnAfter time.Duration, log waLog.Logger) *EscalationGate {
	if log == nil {
		log = waLog.Noop
	}
	return &EscalationGate{repo: repo, warner: warner, waiting: waiting, rewarnAfter: rewarnAfter, log: log, Now: time.Now}
}

func (g *EscalationGate) ShouldRemoveNow(ctx context.Context, phone, reason string) bool {
	now := g.Now()
	last, err := g.repo.Last(ctx, phone, reason)
	switch {
	case errors.Is(err, repositories.ErrCommunicationNotFound):
		if err := g.warn(ctx, phone, reason, now, communication.StatusWarned); err != nil {
			return g.failOpen(phone, reason, err)
		}
		metrics.GateDecisions.WithLabelValues("warned").Inc()
		g.log.Infof("gate: first warning phone=%s reason=%q", phone, reason)
		return false
	case err != nil:
		return g.failOpen(phone, reason, err)
	}

	age := now.Sub(last.Timestamp)
	switch {
	case age >= g.rewarnAfter:
		if err := g.warn(ctx, phone, reason, now, communication.StatusRewarned); err != nil {
			return g.failOpen(phone, reason, err)
		}
		metrics.GateDecisions.WithLabelValues("rewarned").Inc()
		g.log.Infof("gate: warning expired after %s, warned again phone=%s reason=%q", age.Round(time.Minute), phone, reason)
		return false
	case age >= g.waiting:
		metrics.GateDecisions.WithLabelValues("remove").Inc()
		g.log.Debugf("gate: waiting period over phone=%s reason=%q age=%s", phone, reason, age.Round(time.Second))
		return true
	default:
		metrics.GateDecisions.WithLabelValues("waiting").Inc()
		g.log.Debugf("gate: within grace window phone=%s reason=%q age=%s", phone, reason, age.Round(time.Second))
		return false
	}
}

func (g *EscalationGate) warn(ctx context.Context, phone, reason string, now time.Time, status string) error {
	if err := g.warner.SendWarning(ctx, phone, reason); err != nil {
		return err
	}
	return g.repo.Upsert(ctx, communication.Record{Phone: phone, Reason: reason, Timestamp: now, Status: status})
}

func (g *EscalationGate) failOpen(phone, reason string, err error) bool {
	metrics.GateDecisions.WithLabelValues("fail_open").Inc()
	g.log.Errorf("gate: failing open for phone=%s reason=%q: %v", phone, reason, err)
	return true
}
