package services

import (
	"context"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/group"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Scan classifies every participant of every group and queues the removals the rules ask for.
// Status-based removals go through the gate first.
func (p *Producers) Scan(ctx context.Context) (*PassSummary, error) {
	defer observePass("scan", time.Now())
	sum := &PassSummary{RunID: newRunID()}
	log := p.Log.Sub("Scan").Sub(sum.RunID)

	idx, err := p.loadIndex(ctx)
	if err != nil {
		return sum, p.abort(ctx, "scan", err)
	}
	groups, err := p.sortedGroups(ctx)
	if err != nil {
		return sum, p.abort(ctx, "scan", err)
	}
	pending, err := loadPending(ctx, p.RemoveQueue)
	if err != nil {
		return sum, p.abort(ctx, "scan", err)
	}
	log.Infof("scanning %d groups against %d member records", len(groups), idx.Len())

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Groups++
		p.scanGroup(ctx, log, g, idx, pending, sum)
	}
	log.Infof("scan finished: %s", sum)
	return sum, nil
}

func (p *Producers) scanGroup(ctx context.Context, log waLog.Logger, g group.Roster, idx *MemberIndex, pending *pendingActions, sum *PassSummary) {
	for _, part := range g.Participants {
		if part.Phone == "" {
			log.Debugf("group=%q participant=%s has no resolvable phone", g.Name, part.JID)
			continue
		}
		if p.isSelf(part.Phone) || part.IsAdmin {
			continue
		}
		sum.Participants++
		chatPhone := phone.Digits(part.Phone)
		classified := idx.Lookup(chatPhone)

		for _, d := range p.Rules.Evaluate(g.Name, classified) {
			if d.Gated && !p.Gate.ShouldRemoveNow(ctx, chatPhone, d.Reason) {
				sum.Deferred++
				p.audit(g.Name, chatPhone, "deferred", d.Reason)
				continue
			}
			rec := action.Record{
				Type:           action.TypeRemove,
				RegistrationID: action.StringPtr(classified.RegistrationID),
				GroupID:        g.ID,
				Phone:          chatPhone,
				Reason:         action.StringPtr(d.Reason),
			}
			pushed, err := pending.push(ctx, rec)
			switch {
			case err != nil:
				sum.Failed++
				log.Errorf("group=%q member=%s action=remove reason=%q: queue push failed: %v", g.Name, chatPhone, d.Reason, err)
			case !pushed:
				sum.Duplicates++
				log.Debugf("group=%q member=%s already queued (reason %q)", g.Name, chatPhone, d.Reason)
			default:
				sum.Queued++
				p.audit(g.Name, chatPhone, "queued-remove", d.Reason)
				log.Infof("group=%q member=%s queued for removal: %s", g.Name, chatPhone, d.Reason)
			}
		}
	}
}
