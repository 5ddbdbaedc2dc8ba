package services

import (
	"context"
	"fmt"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
)

// Remove queues operator-requested removals of the given phones from every group they are in.
func (p *Producers) Remove(ctx context.Context, phones []string) (*PassSummary, error) {
	defer observePass("remove", time.Now())
	sum := &PassSummary{RunID: newRunID()}
	log := p.Log.Sub("Remove").Sub(sum.RunID)

	var targets []*removeTarget
	for _, raw := range phones {
		keys := candidates(raw)
		if len(keys) == 0 {
			log.Warnf("ignoring unusable phone %q", raw)
			continue
		}
		if p.Protected.Contains(raw) {
			sum.Skipped++
			log.Warnf("phone %s is protected; not removing", keys[0])
			continue
		}
		targets = append(targets, &removeTarget{raw: raw, keys: keys})
	}
	if len(targets) == 0 {
		return sum, fmt.Errorf("no removable phones given")
	}

	groups, err := p.sortedGroups(ctx)
	if err != nil {
		return sum, p.abort(ctx, "remove", err)
	}
	pending, err := loadPending(ctx, p.RemoveQueue)
	if err != nil {
		return sum, p.abort(ctx, "remove", err)
	}

	for _, g := range groups {
		sum.Groups++
		for _, target := range targets {
			part, ok := g.FindParticipant(target.matches)
			if !ok {
				continue
			}
			target.found = true
			sum.Participants++
			chatPhone := phone.Digits(part.Phone)
			if part.IsAdmin {
				sum.Skipped++
				log.Warnf("group=%q member=%s is an admin; skipping", g.Name, chatPhone)
				continue
			}
			rec := action.Record{Type: action.TypeRemove, GroupID: g.ID, Phone: chatPhone, Reason: action.StringPtr(ReasonManual)}
			pushed, err := pending.push(ctx, rec)
			switch {
			case err != nil:
				sum.Failed++
				log.Errorf("group=%q member=%s action=remove: queue push failed: %v", g.Name, chatPhone, err)
			case !pushed:
				sum.Duplicates++
			default:
				sum.Queued++
				p.audit(g.Name, chatPhone, "queued-remove", ReasonManual)
			}
		}
	}
	for _, target := range targets {
		if !target.found {
			log.Warnf("phone %q is not in any group the bot administers", target.raw)
		}
	}
	log.Infof("manual removal finished: %s", sum)
	return sum, nil
}

// removeTarget is one operator-supplied phone. Pasted numbers may already carry
// the country code without a "+", so both the raw digits and the canonical key are tried.
type removeTarget struct {
	raw   string
	keys  []string
	found bool
}

func (t *removeTarget) matches(participantPhone string) bool {
	digits := phone.Digits(participantPhone)
	for _, k := range t.keys {
		if phone.SameKey(digits, k) {
			return true
		}
	}
	return false
}
