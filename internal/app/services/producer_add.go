package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
)

// Add queues one add action per pending add request of every group the bot is in.
// Requests that reached MaxAddAttempts are left out.
func (p *Producers) Add(ctx context.Context) (*PassSummary, error) {
	defer observePass("add", time.Now())
	sum := &PassSummary{RunID: newRunID()}
	log := p.Log.Sub("Add").Sub(sum.RunID)

	groups, err := p.sortedGroups(ctx)
	if err != nil {
		return sum, p.abort(ctx, "add", err)
	}
	pending, err := loadPending(ctx, p.AddQueue)
	if err != nil {
		return sum, p.abort(ctx, "add", err)
	}

	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Groups++
		requests, err := p.AddRequests.Pending(ctx, g.ID, p.MaxAddAttempts)
		if err != nil {
			sum.Failed++
			log.Errorf("group=%q: loading add requests failed: %v", g.Name, err)
			continue
		}
		for _, req := range requests {
			rec := action.Record{
				Type:           action.TypeAdd,
				RegistrationID: action.StringPtr(req.RegistrationID),
				GroupID:        g.ID,
			}
			pushed, err := pending.push(ctx, rec)
			switch {
			case err != nil:
				sum.Failed++
				log.Errorf("group=%q registration=%s action=add: queue push failed: %v", g.Name, req.RegistrationID, err)
			case !pushed:
				sum.Duplicates++
			default:
				sum.Queued++
				p.audit(g.Name, req.RegistrationID, "queued-add", "")
			}
		}
	}
	log.Infof("add pass finished: %s", sum)
	return sum, nil
}

// RequestAdd records an add request. Existing requests are left untouched.
func (p *Producers) RequestAdd(ctx context.Context, registrationID, groupID string) error {
	err := p.AddRequests.Create(ctx, registrationID, groupID, p.now())
	if errors.Is(err, repositories.ErrAddRequestExists) {
		p.Log.Infof("add request registration=%s group=%s already exists", registrationID, groupID)
		return nil
	}
	return err
}

// EnqueueAddPhone queues an add for a bare phone, outside the request table.
func (p *Producers) EnqueueAddPhone(ctx context.Context, groupID, raw string) (bool, error) {
	key := phone.Canonical(raw)
	if key == "" {
		return false, fmt.Errorf("unusable phone %q", raw)
	}
	pending, err := loadPending(ctx, p.AddQueue)
	if err != nil {
		return false, err
	}
	return pending.push(ctx, action.Record{Type: action.TypeAdd, GroupID: groupID, Phone: key})
}
