package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/group"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/metrics"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/queue"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/auditlog"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/report"
	"github.com/google/uuid"
	waLog "go.mau.fi/whatsmeow/util/log"
)

var (
	ErrNoGroups          = errors.New("messaging client returned no groups")
	ErrNoMemberRows      = errors.New("member database returned no rows")
	ErrSanityCheckFailed = errors.New("sanity-check phone not found in member database")
)

// ProducerDeps wires the enumeration passes. Optional collaborators may be left nil.
type ProducerDeps struct {
	Messenger   Messenger
	Members     repositories.MemberRepository
	AddRequests repositories.AddRequestRepository
	Resolver    *StatusResolver
	Rules       *RuleEngine
	Protected   *ProtectedSet
	Gate        RemovalGate
	RemoveQueue queue.Queue
	AddQueue    queue.Queue
	Reports     *report.Writer
	Audit       ActionLog
	Alerts      AlertSink

	SanityCheckPhone string
	MaxAddAttempts   int
	Log              waLog.Logger
}

// Producers runs the scan, report, remove and add passes. Each pass is independent and
// can run in any order within one process.
type Producers struct {
	ProducerDeps
	now func() time.Time
}

func NewProducers(deps ProducerDeps) *Producers {
	if deps.Log == nil {
		deps.Log = waLog.Noop
	}
	if deps.Audit == nil {
		deps.Audit = nopActionLog{}
	}
	if deps.Alerts == nil {
		deps.Alerts = nopAlerts{}
	}
	return &Producers{ProducerDeps: deps, now: time.Now}
}

// PassSummary counts what a producer pass did.
type PassSummary struct {
	RunID        string
	Groups       int
	Participants int
	Queued       int
	Deferred     int
	Duplicates   int
	Skipped      int
	Failed       int
}

func (s PassSummary) String() string {
	return fmt.Sprintf("run=%s groups=%d participants=%d queued=%d deferred=%d duplicates=%d skipped=%d failed=%d",
		s.RunID, s.Groups, s.Participants, s.Queued, s.Deferred, s.Duplicates, s.Skipped, s.Failed)
}

func newRunID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// loadIndex reads and indexes the member database, enforcing the fatal preconditions.
func (p *Producers) loadIndex(ctx context.Context) (*MemberIndex, error) {
	records, err := p.Members.ListMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoMemberRows
	}
	idx := BuildMemberIndex(records, p.Resolver)
	if p.SanityCheckPhone != "" && !idx.Lookup(p.SanityCheckPhone).Found {
		return nil, fmt.Errorf("%w: %s", ErrSanityCheckFailed, p.SanityCheckPhone)
	}
	return idx, nil
}

// sortedGroups lists the bot's groups ordered by name so repeated passes compare.
func (p *Producers) sortedGroups(ctx context.Context) ([]group.Roster, error) {
	groups, err := p.Messenger.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	if len(groups) == 0 {
		return nil, ErrNoGroups
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Name != groups[j].Name {
			return groups[i].Name < groups[j].Name
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}

func (p *Producers) isSelf(participantPhone string) bool {
	self := phone.Digits(p.Messenger.SelfPhone())
	return self != "" && phone.SameKey(self, phone.Digits(participantPhone))
}

func (p *Producers) abort(ctx context.Context, pass string, err error) error {
	p.Log.Errorf("%s pass aborted: %v", pass, err)
	p.Alerts.Send(ctx, AlertChannelOps, fmt.Sprintf("groupkeeper %s pass aborted: %v", pass, err))
	return err
}

// pendingActions is a producer's view of the queue used for cooperative deduplication.
type pendingActions struct {
	q    queue.Queue
	keys map[action.Key]struct{}
}

func loadPending(ctx context.Context, q queue.Queue) (*pendingActions, error) {
	items, err := q.DrainAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read queue %s: %w", q.Name(), err)
	}
	p := &pendingActions{q: q, keys: make(map[action.Key]struct{}, len(items))}
	for _, it := range items {
		p.keys[it.Key()] = struct{}{}
	}
	return p, nil
}

// push enqueues rec unless an action with the same identity is pending. It reports whether rec was pushed.
func (p *pendingActions) push(ctx context.Context, rec action.Record) (bool, error) {
	key := rec.Key()
	if _, dup := p.keys[key]; dup {
		metrics.ActionsDeduplicated.WithLabelValues(string(rec.Type)).Inc()
		return false, nil
	}
	if err := p.q.Push(ctx, rec); err != nil {
		return false, err
	}
	p.keys[key] = struct{}{}
	metrics.ActionsQueued.WithLabelValues(string(rec.Type), rec.ReasonText()).Inc()
	return true, nil
}

func (p *Producers) audit(groupName, member, act, reason string) {
	if err := p.Audit.Write(auditlog.Entry{Timestamp: p.now(), Group: groupName, Member: member, Action: act, Reason: reason}); err != nil {
		p.Log.Warnf("audit log write failed: %v", err)
	}
}

func observePass(pass string, started time.Time) {
	metrics.PassDuration.WithLabelValues(pass).Observe(time.Since(started).Seconds())
}
