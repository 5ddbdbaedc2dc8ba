package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/app/repositories"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/action"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/domain/group"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/metrics"
	"github.com/faeln1/go-whatsapp-groupkeeper/internal/platform/queue"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/auditlog"
	"github.com/faeln1/go-whatsapp-groupkeeper/pkg/phone"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// Outcome is the terminal state of one queue item. Nothing is requeued.
type Outcome string

const (
	OutcomeIdle      Outcome = "idle"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// Attempted reports whether the outcome involved a call that changed group state, which is
// what the inter-action delay paces.
func (o Outcome) Attempted() bool {
	return o == OutcomeSucceeded || o == OutcomeFailed
}

var ErrRemovalNotVerified = errors.New("participant still present after removal")

// RetryPolicy bounds the exponential backoff used around messaging client calls.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
}

type WorkerDeps struct {
	Messenger   Messenger
	Queue       queue.Queue
	Members     repositories.MemberRepository
	AddRequests repositories.AddRequestRepository
	Memberships repositories.MembershipRepository
	Protected   *ProtectedSet
	Alerts      AlertSink
	Audit       ActionLog
	Delay       *Delay
	Retry       RetryPolicy
	IdlePoll    time.Duration
	Log         waLog.Logger
}

// Worker pops one action at a time and executes it against the messaging client.
type Worker struct {
	WorkerDeps
	now func() time.Time
}

func NewWorker(deps WorkerDeps) *Worker {
	if deps.Log == nil {
		deps.Log = waLog.Noop
	}
	if deps.Alerts == nil {
		deps.Alerts = nopAlerts{}
	}
	if deps.Audit == nil {
		deps.Audit = nopActionLog{}
	}
	if deps.Delay == nil {
		deps.Delay = NewDelay(0, 0)
	}
	if deps.Retry.Attempts <= 0 {
		deps.Retry.Attempts = 1
	}
	if deps.Retry.Initial <= 0 {
		deps.Retry.Initial = time.Second
	}
	if deps.IdlePoll <= 0 {
		deps.IdlePoll = time.Minute
	}
	return &Worker{WorkerDeps: deps, now: time.Now}
}

// popFailureLimit bounds consecutive queue read failures in until-empty mode.
const popFailureLimit = 5

// Run processes items until ctx ends. With untilEmpty it returns on the first idle poll instead
// of sleeping. A queue read failure is never taken for an empty queue.
func (w *Worker) Run(ctx context.Context, untilEmpty bool) error {
	w.Log.Infof("worker started on queue %s", w.Queue.Name())
	popFailures := 0
	for {
		outcome, err := w.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			popFailures++
			w.Log.Errorf("worker: %v", err)
			if untilEmpty && popFailures >= popFailureLimit {
				return fmt.Errorf("queue %s unreadable after %d attempts: %w", w.Queue.Name(), popFailures, err)
			}
			if err := sleepCtx(ctx, w.Retry.Initial); err != nil {
				return err
			}
			continue
		}
		popFailures = 0
		switch {
		case outcome == OutcomeIdle && untilEmpty:
			w.Log.Infof("queue %s is empty, stopping", w.Queue.Name())
			return nil
		case outcome == OutcomeIdle:
			if err := sleepCtx(ctx, w.IdlePoll); err != nil {
				return err
			}
		case outcome.Attempted():
			wait, skipped, err := w.Delay.Wait(ctx)
			if err != nil {
				return err
			}
			if skipped {
				w.Log.Infof("delay of %s skipped by operator", wait.Round(time.Second))
			}
		}
	}
}

// ProcessOne pops and executes a single item. An empty queue yields OutcomeIdle; a failed
// pop yields OutcomeFailed with the error, and nothing was consumed.
func (w *Worker) ProcessOne(ctx context.Context) (Outcome, error) {
	rec, err := w.Queue.PopOne(ctx)
	if err != nil {
		metrics.WorkerOutcomes.WithLabelValues("pop", string(OutcomeFailed)).Inc()
		return OutcomeFailed, fmt.Errorf("pop %s: %w", w.Queue.Name(), err)
	}
	if rec == nil {
		return OutcomeIdle, nil
	}
	var outcome Outcome
	switch rec.Type {
	case action.TypeRemove:
		outcome = w.remove(ctx, *rec)
	case action.TypeAdd:
		outcome = w.add(ctx, *rec)
	default:
		w.Log.Errorf("dropping record with unknown type: %s", rec)
		outcome = OutcomeSkipped
	}
	metrics.WorkerOutcomes.WithLabelValues(string(rec.Type), string(outcome)).Inc()
	return outcome, nil
}

func (w *Worker) remove(ctx context.Context, rec action.Record) Outcome {
	reason := rec.ReasonText()
	log := w.Log.Sub("Remove")
	if w.Protected.Contains(rec.Phone) {
		log.Warnf("group=%s member=%s is protected; skipping removal (%s)", rec.GroupID, rec.Phone, reason)
		w.audit(rec.GroupID, rec.Phone, "skip-protected", reason)
		return OutcomeSkipped
	}

	roster, err := w.getGroup(ctx, rec.GroupID)
	if err != nil {
		log.Errorf("group=%s member=%s action=remove: reading group failed: %v", rec.GroupID, rec.Phone, err)
		w.audit(rec.GroupID, rec.Phone, "remove-failed", reason)
		return OutcomeFailed
	}
	match := func(ph string) bool { return phone.SameKey(phone.Digits(ph), rec.Phone) }
	part, ok := roster.FindParticipant(match)
	if !ok {
		log.Infof("group=%q member=%s no longer in group; nothing to do", roster.Name, rec.Phone)
		w.audit(roster.Name, rec.Phone, "skip-absent", reason)
		return OutcomeSkipped
	}
	if part.IsAdmin {
		log.Warnf("group=%q member=%s is an admin; admins are never removed", roster.Name, rec.Phone)
		w.audit(roster.Name, rec.Phone, "skip-admin", reason)
		return OutcomeSkipped
	}

	removedFrom, err := w.removeParticipant(ctx, roster, part)
	if err != nil {
		log.Errorf("group=%q member=%s action=remove reason=%q: %v", roster.Name, rec.Phone, reason, err)
		w.audit(roster.Name, rec.Phone, "remove-failed", reason)
		return OutcomeFailed
	}

	if after, err := w.getGroup(ctx, rec.GroupID); err != nil {
		log.Warnf("group=%q member=%s: could not verify removal: %v", roster.Name, rec.Phone, err)
	} else if _, still := after.FindParticipant(match); still {
		log.Errorf("group=%q member=%s action=remove reason=%q: %v", roster.Name, rec.Phone, reason, ErrRemovalNotVerified)
		w.audit(roster.Name, rec.Phone, "remove-failed", reason)
		return OutcomeFailed
	}

	exit := repositories.MembershipExit{Phone: rec.Phone, GroupID: removedFrom, Reason: reason, At: w.now()}
	if err := w.Memberships.RecordExit(ctx, exit); err != nil {
		log.Errorf("group=%q member=%s removed but exit record failed: %v", roster.Name, rec.Phone, err)
	}
	w.audit(roster.Name, rec.Phone, "removed", reason)
	log.Infof("group=%q member=%s removed (%s)", roster.Name, rec.Phone, reason)
	return OutcomeSucceeded
}

// removeParticipant tries the parent community first, since that also clears every linked
// group, and falls back to the group itself. It returns the id the removal succeeded on.
func (w *Worker) removeParticipant(ctx context.Context, roster *group.Roster, part group.Participant) (string, error) {
	if roster.HasParent() {
		err := w.retry(ctx, "remove-community", func() error {
			return w.Messenger.RemoveParticipant(ctx, roster.ParentID, part.JID)
		})
		if err == nil {
			return roster.ParentID, nil
		}
		w.Log.Warnf("group=%q member=%s: community removal failed, falling back to group: %v", roster.Name, part.Phone, err)
	}
	err := w.retry(ctx, "remove-group", func() error {
		return w.Messenger.RemoveParticipant(ctx, roster.ID, part.JID)
	})
	if err != nil {
		return "", err
	}
	return roster.ID, nil
}

func (w *Worker) add(ctx context.Context, rec action.Record) Outcome {
	log := w.Log.Sub("Add")
	who := rec.Registration()
	if who == "" {
		who = rec.Phone
	}

	roster, err := w.getGroup(ctx, rec.GroupID)
	if err != nil {
		log.Errorf("group=%s registration=%s action=add: reading group failed: %v", rec.GroupID, who, err)
		w.failAddRequest(ctx, rec)
		return OutcomeFailed
	}
	self := phone.Digits(w.Messenger.SelfPhone())
	bot, ok := roster.FindParticipant(func(ph string) bool { return phone.SameKey(phone.Digits(ph), self) })
	if !ok || !bot.IsAdmin {
		log.Errorf("group=%q: bot is not an admin; skipping add for %s", roster.Name, who)
		w.Alerts.Send(ctx, AlertChannelOps, fmt.Sprintf("groupkeeper lost admin rights in %q; add for %s skipped", roster.Name, who))
		w.audit(roster.Name, who, "skip-not-admin", "")
		return OutcomeSkipped
	}

	phones, err := w.phonesFor(ctx, rec)
	if err != nil {
		log.Errorf("group=%q registration=%s: loading phones failed: %v", roster.Name, who, err)
		w.failAddRequest(ctx, rec)
		return OutcomeFailed
	}
	if len(phones) == 0 {
		log.Warnf("group=%q registration=%s has no phones; skipping", roster.Name, who)
		w.audit(roster.Name, who, "skip-no-phones", "")
		return OutcomeSkipped
	}

	chats := w.chatPhones(ctx)
	succeeded := 0
	for _, raw := range phones {
		target := pickAddTarget(raw, chats)
		if target == "" {
			log.Warnf("group=%q registration=%s: unusable phone %q", roster.Name, who, raw)
			continue
		}
		var result group.AddResult
		err := w.retry(ctx, "add", func() error {
			var callErr error
			result, callErr = w.Messenger.AddParticipant(ctx, rec.GroupID, target)
			return callErr
		})
		if err != nil {
			result = group.AddResult{Phone: target, Status: group.AddStatusFailed}
			log.Errorf("group=%q registration=%s phone=%s action=add: %v", roster.Name, who, target, err)
		}
		w.audit(roster.Name, target, "add-"+string(result.Status), who)
		if !result.Succeeded() {
			log.Warnf("group=%q phone=%s add failed (code %d)", roster.Name, target, result.Code)
			continue
		}
		succeeded++
		log.Infof("group=%q phone=%s %s", roster.Name, target, result.Status)
		entry := repositories.MembershipEntry{
			Phone:          target,
			GroupID:        rec.GroupID,
			RegistrationID: rec.Registration(),
			Status:         string(result.Status),
			At:             w.now(),
		}
		if err := w.Memberships.RecordEntry(ctx, entry); err != nil {
			log.Errorf("group=%q phone=%s added but entry record failed: %v", roster.Name, target, err)
		}
	}

	if succeeded == 0 {
		w.failAddRequest(ctx, rec)
		return OutcomeFailed
	}
	if rec.RegistrationID != nil {
		if err := w.AddRequests.MarkFulfilled(ctx, *rec.RegistrationID, rec.GroupID, w.now()); err != nil && !errors.Is(err, repositories.ErrAddRequestNotFound) {
			log.Errorf("registration=%s group=%s: marking request fulfilled failed: %v", *rec.RegistrationID, rec.GroupID, err)
		}
	}
	return OutcomeSucceeded
}

func (w *Worker) phonesFor(ctx context.Context, rec action.Record) ([]string, error) {
	if rec.RegistrationID == nil {
		if rec.Phone == "" {
			return nil, nil
		}
		return []string{rec.Phone}, nil
	}
	phones, err := w.Members.PhonesByRegistration(ctx, *rec.RegistrationID)
	if errors.Is(err, repositories.ErrRegistrationNotFound) {
		return nil, nil
	}
	return phones, err
}

// chatPhones returns the bot's contact phones as a set. A failure only disables the preference.
func (w *Worker) chatPhones(ctx context.Context) map[string]struct{} {
	out := make(map[string]struct{})
	var phones []string
	err := w.retry(ctx, "list-chats", func() error {
		var callErr error
		phones, callErr = w.Messenger.ListChatPhones(ctx)
		return callErr
	})
	if err != nil {
		w.Log.Warnf("listing chat phones failed, adding by canonical number: %v", err)
		return out
	}
	for _, p := range phones {
		if d := phone.Digits(p); d != "" {
			out[d] = struct{}{}
		}
	}
	return out
}

// pickAddTarget prefers the variant the bot already chats with; otherwise the canonical key,
// which the client may answer with an invite.
func pickAddTarget(raw string, chats map[string]struct{}) string {
	key := phone.Canonical(raw)
	for _, v := range phone.Variants(key) {
		if _, ok := chats[v]; ok {
			return v
		}
	}
	return key
}

func (w *Worker) failAddRequest(ctx context.Context, rec action.Record) {
	if rec.RegistrationID == nil {
		return
	}
	if err := w.AddRequests.IncrementAttempt(ctx, *rec.RegistrationID, rec.GroupID, w.now()); err != nil && !errors.Is(err, repositories.ErrAddRequestNotFound) {
		w.Log.Errorf("registration=%s group=%s: incrementing attempts failed: %v", *rec.RegistrationID, rec.GroupID, err)
	}
}

func (w *Worker) getGroup(ctx context.Context, groupID string) (*group.Roster, error) {
	var roster *group.Roster
	err := w.retry(ctx, "get-group", func() error {
		var callErr error
		roster, callErr = w.Messenger.GetGroup(ctx, groupID)
		return callErr
	})
	return roster, err
}

// retry runs fn with exponential backoff. Group-membership errors are not retried.
func (w *Worker) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.Retry.Initial
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := fn()
		if errors.Is(err, group.ErrNotInGroup) || errors.Is(err, group.ErrGroupNotFound) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(w.Retry.Attempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			w.Log.Warnf("%s failed, retrying in %s: %v", op, next.Round(time.Millisecond), err)
		}),
	)
	return err
}

func (w *Worker) audit(groupName, member, act, reason string) {
	if err := w.Audit.Write(auditlog.Entry{Timestamp: w.now(), Group: groupName, Member: member, Action: act, Reason: reason}); err != nil {
		w.Log.Warnf("audit log write failed: %v", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
