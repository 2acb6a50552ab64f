// Package outbox implements Core A: the transactional outbox and its
// worker loop. This file is the event source (C5) — the abstraction over
// how a wakeup to re-check for unprocessed rows reaches the worker,
// either pushed by a database notification or polled on a fixed floor.
package outbox

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/openshift-hyperfleet/kartograph/pkg/logger"
	"github.com/openshift-hyperfleet/kartograph/pkg/pgnotify"
)

// Wakeup is delivered to the worker's batch-claim loop. EntryID is set
// for push-delivered wakeups and empty for poll-floor ticks — either way
// the worker re-queries for unprocessed rows rather than trusting the
// payload, since delivery is best-effort (spec §4.5).
type Wakeup struct {
	EntryID string
}

// Source abstracts how new-entry notifications reach the worker.
type Source interface {
	// Start begins delivering wakeups to onEvent until Stop is called.
	Start(ctx context.Context, onEvent func(Wakeup)) error
	// Stop cancels the in-flight listener task cleanly. Idempotent.
	Stop() error
}

// PushSource delivers a Wakeup as soon as the outbox append trigger fires
// pg_notify on channel. Malformed or heartbeat frames are dropped
// silently; the worker never depends on receiving any particular
// notification, only on poll as the eventual-delivery floor.
type PushSource struct {
	listener *pgnotify.Listener
}

// NewPushSource builds a push source listening on channel over dsn.
func NewPushSource(dsn, channel string, log *logger.Logger) *PushSource {
	onProblem := func(ev pq.ListenerEventType, err error) {
		if err != nil && log != nil {
			log.WithFields(map[string]interface{}{
				"event": ev,
				"error": err.Error(),
			}).Warn("outbox push source listener problem")
		}
	}
	return &PushSource{
		listener: pgnotify.New(dsn, channel, 10*time.Second, time.Minute, onProblem),
	}
}

func (s *PushSource) Start(ctx context.Context, onEvent func(Wakeup)) error {
	return s.listener.Start(ctx, func(_ context.Context, n pgnotify.Notification) {
		if _, err := uuid.Parse(n.Payload); err != nil {
			return
		}
		onEvent(Wakeup{EntryID: n.Payload})
	})
}

func (s *PushSource) Stop() error {
	return s.listener.Stop()
}

// PollSource wakes on a fixed schedule and invokes the worker's
// batch-claim loop with a sentinel (empty) Wakeup. It is the safety net
// beneath PushSource: rows are guaranteed to be picked up within one
// poll period even if every notification is lost.
type PollSource struct {
	schedule string // 5-field cron expression, or 6-field with seconds for NewIntervalPollSource
	cr       *cron.Cron

	mu      sync.Mutex
	started bool
}

// NewPollSource builds a poll source from a cron schedule expression
// (e.g. "*/5 * * * *" for every five minutes). Use NewIntervalPollSource
// for a plain fixed-duration ticker instead.
func NewPollSource(schedule string) *PollSource {
	return &PollSource{schedule: schedule, cr: cron.New()}
}

// NewIntervalPollSource builds a poll source that fires every interval
// using cron's seconds-enabled parser, for sub-minute floors.
func NewIntervalPollSource(interval time.Duration) *PollSource {
	seconds := int(interval.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	c := cron.New(cron.WithParser(cron.NewParser(
		cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
	)))
	return &PollSource{schedule: intervalCronExpr(seconds), cr: c}
}

func intervalCronExpr(seconds int) string {
	if seconds%60 == 0 {
		return "0 */" + strconv.Itoa(seconds/60) + " * * * *"
	}
	return "*/" + strconv.Itoa(seconds) + " * * * * *"
}

func (p *PollSource) Start(ctx context.Context, onEvent func(Wakeup)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	_, err := p.cr.AddFunc(p.schedule, func() {
		select {
		case <-ctx.Done():
			return
		default:
			onEvent(Wakeup{})
		}
	})
	if err != nil {
		return err
	}

	p.cr.Start()
	p.started = true
	return nil
}

func (p *PollSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	stopCtx := p.cr.Stop()
	<-stopCtx.Done()
	return nil
}
