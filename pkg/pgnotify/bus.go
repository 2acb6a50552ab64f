// Package pgnotify wraps github.com/lib/pq's LISTEN/NOTIFY support into a
// single-channel push source: start, receive entry ids, stop. It is the
// push half of the outbox event source (see internal/outbox).
package pgnotify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
)

// Notification carries one payload delivered on the listened channel.
// Payload is the raw pg_notify argument — for the outbox it is the
// newly inserted entry's id, but the listener does not interpret it.
type Notification struct {
	Channel string
	Payload string
}

// Handler is invoked for each notification. Errors are logged by the
// caller; the listener does not retry delivery.
type Handler func(ctx context.Context, n Notification)

// Listener subscribes to a single PostgreSQL NOTIFY channel and delivers
// payloads to a Handler until Stop is called. It silently drops nil
// notifications (connection-reestablished heartbeat frames from
// pq.Listener) rather than treating them as malformed events.
type Listener struct {
	channel  string
	listener *pq.Listener
	handler  Handler

	mu      sync.Mutex
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Listener for the given channel. dsn is a standard
// postgres connection string. minReconnect/maxReconnect bound pq's
// internal backoff between reconnect attempts.
func New(dsn, channel string, minReconnect, maxReconnect time.Duration, onProblem func(ev pq.ListenerEventType, err error)) *Listener {
	if onProblem == nil {
		onProblem = func(pq.ListenerEventType, error) {}
	}
	return &Listener{
		channel:  channel,
		listener: pq.NewListener(dsn, minReconnect, maxReconnect, onProblem),
	}
}

// Start begins delivering notifications to handler. It is not idempotent
// across a Stop/Start cycle; call it once per Listener lifetime.
func (l *Listener) Start(ctx context.Context, handler Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return fmt.Errorf("pgnotify: listener already started")
	}

	if err := l.listener.Listen(l.channel); err != nil {
		return fmt.Errorf("pgnotify: listen %s: %w", l.channel, err)
	}

	l.handler = handler
	l.ctx, l.cancel = context.WithCancel(ctx)
	l.started = true

	l.wg.Add(1)
	go l.run()
	return nil
}

// Stop cancels the listener loop and closes the underlying connection.
// It is safe to call multiple times.
func (l *Listener) Stop() error {
	l.mu.Lock()
	started := l.started
	l.started = false
	l.mu.Unlock()

	if !started {
		return nil
	}

	l.cancel()
	l.wg.Wait()
	return l.listener.Close()
}

func (l *Listener) run() {
	defer l.wg.Done()

	const keepAlive = 90 * time.Second
	timer := time.NewTimer(keepAlive)
	defer timer.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return

		case n := <-l.listener.Notify:
			if n == nil {
				// Heartbeat/reconnect frame from pq.Listener; not a payload.
				continue
			}
			l.handler(l.ctx, Notification{Channel: n.Channel, Payload: n.Extra})
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(keepAlive)

		case <-timer.C:
			go l.listener.Ping() //nolint:errcheck // best-effort keepalive
			timer.Reset(keepAlive)
		}
	}
}
