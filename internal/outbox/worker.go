package outbox

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/openshift-hyperfleet/kartograph/infrastructure/resilience"
	"github.com/openshift-hyperfleet/kartograph/internal/events"
	"github.com/openshift-hyperfleet/kartograph/internal/kartoerr"
	"github.com/openshift-hyperfleet/kartograph/internal/policy"
	"github.com/openshift-hyperfleet/kartograph/pkg/logger"
	"github.com/openshift-hyperfleet/kartograph/pkg/metrics"
	"github.com/openshift-hyperfleet/kartograph/pkg/storage/postgres"
)

// WorkerConfig controls batch size and the dead-letter threshold.
type WorkerConfig struct {
	BatchSize  int
	MaxRetries int
}

// DefaultWorkerConfig mirrors the defaults used throughout the rest of
// Kartograph's resilience configs: small batches, bounded retries.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{BatchSize: 100, MaxRetries: 5}
}

// Worker is the single claim-translate-apply-commit loop described by
// spec §5: one task drives batches, woken either by a push Source
// (pg_notify) or a poll Source (a ticker floor), never both doing work
// concurrently — wakeups only ever coalesce into the next batch.
type Worker struct {
	cfg        WorkerConfig
	tx         *postgres.TxManager
	claimer    *Claimer
	translator events.Translator
	engine     policy.Engine
	sources    []Source
	log        *logger.Logger

	cb       *resilience.CircuitBreaker
	retryCfg resilience.RetryConfig

	wake chan struct{}

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker wires a Worker from its collaborators. sources may include
// both a PushSource and a PollSource; either firing enqueues a wakeup.
func NewWorker(cfg WorkerConfig, tx *postgres.TxManager, translator events.Translator, engine policy.Engine, log *logger.Logger, sources ...Source) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if log == nil {
		log = logger.NewDefault("outbox-worker")
	}
	return &Worker{
		cfg:        cfg,
		tx:         tx,
		claimer:    NewClaimer(cfg.MaxRetries),
		translator: translator,
		engine:     engine,
		sources:    sources,
		log:        log,
		cb:         resilience.New(resilience.DefaultPolicyEngineCBConfig(log)),
		retryCfg:   resilience.DefaultRetryConfig(),
		wake:       make(chan struct{}, 1),
	}
}

// Run starts every source and the claim-apply loop, and blocks until ctx
// is canceled. On cancellation it stops accepting new wakeups, lets a
// partially claimed batch finish committing or rolling back (spec §5:
// "stop() must not interrupt a partially applied batch"), then returns.
func (w *Worker) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.running = true
	w.cancel = cancel
	w.done = make(chan struct{})
	w.mu.Unlock()
	defer close(w.done)

	var started []Source
	for _, s := range w.sources {
		if err := s.Start(runCtx, func(Wakeup) { w.notify() }); err != nil {
			stopStarted(started, w.log)
			cancel()
			return err
		}
		started = append(started, s)
	}
	defer stopStarted(started, w.log)

	w.notify() // drain any backlog left from before this process started

	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-w.wake:
			claimed, err := w.claimBatch(ctx)
			if err != nil {
				w.log.WithError(err).Error("outbox worker batch failed")
			}
			// A batch may have left more rows behind it than BatchSize
			// covered; keep draining until a batch claims nothing.
			if err == nil && claimed > 0 {
				w.notify()
			}
		}
	}
}

// Stop cancels the run loop and waits for the in-flight batch (if any) to
// finish committing or rolling back.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// stopStarted stops every started source, aggregating failures instead of
// abandoning the remaining sources after the first Stop error.
func stopStarted(started []Source, log *logger.Logger) {
	var result *multierror.Error
	for _, s := range started {
		if err := s.Stop(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if result != nil && log != nil {
		log.WithError(result.ErrorOrNil()).Warn("outbox worker source shutdown reported errors")
	}
}

func (w *Worker) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// runBatch claims, translates, and applies one batch inside a single
// transaction, committing only once every claimed row has either been
// marked processed or dead-lettered. A translation or engine error fails
// that row alone; it does not abort the rest of the batch — the batch's
// transaction only rolls back on a database-level failure (claim or
// mark-processed itself erroring), matching the ordering guarantee in
// spec §5: per-aggregate order is preserved by outbox id, not by an
// all-or-nothing batch commit.
func (w *Worker) runBatch(ctx context.Context) error {
	_, err := w.claimBatch(ctx)
	return err
}

// claimBatch is runBatch, also reporting how many rows the batch claimed.
func (w *Worker) claimBatch(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { metrics.OutboxBatchDuration.Observe(time.Since(start).Seconds()) }()

	claimed := 0
	err := w.tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		entries, err := w.claimer.Claim(ctx, tx, w.cfg.BatchSize)
		if err != nil {
			return err
		}
		claimed = len(entries)
		for _, e := range entries {
			metrics.OutboxClaimed.WithLabelValues(e.EventType).Inc()

			if err := w.applyEntry(ctx, tx, e); err != nil {
				w.log.WithError(err).WithField("event_id", e.ID).WithField("event_type", e.EventType).
					Warn("outbox entry failed")
				if markErr := w.claimer.MarkFailed(ctx, tx, e.ID, e.RetryCount, err); markErr != nil {
					return markErr
				}
				if e.RetryCount+1 > w.cfg.MaxRetries {
					metrics.OutboxDeadLettered.WithLabelValues(e.EventType).Inc()
				}
				continue
			}
			if err := w.claimer.MarkProcessed(ctx, tx, e.ID); err != nil {
				return err
			}
			metrics.OutboxProcessed.WithLabelValues(e.EventType).Inc()
		}
		return nil
	})
	return claimed, err
}

// applyEntry translates one entry's payload into policy operations and
// applies them through the circuit breaker, retrying transient failures
// (spec §7's "network, deadlock, serialization" bucket) and giving up
// immediately on permanent ones (schema mismatches, bad input) so a doomed
// call doesn't burn the retry budget before the row is dead-lettered.
func (w *Worker) applyEntry(ctx context.Context, tx *sql.Tx, e Entry) error {
	ops, err := w.translator.Translate(e.EventType, e.Payload)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return w.cb.Execute(ctx, func() error {
		return resilience.Retry(ctx, w.retryCfg, func() error {
			return classifyPolicyErr(policy.Apply(ctx, w.engine, ops))
		})
	})
}

// classifyPolicyErr wraps a policy-engine failure as a *kartoerr.PolicyEngineError
// and marks it permanent unless it looks like a transient call failure (a
// canceled or timed-out context). There's no gRPC status code to inspect here,
// so context cancellation is the one reliable transient signal available;
// everything else the engine returns deterministically (a missing narrowing
// field, an unknown resource type) will fail again on retry, so it's not worth
// retrying.
func classifyPolicyErr(err error) error {
	if err == nil {
		return nil
	}
	wrapped := &kartoerr.PolicyEngineError{Operation: "apply", Cause: err}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return wrapped
	}
	return resilience.Permanent(wrapped)
}
