package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mkarpov/sshvault/internal/client/models"
	"github.com/mkarpov/sshvault/internal/common"
	"github.com/mkarpov/sshvault/internal/logging"
	"github.com/sethvargo/go-retry"
)

// Status is a read-only snapshot of the sync engine for the presentation
// layer. It is exposed as a query, never a mutation path.
type Status struct {
	InFlight   bool
	LastReport *models.SyncReport
	LastError  string
	LastRunAt  time.Time
}

// Runner executes reconciliation cycles periodically and on demand. At most
// one cycle is in flight; a trigger while one runs coalesces into a single
// pending re-run rather than queueing unboundedly.
type Runner struct {
	rec      *Reconciler
	interval time.Duration
	logger   logging.Logger

	trigger chan struct{}

	mu      sync.Mutex
	running bool
	status  Status
}

func NewRunner(rec *Reconciler, interval time.Duration, logger logging.Logger) *Runner {
	return &Runner{
		rec:      rec,
		interval: interval,
		logger:   logger.With("component", "sync-runner"),
		// capacity 1 is what coalesces triggers: extra ones are dropped
		trigger: make(chan struct{}, 1),
	}
}

// Trigger requests a cycle as soon as possible. Safe to call from any
// goroutine; triggers during an in-flight cycle collapse into one.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Run loops until ctx is cancelled, reconciling every interval and whenever
// triggered.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runCycle(ctx)
		case <-r.trigger:
			r.runCycle(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce executes a single cycle synchronously, for an interactive "sync
// now". It shares the single-flight guard with the background loop.
func (r *Runner) RunOnce(ctx context.Context) (*models.SyncReport, error) {
	return r.runCycle(ctx)
}

// Status returns the current snapshot.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Runner) runCycle(ctx context.Context) (*models.SyncReport, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		// coalesce into the in-flight cycle's follow-up
		r.Trigger()
		return nil, common.ErrSyncInProgress
	}
	r.running = true
	r.status.InFlight = true
	r.mu.Unlock()

	report, err := r.reconcileWithRetry(ctx)

	r.mu.Lock()
	r.running = false
	r.status.InFlight = false
	r.status.LastRunAt = time.Now().UTC()
	if err != nil {
		r.status.LastError = err.Error()
	} else {
		r.status.LastError = ""
		r.status.LastReport = report
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Warn(ctx, "reconciliation failed", "error", err)
	}
	return report, err
}

// reconcileWithRetry retries transient transport failures with capped
// exponential backoff. A transport failure aborts the cycle before any
// local write, so retrying the whole cycle is safe.
func (r *Runner) reconcileWithRetry(ctx context.Context) (*models.SyncReport, error) {
	var report *models.SyncReport

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		report, err = r.rec.Reconcile(ctx)
		if errors.Is(err, common.ErrTransport) || errors.Is(err, common.ErrUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
	return report, err
}
