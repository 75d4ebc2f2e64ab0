// Package syncloop drives pull and push on a self-rescheduling timer with
// exponential backoff.
package syncloop

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/angelmondragon/packfinderz-pos/internal/bootstrap"
	"github.com/angelmondragon/packfinderz-pos/internal/syncer"
	"github.com/angelmondragon/packfinderz-pos/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-pos/pkg/errors"
	"github.com/angelmondragon/packfinderz-pos/pkg/logger"
	"github.com/angelmondragon/packfinderz-pos/pkg/meta"
	"github.com/angelmondragon/packfinderz-pos/pkg/metrics"
)

const (
	DefaultFloor   = 30 * time.Second
	DefaultCeiling = 5 * time.Minute

	jitterWindow = 250 * time.Millisecond
)

// ErrBusy is returned by RunOnce while another iteration is in progress.
var ErrBusy = errors.New("sync iteration already running")

type syncService interface {
	Pull(ctx context.Context) (syncer.PullResult, error)
	Flush(ctx context.Context, limit int) (syncer.PushResult, error)
	Status(ctx context.Context) (syncer.Status, error)
}

type bootstrapper interface {
	Run(ctx context.Context) (bootstrap.Snapshot, error)
}

// Outcome describes one iteration. Bootstrap is set only when the iteration
// had to load the initial snapshot first.
type Outcome struct {
	Skipped   string
	Bootstrap *bootstrap.Snapshot
	Pull      syncer.PullResult
	Push      syncer.PushResult
	Err       error
	Next      time.Duration
}

type RunnerParams struct {
	Syncer syncService
	// Bootstrap, when set, loads the snapshot before the first pull of a pairing.
	Bootstrap bootstrapper
	Meta      meta.Store
	SyncState meta.Store
	Metrics   *metrics.SyncMetrics
	Logger    *logger.Logger
	Floor     time.Duration
	Ceiling   time.Duration
	BatchSize int
	Now       func() time.Time
	// Sleep replaces the timer wait; tests use it to observe delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Runner struct {
	syncer    syncService
	bootstrap bootstrapper
	meta      meta.Store
	syncState meta.Store
	metrics   *metrics.SyncMetrics
	logg      *logger.Logger
	floor     time.Duration
	ceiling   time.Duration
	batchSize int
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	running sync.Mutex
	mu      sync.Mutex
	backoff time.Duration
	kick    chan struct{}
}

func NewRunner(params RunnerParams) (*Runner, error) {
	if params.Syncer == nil {
		return nil, errors.New("syncer is required")
	}
	if params.Meta == nil || params.SyncState == nil {
		return nil, errors.New("meta and sync state stores are required")
	}
	r := &Runner{
		syncer:    params.Syncer,
		bootstrap: params.Bootstrap,
		meta:      params.Meta,
		syncState: params.SyncState,
		metrics:   params.Metrics,
		logg:      params.Logger,
		floor:     params.Floor,
		ceiling:   params.Ceiling,
		batchSize: params.BatchSize,
		now:       params.Now,
		sleep:     params.Sleep,
		kick:      make(chan struct{}, 1),
	}
	if r.floor <= 0 {
		r.floor = DefaultFloor
	}
	if r.ceiling < r.floor {
		r.ceiling = DefaultCeiling
		if r.ceiling < r.floor {
			r.ceiling = r.floor
		}
	}
	if r.batchSize <= 0 {
		r.batchSize = syncer.DefaultPushLimit
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.sleep == nil {
		r.sleep = r.wait
	}
	r.backoff = r.floor
	return r, nil
}

// Run loops until ctx is cancelled. The next iteration is scheduled only after
// the previous one returned, so iterations never overlap.
func (r *Runner) Run(ctx context.Context) error {
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"floor":   r.floor.String(),
		"ceiling": r.ceiling.String(),
	}), "sync loop started")
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "sync loop stopped")
			return err
		}
		outcome, err := r.RunOnce(ctx)
		next := outcome.Next
		if errors.Is(err, ErrBusy) {
			next = r.Backoff()
		}
		if err := r.sleep(ctx, next); err != nil {
			r.logg.Info(ctx, "sync loop stopped")
			return err
		}
	}
}

// Kick wakes a sleeping loop early, for example right after an order completes.
func (r *Runner) Kick() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Backoff returns the delay that follows the latest iteration.
func (r *Runner) Backoff() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.backoff
}

// RunOnce performs one pull then flush, preceded by a bootstrap when the
// pairing has none yet. It returns ErrBusy instead of waiting
// when an iteration is already in progress.
func (r *Runner) RunOnce(ctx context.Context) (Outcome, error) {
	if !r.running.TryLock() {
		return Outcome{Skipped: "busy"}, ErrBusy
	}
	defer r.running.Unlock()

	mode, err := meta.OperatingMode(ctx, r.meta)
	if err != nil {
		return r.fail(ctx, "mode", Outcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read operating mode")), nil
	}
	if mode == enums.OperatingModeOffline {
		return Outcome{Skipped: "offline", Next: r.Backoff()}, nil
	}
	identity, err := meta.LoadIdentity(ctx, r.meta)
	if err != nil {
		return r.fail(ctx, "identity", Outcome{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load identity")), nil
	}
	if !identity.Complete() {
		return Outcome{Skipped: "unpaired", Next: r.Backoff()}, nil
	}

	var outcome Outcome
	if r.bootstrap != nil {
		needed, err := meta.NeedsBootstrap(ctx, r.syncState)
		if err != nil {
			return r.fail(ctx, "bootstrap", outcome, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read bootstrap state")), nil
		}
		if needed {
			start := time.Now()
			snap, err := r.bootstrap.Run(ctx)
			r.metrics.ObserveDuration("bootstrap", time.Since(start))
			if err != nil {
				return r.fail(ctx, "bootstrap", outcome, err), nil
			}
			r.metrics.IncSuccess("bootstrap")
			outcome.Bootstrap = &snap
		}
	}

	start := time.Now()
	outcome.Pull, err = r.syncer.Pull(ctx)
	r.metrics.ObserveDuration("pull", time.Since(start))
	if err != nil {
		return r.fail(ctx, "pull", outcome, err), nil
	}
	r.metrics.IncSuccess("pull")

	start = time.Now()
	outcome.Push, err = r.syncer.Flush(ctx, r.batchSize)
	r.metrics.ObserveDuration("push", time.Since(start))
	if err != nil {
		return r.fail(ctx, "push", outcome, err), nil
	}
	r.metrics.IncSuccess("push")

	return r.succeed(ctx, outcome), nil
}

func (r *Runner) succeed(ctx context.Context, outcome Outcome) Outcome {
	r.mu.Lock()
	r.backoff = r.floor
	outcome.Next = r.backoff
	r.mu.Unlock()
	r.metrics.SetBackoff(outcome.Next)

	stamp := strconv.FormatInt(r.now().UnixMilli(), 10)
	if err := r.syncState.Set(ctx, meta.KeyLastSyncSuccessAt, stamp); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "recording sync success failed")
	}
	if err := r.syncState.Delete(ctx, meta.KeyLastSyncError); err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "clearing sync error failed")
	}
	r.observeOutbox(ctx)

	r.logg.Debug(r.logg.WithFields(ctx, map[string]any{
		"applied": outcome.Pull.Applied,
		"pushed":  outcome.Push.Pushed,
	}), "sync iteration succeeded")
	return outcome
}

func (r *Runner) fail(ctx context.Context, phase string, outcome Outcome, err error) Outcome {
	r.mu.Lock()
	r.backoff = nextBackoff(r.backoff, r.floor, r.ceiling)
	outcome.Next = r.backoff
	r.mu.Unlock()
	outcome.Err = err

	code := string(pkgerrors.CodeInternal)
	if typed := pkgerrors.As(err); typed != nil {
		code = string(typed.Code())
	}
	r.metrics.IncFailure(phase, code)
	r.metrics.SetBackoff(outcome.Next)
	if serr := r.syncState.Set(ctx, meta.KeyLastSyncError, err.Error()); serr != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", serr.Error()), "recording sync error failed")
	}
	r.observeOutbox(ctx)

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"phase": phase,
		"code":  code,
		"next":  outcome.Next.String(),
	})
	if pkgerrors.IsCode(err, pkgerrors.CodeAuthRevoked) {
		r.logg.Warn(logCtx, "sync stopped: device token revoked")
	} else {
		r.logg.Error(logCtx, "sync iteration failed", err)
	}
	return outcome
}

func (r *Runner) observeOutbox(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	st, err := r.syncer.Status(ctx)
	if err != nil {
		return
	}
	r.metrics.SetOutbox(st.Outbox)
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(withJitter(d))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.kick:
		return nil
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, floor, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = floor
	}
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
