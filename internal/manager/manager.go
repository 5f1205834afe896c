// Package manager implements the Manager described by the specification:
// the top-level coordinator that owns configuration, the executor handle,
// the worker registry and the expiration timer, and exposes
// publish/subscribe/fetch/complete/cancel.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/loykin/jobq/internal/attorney"
	"github.com/loykin/jobq/internal/events"
	"github.com/loykin/jobq/internal/idfactory"
	"github.com/loykin/jobq/internal/metrics"
	"github.com/loykin/jobq/internal/plans"
	"github.com/loykin/jobq/internal/store"
	"github.com/loykin/jobq/internal/worker"
)

// Sentinel errors, matching the taxonomy in the specification's error
// handling design: invalid-argument failures are synchronous, not-found
// failures are asynchronous (raised from complete/cancel).
var (
	ErrInvalidArgument = errors.New("manager: invalid argument")
	ErrNotFound        = errors.New("manager: not found")
	ErrStopped         = errors.New("manager: manager is stopped")
)

// Config is the manager's top-level configuration surface.
type Config struct {
	Schema              string
	ExpireCheckInterval time.Duration
	NewJobCheckInterval time.Duration
	IDKind              idfactory.Kind
}

func (c Config) withDefaults() Config {
	if c.Schema == "" {
		c.Schema = "jobq"
	}
	if c.ExpireCheckInterval <= 0 {
		c.ExpireCheckInterval = 30 * time.Second
	}
	if c.NewJobCheckInterval <= 0 {
		c.NewJobCheckInterval = attorney.DefaultNewJobCheckInterval
	}
	return c
}

// PublishOptions mirrors the "publish options" surface from the
// specification's external interfaces section.
type PublishOptions struct {
	StartIn           time.Duration
	ExpireIn          time.Duration
	RetryLimit        int
	SingletonKey      string
	SingletonSeconds  float64
	SingletonMinutes  float64
	SingletonHours    float64
	SingletonDays     float64
	SingletonNextSlot bool

	// singletonOffset is only ever set by the internal recursive retry in
	// Publish; external callers never set it directly.
	singletonOffset float64
}

// SubscribeOptions mirrors the "subscribe options" surface.
type SubscribeOptions struct {
	TeamSize                   int
	NewJobCheckInterval        time.Duration
	NewJobCheckIntervalSeconds float64
}

// JobHandler is invoked once per dispatched job. The handle is the typed
// replacement for the source's completion thunk (see spec.md §9): callers
// invoke handle.Complete or handle.Cancel instead of closing over an id.
type JobHandler func(ctx context.Context, job *store.Job, handle *JobHandle)

// JobHandle lets a subscriber acknowledge a dispatched job.
type JobHandle struct {
	mgr *Manager
	id  string
}

// Complete marks the underlying job completed.
func (h *JobHandle) Complete(ctx context.Context) (string, error) { return h.mgr.Complete(ctx, h.id) }

// Cancel marks the underlying job cancelled.
func (h *JobHandle) Cancel(ctx context.Context) (string, error) { return h.mgr.Cancel(ctx, h.id) }

// Manager is the top-level coordinator: owns the executor handle, the
// worker registry, and the expiration timer for the lifetime of the
// process. It never caches job rows; the store owns them.
type Manager struct {
	cfg     Config
	exec    store.Executor
	plans   plans.Set
	dialect plans.Dialect
	ids     *idfactory.Factory
	bus     *events.Bus

	mu            sync.Mutex
	workers       []*worker.Worker
	stopped       bool
	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// New constructs a Manager over the given Executor. It computes the plan
// set once, at construction, per the specification's statelessness
// requirement for Plans.
func New(exec store.Executor, cfg Config) (*Manager, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: executor must not be nil", ErrInvalidArgument)
	}
	cfg = cfg.withDefaults()

	var dialect plans.Dialect
	switch exec.Dialect() {
	case string(plans.DialectPostgres):
		dialect = plans.DialectPostgres
	case string(plans.DialectSQLite):
		dialect = plans.DialectSQLite
	default:
		return nil, fmt.Errorf("%w: unsupported executor dialect %q", ErrInvalidArgument, exec.Dialect())
	}
	set, err := plans.Build(dialect, cfg.Schema)
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:     cfg,
		exec:    exec,
		plans:   set,
		dialect: dialect,
		ids:     idfactory.New(cfg.IDKind),
		bus:     events.NewBus(),
	}, nil
}

// Events returns the bus subscribers use to observe job/expired/error
// notifications.
func (m *Manager) Events() *events.Bus { return m.bus }

// Publish validates name and data, normalizes options, computes the
// singleton bucket, and inserts the job row. It returns "" (no error) when
// a singleton publish was suppressed by an existing non-terminal row in
// the same bucket.
func (m *Manager) Publish(ctx context.Context, name string, data any, opts PublishOptions) (string, error) {
	if err := attorney.ValidateName(name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := attorney.ValidatePayload(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: payload not JSON-encodable: %v", ErrInvalidArgument, err)
	}

	id, err := m.ids.NewID()
	if err != nil {
		return "", err
	}

	expireIn := attorney.ApplyExpireIn(opts.ExpireIn)
	now := time.Now().UTC()
	startAfter := now.Add(opts.StartIn)

	singletonSeconds := attorney.SingletonSeconds(opts.SingletonSeconds, opts.SingletonMinutes, opts.SingletonHours, opts.SingletonDays)

	var singletonKeyArg, singletonOnArg any
	if opts.SingletonKey != "" && singletonSeconds > 0 {
		bucket := attorney.Bucket(now, singletonSeconds, opts.singletonOffset)
		singletonKeyArg = opts.SingletonKey
		singletonOnArg = attorney.BucketBoundary(bucket, singletonSeconds)
	}

	insertArgs := []any{id, name, opts.RetryLimit, startAfter, expireIn.Seconds(), payload,
		singletonKeyArg, singletonOnArg}
	if m.dialect == plans.DialectSQLite {
		// The SQLite plan has no named-parameter reuse, so the WHERE
		// clause takes singletonKeyArg, name, singletonKeyArg and
		// singletonOnArg again as positional arguments.
		insertArgs = append(insertArgs, singletonKeyArg, name, singletonKeyArg, singletonOnArg)
	}
	res, err := m.exec.Exec(ctx, m.plans.InsertJob, insertArgs...)
	if err != nil {
		return "", err
	}
	if res.RowCount == 0 {
		// Singleton suppression: a non-terminal row already occupies this
		// bucket. singletonNextSlot asks for one retry in the *next*
		// bucket, using singletonOffset = singletonSeconds (relative to
		// now, not to the occupied slot — preserved per spec.md §9).
		if opts.SingletonNextSlot && opts.singletonOffset == 0 {
			retryOpts := opts
			retryOpts.StartIn = time.Duration(singletonSeconds * float64(time.Second))
			retryOpts.singletonOffset = singletonSeconds
			retryOpts.SingletonNextSlot = false
			return m.Publish(ctx, name, data, retryOpts)
		}
		metrics.IncSuppressed(name)
		return "", nil
	}
	metrics.IncPublished(name)
	return id, nil
}

// Subscribe spawns opts.TeamSize workers, all fetching from name and all
// sharing handler. Each dispatched job is first announced on the "job"
// event, then handed to handler on its own goroutine so a slow handler
// cannot stall the fetch loop (the responder "defers one tick").
func (m *Manager) Subscribe(ctx context.Context, name string, opts SubscribeOptions, handler JobHandler) error {
	if err := attorney.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if handler == nil {
		return fmt.Errorf("%w: handler must not be nil", ErrInvalidArgument)
	}

	teamSize, err := attorney.ApplyTeamSize(opts.TeamSize)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	intervalIn := attorney.NewJobCheckIntervalInput{
		NewJobCheckInterval:        opts.NewJobCheckInterval,
		NewJobCheckIntervalSeconds: opts.NewJobCheckIntervalSeconds,
	}
	if intervalIn.NewJobCheckInterval == 0 && intervalIn.NewJobCheckIntervalSeconds <= 0 {
		// Neither option set on the subscription: use the manager's default.
		intervalIn.NewJobCheckInterval = m.cfg.NewJobCheckInterval
	}
	interval, err := attorney.ApplyNewJobCheckInterval(intervalIn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	m.mu.Unlock()

	fetcher := func(ctx context.Context) (*store.Job, error) {
		return m.Fetch(ctx, name)
	}
	responder := func(ctx context.Context, job *store.Job) {
		m.bus.EmitJob(job)
		go m.dispatch(ctx, job, handler)
	}
	onError := func(err error) {
		m.bus.EmitError(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 0; i < teamSize; i++ {
		w := worker.New(interval, fetcher, responder, onError)
		m.workers = append(m.workers, w)
		go w.Start(ctx)
	}
	return nil
}

// dispatch runs the user callback, converting a synchronous panic into an
// error event instead of letting it kill the worker.
func (m *Manager) dispatch(ctx context.Context, job *store.Job, handler JobHandler) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncHandlerPanic(job.Name)
			m.bus.EmitError(fmt.Errorf("manager: callback panicked for job %s: %v", job.ID, r))
		}
	}()
	handler(ctx, job, &JobHandle{mgr: m, id: job.ID})
}

// Fetch atomically claims one eligible row for name, or returns (nil, nil)
// if none is eligible.
func (m *Manager) Fetch(ctx context.Context, name string) (*store.Job, error) {
	if err := attorney.ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	start := time.Now()
	res, err := m.exec.Exec(ctx, m.plans.FetchNextJob, name)
	metrics.ObserveFetchDuration(name, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if len(res.Jobs) == 0 {
		return nil, nil
	}
	job := res.Jobs[0]
	job.Name = name // the plan's RETURNING clause already includes it, but
	// callers that use a store implementation which omits it from the
	// result set still get a consistent Job back.
	metrics.IncFetched(name)
	return &job, nil
}

// Complete marks id completed. Exactly one row must be affected; zero rows
// is reported as ErrNotFound.
func (m *Manager) Complete(ctx context.Context, id string) (string, error) {
	res, err := m.finish(ctx, m.plans.CompleteJob, id)
	if err == nil {
		metrics.IncCompleted()
	}
	return res, err
}

// Cancel marks id cancelled. Exactly one row must be affected; zero rows is
// reported as ErrNotFound.
func (m *Manager) Cancel(ctx context.Context, id string) (string, error) {
	res, err := m.finish(ctx, m.plans.CancelJob, id)
	if err == nil {
		metrics.IncCancelled()
	}
	return res, err
}

func (m *Manager) finish(ctx context.Context, plan, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("%w: id must not be empty", ErrInvalidArgument)
	}
	res, err := m.exec.Exec(ctx, plan, id)
	if err != nil {
		return "", err
	}
	if res.RowCount != 1 {
		return "", fmt.Errorf("%w: job %s (rows affected: %d)", ErrNotFound, id, res.RowCount)
	}
	return id, nil
}

// Monitor runs an initial expiration sweep, then schedules one at
// ExpireCheckInterval. Sweep errors are emitted on the error event and do
// not stop the monitor — the specification preserves the source's
// "always re-arm" behavior for any error, including ones that would
// otherwise look like a programming error.
func (m *Manager) Monitor(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.monitorCancel != nil {
		m.mu.Unlock()
		return nil // already running
	}
	monitorCtx, cancel := context.WithCancel(ctx)
	m.monitorCancel = cancel
	m.monitorDone = make(chan struct{})
	done := m.monitorDone
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.expireOnce(monitorCtx)
		ticker := time.NewTicker(m.cfg.ExpireCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				m.expireOnce(monitorCtx)
			}
		}
	}()
	return nil
}

func (m *Manager) expireOnce(ctx context.Context) {
	res, err := m.exec.Exec(ctx, m.plans.ExpireJob)
	if err != nil {
		m.bus.EmitError(fmt.Errorf("manager: expire sweep: %w", err))
		return
	}
	metrics.IncExpired(int(res.RowCount))
	m.bus.EmitExpired(int(res.RowCount))
}

// Close stops all workers and clears the worker registry. Idempotent.
func (m *Manager) Close() {
	m.mu.Lock()
	workers := m.workers
	m.workers = nil
	m.mu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
}

// Stop calls Close, marks the manager stopped (preventing further
// Subscribe/Monitor calls and any re-arming of the expiration timer), and
// cancels the pending expiration timer. Idempotent.
func (m *Manager) Stop() {
	m.Close()
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	cancel := m.monitorCancel
	done := m.monitorDone
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}
