// Package jobq is a thin facade over internal/manager, adapted from the
// teacher's provisr.go facade: type aliases over the internal package's
// types plus a constructor, giving embedders a stable public API.
package jobq

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/jobq/internal/config"
	"github.com/loykin/jobq/internal/events"
	"github.com/loykin/jobq/internal/idfactory"
	"github.com/loykin/jobq/internal/manager"
	"github.com/loykin/jobq/internal/metrics"
	"github.com/loykin/jobq/internal/store"
	"github.com/loykin/jobq/internal/store/factory"
)

// EventBus is the typed pub/sub the Queue uses to surface job/expired/
// error notifications to observers outside the handler callback.
type EventBus = events.Bus

// Event is a single notification delivered by an EventBus subscription.
type Event = events.Event

// EventKind identifies the category of an Event.
type EventKind = events.Kind

const (
	EventKindJob     = events.KindJob
	EventKindExpired = events.KindExpired
	EventKindError   = events.KindError
)

// Job is the persisted job entity returned by Fetch and handed to
// subscribers.
type Job = store.Job

// State is a job's lifecycle state.
type State = store.State

// Config is the manager's top-level configuration surface.
type Config = manager.Config

// PublishOptions controls a single Publish call.
type PublishOptions = manager.PublishOptions

// SubscribeOptions controls a single Subscribe call.
type SubscribeOptions = manager.SubscribeOptions

// JobHandler is invoked once per dispatched job.
type JobHandler = manager.JobHandler

// JobHandle acknowledges a dispatched job.
type JobHandle = manager.JobHandle

// Sentinel errors, re-exported for callers using errors.Is.
var (
	ErrInvalidArgument = manager.ErrInvalidArgument
	ErrNotFound        = manager.ErrNotFound
	ErrStopped         = manager.ErrStopped
)

// IDKind selects the UUID version new job IDs are generated with.
type IDKind = idfactory.Kind

const (
	IDKindV1 = idfactory.V1
	IDKindV4 = idfactory.V4
)

// Queue is a thin facade over internal/manager.Manager, giving embedders
// a stable public API independent of the internal package layout.
type Queue struct {
	inner *manager.Manager
	exec  store.Executor
}

// New constructs a Queue over an already-open store.Executor. The Queue's
// Stop closes exec.
func New(exec store.Executor, cfg Config) (*Queue, error) {
	m, err := manager.New(exec, cfg)
	if err != nil {
		return nil, err
	}
	return &Queue{inner: m, exec: exec}, nil
}

// Open selects a store.Executor from dsn (see internal/store/factory),
// ensures the job table exists, and constructs a Queue over it. The
// returned Queue owns the Executor; Stop closes both.
func Open(ctx context.Context, dsn string, cfg Config) (*Queue, error) {
	if cfg.Schema == "" {
		cfg.Schema = "jobq"
	}
	exec, err := factory.New(ctx, dsn, cfg.Schema)
	if err != nil {
		return nil, err
	}
	q, err := New(exec, cfg)
	if err != nil {
		_ = exec.Close()
		return nil, err
	}
	return q, nil
}

// FromAppConfig builds a manager.Config from an application config file
// loaded via internal/config, and opens a Queue over its store.dsn.
func FromAppConfig(ctx context.Context, appConfigPath string) (*Queue, *config.Config, error) {
	cfg, err := config.Load(appConfigPath)
	if err != nil {
		return nil, nil, err
	}
	q, err := Open(ctx, cfg.Store.DSN, Config{
		Schema:              cfg.Store.Schema,
		ExpireCheckInterval: cfg.Store.ExpireCheckInterval,
		NewJobCheckInterval: cfg.Store.NewJobCheckInterval,
		IDKind:              cfg.IDFactoryKind(),
	})
	if err != nil {
		return nil, nil, err
	}
	return q, cfg, nil
}

// Events returns the bus subscribers use to observe job/expired/error
// notifications.
func (q *Queue) Events() *EventBus { return q.inner.Events() }

func (q *Queue) Publish(ctx context.Context, name string, data any, opts PublishOptions) (string, error) {
	return q.inner.Publish(ctx, name, data, opts)
}

func (q *Queue) Subscribe(ctx context.Context, name string, opts SubscribeOptions, handler JobHandler) error {
	return q.inner.Subscribe(ctx, name, opts, handler)
}

func (q *Queue) Fetch(ctx context.Context, name string) (*Job, error) { return q.inner.Fetch(ctx, name) }

func (q *Queue) Complete(ctx context.Context, id string) (string, error) {
	return q.inner.Complete(ctx, id)
}

func (q *Queue) Cancel(ctx context.Context, id string) (string, error) {
	return q.inner.Cancel(ctx, id)
}

// Monitor starts the background expiration sweep. Expired jobs become
// refetchable only while it runs; Subscribe does not start it.
func (q *Queue) Monitor(ctx context.Context) error { return q.inner.Monitor(ctx) }

// Stop stops all workers and the expiration monitor, then closes the
// underlying Executor, whether this Queue was constructed via Open or New.
func (q *Queue) Stop() {
	q.inner.Stop()
	if q.exec != nil {
		_ = q.exec.Close()
	}
}

// RegisterMetrics registers the package's Prometheus collectors with r.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }

// RegisterMetricsDefault registers with prometheus.DefaultRegisterer.
func RegisterMetricsDefault() error { return metrics.Register(prometheus.DefaultRegisterer) }

// MetricsHandler returns an http.Handler serving the Prometheus exposition
// format for the default gatherer.
func MetricsHandler() http.Handler { return metrics.Handler() }

// ServeMetrics starts a blocking HTTP server on addr exposing /metrics.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
