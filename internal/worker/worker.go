// Package worker implements a single long-lived polling loop. A Worker
// calls a Fetcher on a timer, hands whatever it returns to a Responder, and
// routes Fetcher errors to an error sink — without ever terminating on its
// own. The manager owns a team of Workers per subscription; Workers share
// no mutable state with one another beyond the fetcher/responder closures
// the manager wires them to.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/loykin/jobq/internal/store"
)

// Fetcher returns the next eligible job, or nil if none is currently
// eligible. A non-nil error is routed to the Worker's error sink; the loop
// continues regardless.
type Fetcher func(ctx context.Context) (*store.Job, error)

// Responder consumes a fetched job. It must not block the calling
// goroutine for long: the contract is that Responder itself hands the job
// off (e.g. to a freshly spawned goroutine) so the Worker can immediately
// re-arm its timer.
type Responder func(ctx context.Context, job *store.Job)

// ErrorFunc receives errors raised by Fetcher.
type ErrorFunc func(error)

// Worker is a single polling loop: idle -> fetching -> {dispatching, idle},
// with stop acceptable from any state.
type Worker struct {
	interval  time.Duration
	fetcher   Fetcher
	responder Responder
	onError   ErrorFunc

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
	done    chan struct{}
}

// New constructs a Worker. It does not start polling until Start is called.
func New(interval time.Duration, fetcher Fetcher, responder Responder, onError ErrorFunc) *Worker {
	return &Worker{
		interval:  interval,
		fetcher:   fetcher,
		responder: responder,
		onError:   onError,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or ctx is cancelled. Start
// must be called at most once per Worker; call it in its own goroutine.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.fetcher(ctx)
		if err != nil {
			if w.onError != nil {
				w.onError(err)
			}
		} else if job != nil {
			w.responder(ctx, job)
		}

		if !w.sleep(ctx) {
			return
		}
	}
}

// sleep waits out the poll interval, returning false if the Worker was
// stopped or ctx was cancelled while sleeping.
func (w *Worker) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-w.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// Stop prevents any further fetch and cancels an armed sleep. Safe to call
// multiple times and from any goroutine.
func (w *Worker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
}

// Done returns a channel that closes once the poll loop has exited, useful
// for tests and for Stop callers that want to wait for in-flight work to
// settle.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
