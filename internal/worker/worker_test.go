package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loykin/jobq/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestWorkerDispatchesFetchedJobs(t *testing.T) {
	var dispatched atomic.Int32
	fetched := make(chan struct{}, 10)
	fetcher := func(ctx context.Context) (*store.Job, error) {
		fetched <- struct{}{}
		return &store.Job{ID: "j1"}, nil
	}
	responder := func(ctx context.Context, job *store.Job) {
		dispatched.Add(1)
	}

	w := New(5*time.Millisecond, fetcher, responder, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	for i := 0; i < 3; i++ {
		select {
		case <-fetched:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fetch")
		}
	}
	cancel()
	<-w.Done()
	assert.True(t, dispatched.Load() > 0)
}

func TestWorkerRoutesFetcherErrorsWithoutStopping(t *testing.T) {
	var errCount atomic.Int32
	calls := make(chan struct{}, 10)
	fetcher := func(ctx context.Context) (*store.Job, error) {
		calls <- struct{}{}
		return nil, errors.New("boom")
	}
	w := New(2*time.Millisecond, fetcher, func(context.Context, *store.Job) {}, func(error) {
		errCount.Add(1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)

	for i := 0; i < 3; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fetch call")
		}
	}
	cancel()
	<-w.Done()
	assert.True(t, errCount.Load() > 0)
}

func TestWorkerStopIsIdempotentAndCancelsSleep(t *testing.T) {
	fetcher := func(ctx context.Context) (*store.Job, error) { return nil, nil }
	w := New(time.Hour, fetcher, func(context.Context, *store.Job) {}, nil)

	go w.Start(context.Background())
	time.Sleep(10 * time.Millisecond) // let it enter the long sleep

	start := time.Now()
	w.Stop()
	w.Stop() // idempotent

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the armed sleep")
	}
	assert.Less(t, time.Since(start), time.Second)
}

func TestWorkerNilJobReArmsWithoutDispatch(t *testing.T) {
	var dispatched atomic.Int32
	calls := make(chan struct{}, 10)
	fetcher := func(ctx context.Context) (*store.Job, error) {
		calls <- struct{}{}
		return nil, nil
	}
	w := New(2*time.Millisecond, fetcher, func(context.Context, *store.Job) {
		dispatched.Add(1)
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Start(ctx)
	for i := 0; i < 3; i++ {
		<-calls
	}
	cancel()
	<-w.Done()
	assert.Equal(t, int32(0), dispatched.Load())
}
