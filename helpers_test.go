package fetcher_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fetcher "github.com/probablyarth/fetcher-go"
)

var errBoom = errors.New("boom")

// req is the argument type used across tests. A non-nil gate blocks the
// operation until it is closed.
type req struct {
	id   int
	gate chan struct{}
	fail bool
}

func byID(r req) int { return r.id }

// stubOp counts invocations and resolves to "v<id>" unless r.fail is set.
type stubOp struct {
	calls atomic.Int32
}

func (s *stubOp) fn(ctx context.Context, r req) (string, error) {
	s.calls.Add(1)
	if r.gate != nil {
		<-r.gate
	}
	if r.fail {
		return "", errBoom
	}
	return fmt.Sprintf("v%d", r.id), nil
}

func (s *stubOp) waitCalls(t *testing.T, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return s.calls.Load() == n },
		time.Second, time.Millisecond, "expected %d invocations", n)
}

type fetchResult struct {
	v  string
	ok bool
}

// fetchAsync runs fetch on its own goroutine and delivers the outcome.
func fetchAsync(fetch func() (string, bool)) <-chan fetchResult {
	ch := make(chan fetchResult, 1)
	go func() {
		v, ok := fetch()
		ch <- fetchResult{v: v, ok: ok}
	}()
	return ch
}

func receive(t *testing.T, ch <-chan fetchResult) fetchResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("fetch did not return")
		return fetchResult{}
	}
}

// recorder is an Observer that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []fetcher.EventData
}

func (r *recorder) On(e fetcher.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(event fetcher.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (r *recorder) all() []fetcher.EventData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fetcher.EventData(nil), r.events...)
}

// panicObserver panics on every event.
type panicObserver struct{}

func (panicObserver) On(fetcher.EventData) { panic("observer") }
