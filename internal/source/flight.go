package source

import (
	"context"
	"sync"
)

// flightGroup collapses concurrent fetches of one key into a single call.
//
// Unlike x/sync/singleflight the shared call is owned by all of its waiters:
// it runs on a context detached from any one caller and is cancelled only
// once every waiter has gone.
type flightGroup struct {
	mu    sync.Mutex
	calls map[Key]*flight
}

type flight struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int
	entry   *Entry
	err     error
}

func newFlightGroup() *flightGroup {
	return &flightGroup{calls: make(map[Key]*flight)}
}

// Do runs fn once for key among all concurrent callers. shared reports
// whether the caller joined a call that was already in flight.
func (g *flightGroup) Do(ctx context.Context, key Key, fn func(context.Context) (*Entry, error)) (entry *Entry, shared bool, err error) {
	g.mu.Lock()
	f, shared := g.calls[key]
	if !shared {
		workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{done: make(chan struct{}), cancel: cancel}
		g.calls[key] = f
		go g.run(workCtx, key, f, fn)
	}
	f.waiters++
	g.mu.Unlock()

	select {
	case <-f.done:
		return f.entry, shared, f.err
	case <-ctx.Done():
		g.leave(key, f)
		return nil, shared, ctx.Err()
	}
}

func (g *flightGroup) run(ctx context.Context, key Key, f *flight, fn func(context.Context) (*Entry, error)) {
	f.entry, f.err = fn(ctx)

	g.mu.Lock()
	if g.calls[key] == f {
		delete(g.calls, key)
	}
	g.mu.Unlock()

	f.cancel()
	close(f.done)
}

// leave drops a waiter and cancels the call when none remain. An abandoned
// call is forgotten at once so later callers start afresh.
func (g *flightGroup) leave(key Key, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if g.calls[key] == f {
		delete(g.calls, key)
	}
}

// inFlight returns the number of calls currently running and the callers
// waiting on them.
func (g *flightGroup) inFlight() (calls, waiters int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, f := range g.calls {
		waiters += f.waiters
	}
	return len(g.calls), waiters
}
