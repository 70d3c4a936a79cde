// Package eventloop implements the single-threaded cooperative scheduler
// that runs every request continuation. All HTTP work happens on the
// worker pool; the event loop only ever runs user-visible callbacks and
// request state transitions, so no user callback can block a worker.
package eventloop

import "context"

// Loop is a FIFO queue of continuations drained by a single goroutine.
// Continuations observe FIFO order per originating request; there is no
// ordering guarantee across distinct requests, matching spec.md §4.5/§5.
type Loop struct {
	jobs chan func()
}

// New returns a Loop with the given pending-continuation buffer size. A
// buffer of 0 is valid — Post then blocks until Run is draining, which is
// fine for tests but undersized for production use.
func New(buffer int) *Loop {
	return &Loop{jobs: make(chan func(), buffer)}
}

// Post schedules fn to run on the loop goroutine. Safe to call from any
// goroutine, including from inside the worker pool when an HTTP exchange
// completes.
func (l *Loop) Post(fn func()) {
	l.jobs <- fn
}

// Run drains continuations until ctx is cancelled. The host is expected to
// run this in its own goroutine (or as the main goroutine of a dedicated
// "UI thread" analog) for the lifetime of the process.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.jobs:
			fn()
		}
	}
}

// ProcessEvents drains whatever is currently queued without blocking for
// more, mirroring the C++ original's poll-driven processEvents() used by
// hosts that pump their own event sources (stdin, GUI events) between
// turns rather than dedicating a goroutine to Run.
func (l *Loop) ProcessEvents() {
	for {
		select {
		case fn := <-l.jobs:
			fn()
		default:
			return
		}
	}
}
