// Package request implements Request[T], the promise-like pipeline every
// provider verb is built from: it composes HTTP calls, automatic token
// refresh/retry, streaming I/O, cancellation and progress reporting behind
// a single abstraction, and schedules its continuations on an event loop
// while the HTTP itself runs on a worker pool.
package request

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	cloudstorage "github.com/cloudcore/cloudcore"
	"github.com/cloudcore/cloudcore/httpapi"
)

// Poster schedules a continuation to run on the event loop. eventloop.Loop
// satisfies this; tests may use an inline poster that runs fn immediately.
type Poster interface {
	Post(fn func())
}

// Submitter hands a blocking unit of work to the worker pool. workerpool.Pool
// satisfies this.
type Submitter interface {
	Submit(fn func())
}

type state int32

const (
	statePending state = iota
	stateRunning
	stateCompleted
	stateCancelled
)

// Request is a pending computation producing (T, error), exactly once. The
// terminal result is delivered to at most one consumer continuation,
// registered via Then; if Then is called after completion the stored
// result is delivered on the next event-loop turn instead of being lost.
type Request[T any] struct {
	loop   Poster
	pool   Submitter
	cancel context.CancelFunc
	ctx    context.Context

	once      sync.Once
	cancelled atomic.Bool
	st        atomic.Int32

	work func(*Request[T])

	mu        sync.Mutex
	completed bool
	value     T
	err       error
	cont      func(T, error)
	contSet   bool
}

// New allocates a Request bound to the given event loop and worker pool.
// work performs the computation; it receives the Request so it can call
// SendRequest and, eventually, Done.
func New[T any](ctx context.Context, loop Poster, pool Submitter, work func(*Request[T])) *Request[T] {
	ctx, cancel := context.WithCancel(ctx)
	return &Request[T]{
		loop:   loop,
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
		work:   work,
	}
}

// Run transitions the request from Pending to Running and invokes work on
// the event loop.
func (r *Request[T]) Run() *Request[T] {
	if !r.st.CompareAndSwap(int32(statePending), int32(stateRunning)) {
		return r
	}
	r.loop.Post(func() {
		if r.cancelled.Load() {
			r.Done(*new(T), &cloudstorage.Error{Code: cloudstorage.CodeAborted})
			return
		}
		r.work(r)
	})
	return r
}

// Cancel marks the request cancelled. If it has not yet reached a terminal
// state, the final callback fires exactly once with Error{CodeAborted}.
// Cancelling an already-terminal request is a no-op.
func (r *Request[T]) Cancel() {
	r.cancelled.Store(true)
	r.cancel()
	if state(r.st.Load()) == stateCompleted {
		return
	}
	r.Done(*new(T), &cloudstorage.Error{Code: cloudstorage.CodeAborted})
}

// Cancelled reports whether Cancel has been called, checked by SendRequest
// before starting each hop and by the event loop before each continuation.
func (r *Request[T]) Cancelled() bool { return r.cancelled.Load() }

// Context is the cancellation-bearing context threaded into every HTTP hop.
func (r *Request[T]) Context() context.Context { return r.ctx }

// Done performs the request's single terminal transition: the first call
// wins, subsequent calls (including from a cancellation race) are ignored,
// satisfying "exactly one terminal transition per request".
func (r *Request[T]) Done(value T, err error) {
	r.once.Do(func() {
		r.st.Store(int32(stateCompleted))

		r.mu.Lock()
		r.completed = true
		r.value, r.err = value, err
		cont, contSet := r.cont, r.contSet
		r.mu.Unlock()

		if contSet {
			r.loop.Post(func() {
				cont(value, err)
			})
		}
	})
}

// Then registers the request's single consumer continuation. If the
// request has already reached a terminal state, the stored result is
// delivered on the next event-loop turn instead. Calling Then a second
// time is a programming error in provider code and is ignored, since a
// terminal result is delivered to at most one continuation.
func (r *Request[T]) Then(continuation func(T, error)) {
	r.mu.Lock()
	if r.contSet {
		r.mu.Unlock()
		return
	}
	if r.completed {
		value, err := r.value, r.err
		r.mu.Unlock()
		r.loop.Post(func() {
			continuation(value, err)
		})
		return
	}
	r.cont = continuation
	r.contSet = true
	r.mu.Unlock()
}

// SendRequest performs one HTTP exchange: build constructs the outgoing
// request (writing any body into the io.Writer it is handed), the engine
// submits it to the worker pool, and handle runs on the event loop with
// the result. handle may itself call SendRequest to chain a dependent call
// (the getItemData fallback-to-folder pattern).
func (r *Request[T]) SendRequest(build func(io.Writer) httpapi.Request, handle func(*httpapi.Response, error)) {
	if r.cancelled.Load() {
		return
	}

	var buf writerBuffer
	httpReq := build(&buf)

	r.pool.Submit(func() {
		if r.cancelled.Load() {
			return
		}
		if buf.Len() > 0 {
			httpReq.Body(buf.Reader())
		}
		resp, err := httpReq.Send(r.ctx)
		r.loop.Post(func() {
			if r.cancelled.Load() {
				return
			}
			handle(resp, err)
		})
	})
}

// writerBuffer adapts an io.Writer used by provider build hooks into a
// replayable io.Reader for the eventual httpapi.Request body.
type writerBuffer struct {
	data []byte
}

func (w *writerBuffer) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *writerBuffer) Len() int { return len(w.data) }

func (w *writerBuffer) Reader() io.Reader {
	return &byteReader{data: w.data}
}

type byteReader struct {
	data []byte
	pos  int
}

func (b *byteReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
