// Package workerpool is the fixed-size goroutine pool that performs
// blocking HTTP I/O on behalf of the request engine, generalizing the
// single named background goroutine the teacher repo starts for garbage
// collection (server.Server.startGarbageCollection) into N workers
// draining a shared job queue.
package workerpool

import (
	"context"
	"sync"
)

// Pool runs submitted jobs on a fixed number of worker goroutines.
type Pool struct {
	jobs chan func()
	wg   sync.WaitGroup
}

// New starts a Pool with the given worker count and job-queue depth.
func New(workers, queueDepth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{jobs: make(chan func(), queueDepth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for fn := range p.jobs {
		fn()
	}
}

// Submit enqueues fn to run on some worker goroutine. Submit blocks if the
// queue is full, providing natural backpressure on SendRequest callers.
func (p *Pool) Submit(fn func()) {
	p.jobs <- fn
}

// Close stops accepting new work and waits for in-flight jobs to finish.
// Jobs queued but not yet started still run to completion; callers that
// need immediate abort should cancel the context passed into the jobs
// themselves (httpapi.Request.Send honors ctx cancellation).
func (p *Pool) Close() {
	close(p.jobs)
	p.wg.Wait()
}

// Run is a context-aware convenience for hosts that want the pool's
// lifetime tied to a context cancellation (paired with eventloop.Loop.Run
// under github.com/oklog/run, as the teacher pairs its HTTP/gRPC/telemetry
// server actors).
func (p *Pool) Run(ctx context.Context) {
	<-ctx.Done()
	p.Close()
}
