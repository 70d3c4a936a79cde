package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoopRunProcessesPostedWork(t *testing.T) {
	loop := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)

	var n int32
	done := make(chan struct{})
	loop.Post(func() {
		atomic.AddInt32(&n, 1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for posted work")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&n))
}

func TestLoopFIFOPerPoster(t *testing.T) {
	loop := New(8)
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		loop.Post(func() { order = append(order, i) })
	}
	loop.ProcessEvents()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestProcessEventsDoesNotBlockWhenEmpty(t *testing.T) {
	loop := New(1)
	done := make(chan struct{})
	go func() {
		loop.ProcessEvents()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ProcessEvents blocked on an empty loop")
	}
}
