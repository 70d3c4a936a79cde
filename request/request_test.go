package request

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cloudstorage "github.com/cloudcore/cloudcore"
	"github.com/cloudcore/cloudcore/httpapi"
	"github.com/cloudcore/cloudcore/httpapi/fake"
)

// inlineLoop runs posted continuations synchronously, which is enough to
// exercise the engine's invariants without pulling in the real eventloop
// package (request must not depend on its own consumers).
type inlineLoop struct{}

func (inlineLoop) Post(fn func()) { fn() }

// inlinePool runs submitted work synchronously on the calling goroutine.
type inlinePool struct{}

func (inlinePool) Submit(fn func()) { fn() }

// goroutinePool actually hands off to a new goroutine, for tests that
// exercise genuine concurrency (the refresh-storm / cancel-race cases).
type goroutinePool struct{}

func (goroutinePool) Submit(fn func()) { go fn() }

func TestRequestDoneExactlyOnce(t *testing.T) {
	var calls int32
	req := New[int](context.Background(), inlineLoop{}, inlinePool{}, func(r *Request[int]) {
		r.Done(1, nil)
		r.Done(2, nil) // second call must be ignored
	})

	req.Then(func(v int, err error) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, 1, v)
		assert.NoError(t, err)
	})
	req.Run()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRequestThenAfterCompletionStillDelivers(t *testing.T) {
	req := New[string](context.Background(), inlineLoop{}, inlinePool{}, func(r *Request[string]) {
		r.Done("ok", nil)
	})
	req.Run()

	var got string
	req.Then(func(v string, err error) {
		got = v
	})
	assert.Equal(t, "ok", got)
}

func TestRequestCancelBeforeDoneYieldsAborted(t *testing.T) {
	started := make(chan struct{})
	block := make(chan struct{})

	req := New[int](context.Background(), inlineLoop{}, goroutinePool{}, func(r *Request[int]) {
		close(started)
		<-block // simulates a stalled HTTP hop
		if r.Cancelled() {
			return
		}
		r.Done(7, nil)
	})

	var mu sync.Mutex
	var gotErr error
	var gotCalls int
	req.Then(func(v int, err error) {
		mu.Lock()
		defer mu.Unlock()
		gotErr = err
		gotCalls++
	})
	go req.Run()

	<-started
	req.Cancel()
	close(block)

	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Error(t, gotErr)
	cerr, ok := gotErr.(*cloudstorage.Error)
	require.True(t, ok)
	assert.Equal(t, cloudstorage.CodeAborted, cerr.Code)
	assert.Equal(t, 1, gotCalls)
}

func TestRequestCancelAfterDoneIsIgnored(t *testing.T) {
	req := New[int](context.Background(), inlineLoop{}, inlinePool{}, func(r *Request[int]) {
		r.Done(42, nil)
	})

	var got int
	var gotErr error
	req.Then(func(v int, err error) {
		got = v
		gotErr = err
	})
	req.Run()

	req.Cancel() // must not override the already-delivered result

	assert.Equal(t, 42, got)
	assert.NoError(t, gotErr)
}

func TestSendRequestChaining(t *testing.T) {
	f := fake.New()
	f.On("GET", "https://example.test/files/1", fake.Canned{Status: 404, Body: []byte("nope")})
	f.On("GET", "https://example.test/folders/1", fake.Canned{Status: 200, Body: []byte(`{"name":"root"}`)})

	req := New[string](context.Background(), inlineLoop{}, inlinePool{}, func(r *Request[string]) {
		r.SendRequest(func(io.Writer) httpapi.Request {
			return f.Create("https://example.test/files/1", "GET", true)
		}, func(resp *httpapi.Response, err error) {
			if resp != nil && resp.StatusCode == 404 {
				r.SendRequest(func(io.Writer) httpapi.Request {
					return f.Create("https://example.test/folders/1", "GET", true)
				}, func(resp2 *httpapi.Response, err2 error) {
					r.Done("folder", nil)
				})
				return
			}
			r.Done("file", nil)
		})
	})

	var got string
	req.Then(func(v string, err error) {
		got = v
	})
	req.Run()

	assert.Equal(t, "folder", got)
	assert.Equal(t, 1, f.CallCount("GET", "https://example.test/files/1"))
	assert.Equal(t, 1, f.CallCount("GET", "https://example.test/folders/1"))
}
