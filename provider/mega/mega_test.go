package mega

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cloudstorage "github.com/cloudcore/cloudcore"
	"github.com/cloudcore/cloudcore/eventloop"
	"github.com/cloudcore/cloudcore/httpapi/fake"
	"github.com/cloudcore/cloudcore/pkg/log"
	"github.com/cloudcore/cloudcore/provider"
	"github.com/cloudcore/cloudcore/request"
	"github.com/cloudcore/cloudcore/workerpool"
)

func TestDeriveKeyIsDeterministic(t *testing.T) {
	a := DeriveKey("hunter2")
	b := DeriveKey("hunter2")
	c := DeriveKey("different")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func newTestProvider(t *testing.T) (*provider.Provider, *Session, *fake.Factory) {
	t.Helper()
	f := fake.New()
	loop := eventloop.New(64)
	pool := workerpool.New(4, 64)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Close()
	})
	session := &Session{id: "sess123"}
	return New(session, f, loop, pool, log.NopLogger{}), session, f
}

func await[T any](t *testing.T, r *request.Request[T]) (T, error) {
	t.Helper()
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	r.Then(func(v T, err error) { ch <- result{v, err} })
	select {
	case res := <-ch:
		return res.v, res.err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request completion")
		var zero T
		return zero, nil
	}
}

func TestGeneralData(t *testing.T) {
	p, _, f := newTestProvider(t)
	f.On(http.MethodPost, Endpoint+"?id=1&sid=sess123", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`[{"cstrg":500,"mstrg":2000}]`),
	})

	data, err := await(t, p.GeneralData(context.Background()))
	require.NoError(t, err)
	assert.EqualValues(t, 500, data.SpaceUsed)
	assert.EqualValues(t, 2000, data.SpaceTotal)
}

func TestListDirectoryParsesNodes(t *testing.T) {
	p, _, f := newTestProvider(t)

	f.On(http.MethodPost, Endpoint+"?id=1&sid=sess123", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"f":[{"h":"h1","p":"","t":1,"a":"Zm9sZGVy"},{"h":"h2","p":"h1","t":0,"s":42,"a":"ZmlsZS50eHQ"}]}`),
	})

	items, err := await(t, p.ListDirectory(context.Background(), cloudstorage.Item{ID: ""}))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "folder", items[0].Filename)
	assert.True(t, items[0].IsDirectory())
	assert.Equal(t, "file.txt", items[1].Filename)
	require.NotNil(t, items[1].Size)
	assert.EqualValues(t, 42, *items[1].Size)
}
