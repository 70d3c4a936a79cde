package box

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cloudstorage "github.com/cloudcore/cloudcore"
	"github.com/cloudcore/cloudcore/auth"
	"github.com/cloudcore/cloudcore/eventloop"
	"github.com/cloudcore/cloudcore/httpapi/fake"
	"github.com/cloudcore/cloudcore/pkg/log"
	"github.com/cloudcore/cloudcore/provider"
	"github.com/cloudcore/cloudcore/request"
	"github.com/cloudcore/cloudcore/workerpool"
)

func newTestProvider(t *testing.T) (*provider.Provider, *fake.Factory) {
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

	a := auth.New(AuthConfig("http://127.0.0.1:0/box"), f, log.NopLogger{})
	a.SetToken(&cloudstorage.Token{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600})

	return New(a, f, loop, pool, log.NopLogger{}), f
}

// await blocks for a Request's terminal result via Then, off the event
// loop goroutine, the way a synchronous test harness observes an
// otherwise-async Request[T].
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
	p, f := newTestProvider(t)

	f.On(http.MethodGet, Endpoint+"/2.0/users/me", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"login":"alice@example.com","space_amount":1000,"space_used":250}`),
	})

	data, err := await(t, p.GeneralData(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", data.Username)
	assert.EqualValues(t, 250, data.SpaceUsed)
	assert.EqualValues(t, 1000, data.SpaceTotal)
}

func TestGetItemDataFileHit(t *testing.T) {
	p, f := newTestProvider(t)

	f.On(http.MethodGet, Endpoint+"/2.0/files/42", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"type":"file","name":"report.pdf","id":"42","size":1024,"modified_at":"2016-01-02T03:04:05-08:00"}`),
	})

	item, err := await(t, p.GetItem(context.Background(), "42"))
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", item.Filename)
	assert.Equal(t, "42", item.ID)
	assert.False(t, item.IsDirectory())
	require.NotNil(t, item.Size)
	assert.EqualValues(t, 1024, *item.Size)
}

func TestGetItemDataFallsBackToFolder(t *testing.T) {
	p, f := newTestProvider(t)

	f.On(http.MethodGet, Endpoint+"/2.0/files/7", fake.Canned{Status: http.StatusNotFound, Body: []byte(`{}`)})
	f.On(http.MethodGet, Endpoint+"/2.0/folders/7", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"type":"folder","name":"Documents","id":"7"}`),
	})

	item, err := await(t, p.GetItem(context.Background(), "7"))
	require.NoError(t, err)
	assert.Equal(t, "Documents", item.Filename)
	assert.True(t, item.IsDirectory())
}

func TestListDirectoryFollowsPagination(t *testing.T) {
	p, f := newTestProvider(t)

	url := Endpoint + "/2.0/folders/0/items/"
	f.On(http.MethodGet, url, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"entries":[{"type":"file","name":"a","id":"1","size":1}],"offset":0,"limit":1,"total_count":2}`),
	})
	f.On(http.MethodGet, url, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"entries":[{"type":"file","name":"b","id":"2","size":1}],"offset":1,"limit":1,"total_count":2}`),
	})

	items, err := await(t, p.ListDirectory(context.Background(), cloudstorage.Item{ID: "0"}))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Filename)
	assert.Equal(t, "b", items[1].Filename)
	assert.Equal(t, 2, f.CallCount(http.MethodGet, url))
}

func TestGetItemDataRefreshesOnceOn401(t *testing.T) {
	p, f := newTestProvider(t)

	f.On(http.MethodGet, Endpoint+"/2.0/files/9", fake.Canned{Status: http.StatusUnauthorized, Body: []byte(`{}`)})
	f.On(http.MethodPost, Endpoint+"/oauth2/token", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"access_token":"at2","refresh_token":"rt2"}`),
	})
	f.On(http.MethodGet, Endpoint+"/2.0/files/9", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"type":"file","name":"x","id":"9","size":1}`),
	})

	item, err := await(t, p.GetItem(context.Background(), "9"))
	require.NoError(t, err)
	assert.Equal(t, "x", item.Filename)
	assert.Equal(t, 1, f.CallCount(http.MethodPost, Endpoint+"/oauth2/token"))
}

func TestCreateDirectory(t *testing.T) {
	p, f := newTestProvider(t)
	f.On(http.MethodPost, Endpoint+"/2.0/folders", fake.Canned{
		Status: http.StatusCreated,
		Body:   []byte(`{"type":"folder","name":"new","id":"99"}`),
	})

	item, err := await(t, p.CreateDirectory(context.Background(), cloudstorage.Item{ID: "0"}, "new"))
	require.NoError(t, err)
	assert.Equal(t, "99", item.ID)
}
