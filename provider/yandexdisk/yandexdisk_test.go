package yandexdisk

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
	a := auth.New(AuthConfig("id", "secret", "http://127.0.0.1:0/yandexdisk"), f, log.NopLogger{})
	a.SetToken(&cloudstorage.Token{AccessToken: "at", RefreshToken: "rt", ExpiresIn: 3600})
	return New(a, f, loop, pool, log.NopLogger{}), f
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
	p, f := newTestProvider(t)
	f.On(http.MethodGet, Endpoint, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"total_space":1000,"used_space":400,"user":{"login":"bob"}}`),
	})

	data, err := await(t, p.GeneralData(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "bob", data.Username)
	assert.EqualValues(t, 400, data.SpaceUsed)
	assert.EqualValues(t, 1000, data.SpaceTotal)
}

func TestGetItemDataUsesPath(t *testing.T) {
	p, f := newTestProvider(t)
	url := Endpoint + "/resources?path=%2Fphotos"
	f.On(http.MethodGet, url, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"type":"dir","name":"photos","path":"/photos"}`),
	})

	item, err := await(t, p.GetItem(context.Background(), "/photos"))
	require.NoError(t, err)
	assert.Equal(t, "photos", item.Filename)
	assert.True(t, item.IsDirectory())
}

func TestListDirectoryPaginatesByOffset(t *testing.T) {
	p, f := newTestProvider(t)
	listURL := Endpoint + "/resources"
	f.On(http.MethodGet, listURL, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"_embedded":{"items":[{"type":"file","name":"a.txt","path":"/a.txt","size":10}],"limit":1,"offset":0,"total":2}}`),
	})
	f.On(http.MethodGet, listURL, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"_embedded":{"items":[{"type":"file","name":"b.txt","path":"/b.txt","size":10}],"limit":1,"offset":1,"total":2}}`),
	})

	items, err := await(t, p.ListDirectory(context.Background(), cloudstorage.Item{ID: "/"}))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a.txt", items[0].Filename)
	assert.Equal(t, "b.txt", items[1].Filename)
}

func TestDeleteItemUsesPermanentDelete(t *testing.T) {
	p, f := newTestProvider(t)
	url := Endpoint + "/resources?path=%2Fa.txt&permanently=true"
	f.On(http.MethodDelete, url, fake.Canned{Status: http.StatusNoContent, Body: nil})

	_, err := await(t, p.DeleteItem(context.Background(), cloudstorage.Item{ID: "/a.txt"}))
	require.NoError(t, err)
	assert.Equal(t, 1, f.CallCount(http.MethodDelete, url))
}
