package googledrive

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
	cfg, _ := AuthConfig("id", "secret", "http://127.0.0.1:0/googledrive")
	a := auth.New(cfg, f, log.NopLogger{})
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
	url := Endpoint + "/about?fields=user%2CstorageQuota"
	f.On(http.MethodGet, url, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"user":{"emailAddress":"carol@example.com"},"storageQuota":{"limit":"1000","usage":"300"}}`),
	})

	data, err := await(t, p.GeneralData(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", data.Username)
	assert.EqualValues(t, 300, data.SpaceUsed)
	assert.EqualValues(t, 1000, data.SpaceTotal)
}

func TestGetItemDataParsesFolder(t *testing.T) {
	p, f := newTestProvider(t)
	url := Endpoint + "/files/abc?fields=id%2Cname%2CmimeType%2Csize%2CmodifiedTime"
	f.On(http.MethodGet, url, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"id":"abc","name":"Docs","mimeType":"application/vnd.google-apps.folder"}`),
	})

	item, err := await(t, p.GetItem(context.Background(), "abc"))
	require.NoError(t, err)
	assert.Equal(t, "Docs", item.Filename)
	assert.True(t, item.IsDirectory())
}

func TestListDirectoryFollowsNextPageToken(t *testing.T) {
	p, f := newTestProvider(t)
	listURL := Endpoint + "/files"
	f.On(http.MethodGet, listURL, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"files":[{"id":"1","name":"a","mimeType":"text/plain","size":"10"}],"nextPageToken":"tok2"}`),
	})
	f.On(http.MethodGet, listURL, fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"files":[{"id":"2","name":"b","mimeType":"text/plain","size":"20"}]}`),
	})

	items, err := await(t, p.ListDirectory(context.Background(), cloudstorage.Item{ID: "root"}))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].Filename)
	assert.Equal(t, "b", items[1].Filename)
}
