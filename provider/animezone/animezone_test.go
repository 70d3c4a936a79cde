package animezone

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
	"github.com/cloudcore/cloudcore/request"
	"github.com/cloudcore/cloudcore/workerpool"
)

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

func TestListDirectoryParsesAnchorsIntoItems(t *testing.T) {
	f := fake.New()
	loop := eventloop.New(64)
	pool := workerpool.New(4, 64)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	defer cancel()
	defer pool.Close()

	p := New(f, loop, pool, log.NopLogger{})

	f.On(http.MethodGet, Endpoint+"/Anime", fake.Canned{
		Status: http.StatusOK,
		Body: []byte(`<html><body>
			<a href="/Anime/Death Note/">Death Note</a>
			<a href="/Anime/D/ep1.mp4">Episode 1</a>
		</body></html>`),
	})

	items, err := await(t, p.ListDirectory(context.Background(), cloudstorage.Item{ID: "/Anime"}))
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.True(t, items[0].IsDirectory())
	assert.Equal(t, cloudstorage.Video, items[1].Type)
}

func TestGeneralDataHasNoAccount(t *testing.T) {
	f := fake.New()
	loop := eventloop.New(64)
	pool := workerpool.New(4, 64)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	defer cancel()
	defer pool.Close()

	p := New(f, loop, pool, log.NopLogger{})

	_, err := await(t, p.GeneralData(context.Background()))
	require.Error(t, err)
}

func TestDaemonURLFindsSourceSrc(t *testing.T) {
	f := fake.New()
	f.On(http.MethodGet, Endpoint+"/Anime/D/ep1.mp4", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`<html><body><video><source src="https://openload.co/embed/abc123"/></video></body></html>`),
	})

	url, err := DaemonURL(context.Background(), f, cloudstorage.Item{ID: "/Anime/D/ep1.mp4"})
	require.NoError(t, err)
	assert.Equal(t, "https://openload.co/embed/abc123", url)
}
