package cloudfactory

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudcore/cloudcore/cloudfactory/store/jsonstore"
	"github.com/cloudcore/cloudcore/eventloop"
	"github.com/cloudcore/cloudcore/httpapi/fake"
	"github.com/cloudcore/cloudcore/pkg/log"
	"github.com/cloudcore/cloudcore/request"
	"github.com/cloudcore/cloudcore/workerpool"
)

func newTestFactory(t *testing.T, f *fake.Factory) *Factory {
	t.Helper()
	loop := eventloop.New(64)
	pool := workerpool.New(4, 64)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		pool.Close()
	})

	return New(InitData{
		RedirectURI: "http://127.0.0.1:0/callback",
		HTTP:        f,
		Loop:        loop,
		Pool:        pool,
		Logger:      log.NopLogger{},
		Store:       jsonstore.File{Path: filepath.Join(t.TempDir(), "accounts.json")},
		Providers: map[string]ProviderConfig{
			"box": {ClientID: "id", ClientSecret: "secret"},
		},
	})
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

func TestAuthorizationURLEmbedsStateAndClientID(t *testing.T) {
	f := fake.New()
	factory := newTestFactory(t, f)

	url, err := factory.AuthorizationURL("box")
	require.NoError(t, err)
	assert.Contains(t, url, "client_id=id")
	assert.Contains(t, url, "state=")
}

func TestCompleteAuthBuildsWorkingCloudAccess(t *testing.T) {
	f := fake.New()
	factory := newTestFactory(t, f)

	_, err := factory.AuthorizationURL("box")
	require.NoError(t, err)

	f.On(http.MethodPost, "https://api.box.com/oauth2/token", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`),
	})
	access, err := factory.CompleteAuth(context.Background(), "box", "authcode")
	require.NoError(t, err)

	f.On(http.MethodGet, "https://api.box.com/2.0/files/42", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"id":"42","name":"hello.txt","type":"file","size":5}`),
	})
	item, err := await(t, access.GetItem(context.Background(), "42"))
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", item.Filename)
}

func TestCloudAccessGeneralData(t *testing.T) {
	f := fake.New()
	factory := newTestFactory(t, f)

	_, err := factory.AuthorizationURL("box")
	require.NoError(t, err)
	f.On(http.MethodPost, "https://api.box.com/oauth2/token", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`),
	})
	access, err := factory.CompleteAuth(context.Background(), "box", "authcode")
	require.NoError(t, err)

	f.On(http.MethodGet, "https://api.box.com/2.0/users/me", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"login":"alice@example.com","space_amount":1000,"space_used":100}`),
	})
	data, err := await(t, access.GeneralData(context.Background()))
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", data.Username)
}

func TestDumpThenLoadRoundTripsRefreshToken(t *testing.T) {
	f := fake.New()
	factory := newTestFactory(t, f)

	_, err := factory.AuthorizationURL("box")
	require.NoError(t, err)
	f.On(http.MethodPost, "https://api.box.com/oauth2/token", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"access_token":"at","refresh_token":"rt","expires_in":3600}`),
	})
	_, err = factory.CompleteAuth(context.Background(), "box", "authcode")
	require.NoError(t, err)

	require.NoError(t, factory.Dump(context.Background()))

	restored := New(factory.data)
	require.NoError(t, restored.Load(context.Background()))

	f.On(http.MethodGet, "https://api.box.com/2.0/files/7", fake.Canned{
		Status: http.StatusOK,
		Body:   []byte(`{"id":"7","name":"restored.txt","type":"file","size":1}`),
	})
	access := restored.accounts["box"]
	require.NotNil(t, access)
	item, err := await(t, access.provider.GetItem(context.Background(), "7"))
	require.NoError(t, err)
	assert.Equal(t, "restored.txt", item.Filename)
}

func TestAnimeZoneAccessNeedsNoAccount(t *testing.T) {
	f := fake.New()
	factory := newTestFactory(t, f)
	access := factory.AnimeZoneAccess()
	assert.NotNil(t, access)

	_, err := access.DaemonURL(context.Background(), f, access.RootDirectory())
	assert.Error(t, err)
}
