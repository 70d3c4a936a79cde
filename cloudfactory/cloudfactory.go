// Package cloudfactory ties the provider implementations, the auth
// loopback server and a Store together into the single entry point an
// application embeds, mirroring CloudFactory's role in
// examples/promise/main.cpp: pick a provider by name, drive it through its
// authorization flow, and hand back a ready-to-use handle with every verb
// attached.
package cloudfactory

import (
	"context"
	"sort"
	"sync"

	cloudstorage "github.com/cloudcore/cloudcore"
	"github.com/cloudcore/cloudcore/auth"
	"github.com/cloudcore/cloudcore/httpapi"
	"github.com/cloudcore/cloudcore/pkg/cryptoutil"
	"github.com/cloudcore/cloudcore/pkg/log"
	"github.com/cloudcore/cloudcore/provider"
	"github.com/cloudcore/cloudcore/provider/animezone"
	"github.com/cloudcore/cloudcore/provider/box"
	"github.com/cloudcore/cloudcore/provider/googledrive"
	"github.com/cloudcore/cloudcore/provider/mega"
	"github.com/cloudcore/cloudcore/provider/yandexdisk"
	"github.com/cloudcore/cloudcore/request"
)

// ProviderConfig carries the client credentials an OAuth provider needs to
// build its auth.Config. Providers that need no credentials (AnimeZone) or
// that authenticate out of band (Mega) ignore this.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
}

// InitData bundles the shared plumbing every provider is built from, the
// same role CloudFactory::InitData plays in examples/promise/main.cpp:
// base_url_/http_/http_server_factory_/crypto_/thread_pool_ become
// RedirectURI/HTTP/Logger/Pool/Loop here.
type InitData struct {
	// RedirectURI is the loopback callback every provider's AuthConfig is
	// built with, CloudFactory::InitData's base_url_.
	RedirectURI string
	HTTP        httpapi.Factory
	Loop        request.Poster
	Pool        request.Submitter
	Logger      log.Logger
	// Store persists refresh tokens across restarts. A nil Store makes
	// Load/Dump no-ops, leaving accounts in-memory only.
	Store Store

	// Providers carries per-provider OAuth client credentials, keyed by
	// provider name ("box", "yandexdisk", "googledrive").
	Providers map[string]ProviderConfig
}

// account is one authenticated provider instance, tracked so Dump can read
// its current refresh token back out.
type account struct {
	auth     *auth.Auth
	provider *provider.Provider
	pkce     *cryptoutil.PKCE
}

// Factory is the running set of authenticated cloud accounts, analogous to
// CloudFactory itself: AvailableProviders/AuthorizationURL/Load/Dump plus a
// way to reach each account's CloudAccess.
type Factory struct {
	data InitData

	mu       sync.Mutex
	accounts map[string]*account
	mega     map[string]*mega.Session
}

// New builds a Factory from InitData. Nothing is authenticated yet; call
// AuthorizationURL then CompleteAuth (OAuth providers) or AddMegaSession
// (Mega) to bring an account online.
func New(data InitData) *Factory {
	return &Factory{data: data, accounts: map[string]*account{}, mega: map[string]*mega.Session{}}
}

// AvailableProviders lists every provider name this Factory knows how to
// build, sorted for stable output — CloudFactory::availableProviders().
func AvailableProviders() []string {
	names := []string{"box", "yandexdisk", "googledrive", "mega", "animezone"}
	sort.Strings(names)
	return names
}

// AuthorizationURL returns the URL an OAuth provider's login page should
// redirect a user to, building a fresh auth.Auth for the account the way
// CloudFactory::authorizationUrl() does, and remembers it under name so a
// later CompleteAuth call can finish the flow. It panics if name isn't an
// OAuth provider (Mega, AnimeZone have no authorization URL) — callers are
// expected to check AvailableProviders.
func (f *Factory) AuthorizationURL(name string) (string, error) {
	cfg := f.data.Providers[name]
	var authCfg auth.Config
	var pkce *cryptoutil.PKCE

	switch name {
	case "box":
		authCfg = box.AuthConfig(f.data.RedirectURI)
	case "yandexdisk":
		authCfg = yandexdisk.AuthConfig(cfg.ClientID, cfg.ClientSecret, f.data.RedirectURI)
	case "googledrive":
		authCfg, pkce = googledrive.AuthConfig(cfg.ClientID, cfg.ClientSecret, f.data.RedirectURI)
	default:
		return "", cloudstorage.Errorf(cloudstorage.CodeFailure, "cloudfactory: %s has no authorization URL", name)
	}

	a := auth.New(authCfg, f.data.HTTP, f.data.Logger)
	url := a.AuthorizeURL()
	if pkce != nil {
		url += "&code_challenge=" + pkce.Challenge + "&code_challenge_method=" + pkce.Method
	}

	f.mu.Lock()
	f.accounts[name] = &account{auth: a, pkce: pkce}
	f.mu.Unlock()
	return url, nil
}

// CompleteAuth exchanges an authorization code delivered to the loopback
// server for a token, and builds the provider's CloudAccess. name must have
// an in-flight AuthorizationURL call pending.
func (f *Factory) CompleteAuth(ctx context.Context, name, code string) (*CloudAccess, error) {
	f.mu.Lock()
	acc, ok := f.accounts[name]
	f.mu.Unlock()
	if !ok {
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "cloudfactory: no pending authorization for %s", name)
	}
	if _, err := acc.auth.ExchangeAuthorizationCode(ctx, code); err != nil {
		return nil, err
	}
	p, err := f.buildProvider(name, acc.auth)
	if err != nil {
		return nil, err
	}
	acc.provider = p
	return &CloudAccess{provider: p}, nil
}

// RestoreAccount rebuilds a CloudAccess for name from a previously-saved
// refresh token, skipping the authorization-code exchange, the way Load()
// rehydrates every account CloudFactory::dump() had persisted.
func (f *Factory) RestoreAccount(name, refreshToken string) (*CloudAccess, error) {
	a := auth.New(auth.Config{}, f.data.HTTP, f.data.Logger)
	a.SetToken(auth.FromTokenString(refreshToken))
	p, err := f.buildProvider(name, a)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.accounts[name] = &account{auth: a, provider: p}
	f.mu.Unlock()
	return &CloudAccess{provider: p}, nil
}

// AddMegaSession registers an already-logged-in Mega session (Mega has no
// OAuth step, see provider/mega) and returns its CloudAccess.
func (f *Factory) AddMegaSession(name string, session *mega.Session) *CloudAccess {
	p := mega.New(session, f.data.HTTP, f.data.Loop, f.data.Pool, f.data.Logger)
	f.mu.Lock()
	f.mega[name] = session
	f.accounts[name] = &account{provider: p}
	f.mu.Unlock()
	return &CloudAccess{provider: p}
}

// AnimeZoneAccess returns a CloudAccess for AnimeZone, which needs no
// account at all.
func (f *Factory) AnimeZoneAccess() *CloudAccess {
	p := animezone.New(f.data.HTTP, f.data.Loop, f.data.Pool, f.data.Logger)
	return &CloudAccess{provider: p}
}

func (f *Factory) buildProvider(name string, a *auth.Auth) (*provider.Provider, error) {
	switch name {
	case "box":
		return box.New(a, f.data.HTTP, f.data.Loop, f.data.Pool, f.data.Logger), nil
	case "yandexdisk":
		return yandexdisk.New(a, f.data.HTTP, f.data.Loop, f.data.Pool, f.data.Logger), nil
	case "googledrive":
		return googledrive.New(a, f.data.HTTP, f.data.Loop, f.data.Pool, f.data.Logger), nil
	default:
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "cloudfactory: unknown provider %s", name)
	}
}

// Load rehydrates every account the Store knows about, calling
// RestoreAccount for each one. Mega and AnimeZone accounts are never
// persisted this way (Mega sessions expire with login, AnimeZone has no
// account) and must be re-added explicitly.
func (f *Factory) Load(ctx context.Context) error {
	if f.data.Store == nil {
		return nil
	}
	accounts, err := f.data.Store.Load(ctx)
	if err != nil {
		return err
	}
	for name, token := range accounts {
		if _, err := f.RestoreAccount(name, token); err != nil {
			return err
		}
	}
	return nil
}

// Dump persists every OAuth account's current refresh token to the Store.
func (f *Factory) Dump(ctx context.Context) error {
	if f.data.Store == nil {
		return nil
	}
	f.mu.Lock()
	accounts := make(map[string]string, len(f.accounts))
	for name, acc := range f.accounts {
		if acc.auth == nil {
			continue
		}
		if t := acc.auth.Token(); t != nil {
			accounts[name] = t.RefreshToken
		}
	}
	f.mu.Unlock()
	return f.data.Store.Save(ctx, accounts)
}

// Remove drops an account from the Factory (and from the next Dump), the
// OnCloudRemoved half of CloudFactory's lifecycle hooks.
func (f *Factory) Remove(name string) {
	f.mu.Lock()
	delete(f.accounts, name)
	delete(f.mega, name)
	f.mu.Unlock()
}

// CloudAccess is a single authenticated account's verb surface, the handle
// examples/promise/main.cpp calls d->getItem/d->listDirectory/... on.
type CloudAccess struct {
	provider *provider.Provider
}

func (c *CloudAccess) RootDirectory() cloudstorage.Item { return c.provider.RootDirectory() }

// GeneralData reports the authorized account's username and storage
// quota (spec.md's generalData verb; examples/promise/main.cpp calls it
// on the google account to log username/space_used/space_total).
func (c *CloudAccess) GeneralData(ctx context.Context) *request.Request[cloudstorage.GeneralData] {
	return c.provider.GeneralData(ctx)
}

func (c *CloudAccess) GetItem(ctx context.Context, id string) *request.Request[cloudstorage.Item] {
	return c.provider.GetItem(ctx, id)
}

func (c *CloudAccess) ListDirectory(ctx context.Context, dir cloudstorage.Item) *request.Request[[]cloudstorage.Item] {
	return c.provider.ListDirectory(ctx, dir)
}

func (c *CloudAccess) DownloadFile(ctx context.Context, item cloudstorage.Item, sink request.Sink) *request.Request[struct{}] {
	return c.provider.DownloadFile(ctx, item, sink)
}

func (c *CloudAccess) GetThumbnail(ctx context.Context, item cloudstorage.Item, sink request.Sink) *request.Request[struct{}] {
	return c.provider.GetThumbnail(ctx, item, sink)
}

func (c *CloudAccess) UploadFile(ctx context.Context, dir cloudstorage.Item, filename string, source request.Source) *request.Request[cloudstorage.Item] {
	return c.provider.UploadFile(ctx, dir, filename, source)
}

func (c *CloudAccess) CreateDirectory(ctx context.Context, parent cloudstorage.Item, name string) *request.Request[cloudstorage.Item] {
	return c.provider.CreateDirectory(ctx, parent, name)
}

func (c *CloudAccess) DeleteItem(ctx context.Context, item cloudstorage.Item) *request.Request[struct{}] {
	return c.provider.DeleteItem(ctx, item)
}

func (c *CloudAccess) MoveItem(ctx context.Context, source, destination cloudstorage.Item) *request.Request[cloudstorage.Item] {
	return c.provider.MoveItem(ctx, source, destination)
}

func (c *CloudAccess) RenameItem(ctx context.Context, item cloudstorage.Item, name string) *request.Request[cloudstorage.Item] {
	return c.provider.RenameItem(ctx, item, name)
}

func (c *CloudAccess) GetItemURL(item cloudstorage.Item) (string, bool) { return c.provider.GetItemURL(item) }

// DaemonURL resolves AnimeZone's playable-video link for item. It returns
// an error for every other provider, since getDaemonUrl has no analogue
// elsewhere (see provider/animezone).
func (c *CloudAccess) DaemonURL(ctx context.Context, httpFactory httpapi.Factory, item cloudstorage.Item) (string, error) {
	if c.provider.Name != "animezone" {
		return "", cloudstorage.Errorf(cloudstorage.CodeFailure, "cloudfactory: %s has no daemon URL", c.provider.Name)
	}
	return animezone.DaemonURL(ctx, httpFactory, item)
}
