// Package auth owns the OAuth 2.0 Authorization Code flow for a single
// provider: building the consent URL, running the loopback redirect
// server, exchanging/refreshing tokens, and serializing concurrent token
// refreshes so at most one refresh network call is ever in flight.
package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	cloudstorage "github.com/cloudcore/cloudcore"
	"github.com/cloudcore/cloudcore/httpapi"
	"github.com/cloudcore/cloudcore/pkg/cryptoutil"
	"github.com/cloudcore/cloudcore/pkg/log"
)

// Config is the static, provider-supplied shape of an OAuth dance: the two
// URL templates and client credentials spec.md says a new provider need
// only supply alongside its two JSON parsers.
type Config struct {
	ClientID         string
	ClientSecret     string
	RedirectURI      string
	AuthorizationURL string
	TokenURL         string
	Scope            string

	// ParseTokenResponse turns a token-endpoint response body into a
	// Token. Most providers share one JSON shape
	// (access_token/refresh_token/expires_in); a provider overrides this
	// only when its token endpoint differs (Box always returns -1 for
	// expires_in semantics handled upstream, Mega has no OAuth step at
	// all and never constructs an Auth).
	ParseTokenResponse func([]byte) (*cloudstorage.Token, error)

	Pages Pages
}

// Auth is the per-provider OAuth state machine: AuthState in spec.md's data
// model. One Auth is owned by exactly one CloudAccess for its lifetime.
type Auth struct {
	cfg    Config
	state  string
	http   httpapi.Factory
	logger log.Logger

	mu    sync.Mutex
	token *cloudstorage.Token

	refreshOnce sync.Mutex // held for the duration of a single refresh
}

// New constructs an Auth with a freshly generated CSRF state.
func New(cfg Config, httpFactory httpapi.Factory, logger log.Logger) *Auth {
	if cfg.ParseTokenResponse == nil {
		cfg.ParseTokenResponse = ParseStandardTokenResponse
	}
	if cfg.Pages.Login == nil {
		cfg.Pages = DefaultPages()
	}
	return &Auth{
		cfg:    cfg,
		state:  cryptoutil.NewState(),
		http:   httpFactory,
		logger: logger,
	}
}

// State returns the CSRF nonce embedded in the consent URL and checked on
// every redirect-server request.
func (a *Auth) State() string { return a.state }

// AuthorizeURL builds the provider's consent URL, embedding client_id,
// redirect_uri and the stored state — spec.md's authorizeLibraryUrl.
func (a *Auth) AuthorizeURL() string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", a.cfg.ClientID)
	q.Set("redirect_uri", a.cfg.RedirectURI)
	q.Set("state", a.state)
	if a.cfg.Scope != "" {
		q.Set("scope", a.cfg.Scope)
	}
	sep := "?"
	if strings.Contains(a.cfg.AuthorizationURL, "?") {
		sep = "&"
	}
	return a.cfg.AuthorizationURL + sep + q.Encode()
}

// Token returns the currently held token, or nil if none has been set yet.
func (a *Auth) Token() *cloudstorage.Token {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

// SetToken replaces the held token, e.g. after a successful exchange or
// refresh. It is the only way access_token is ever written, per spec.md's
// "the auth module is the only component that writes access_token".
func (a *Auth) SetToken(t *cloudstorage.Token) {
	a.mu.Lock()
	a.token = t
	a.mu.Unlock()
}

// FromTokenString rehydrates a Token from a persisted refresh token with
// ExpiresIn -1 ("unknown, assume expired on first 401").
func FromTokenString(refreshToken string) *cloudstorage.Token {
	return &cloudstorage.Token{RefreshToken: refreshToken, ExpiresIn: -1}
}

// AuthorizeRequest injects the bearer header onto an outgoing
// httpapi.Request using the currently held access token.
func (a *Auth) AuthorizeRequest(req httpapi.Request) {
	if t := a.Token(); t != nil && t.AccessToken != "" {
		req.SetHeaderParameter("Authorization", "Bearer "+t.AccessToken)
	}
}

// ExchangeAuthorizationCode performs the POST to the token endpoint with
// grant_type=authorization_code and stores the resulting Token.
func (a *Auth) ExchangeAuthorizationCode(ctx context.Context, code string) (*cloudstorage.Token, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"redirect_uri":  {a.cfg.RedirectURI},
	}
	tok, err := a.postForm(ctx, form)
	if err != nil {
		return nil, err
	}
	a.SetToken(tok)
	return tok, nil
}

// Refresh exchanges the held refresh token for a new access token. At most
// one refresh network call runs at a time per Auth: a caller that parks on
// refreshOnce while another refresh is in flight observes the token that
// refresh already installed and returns without ever calling postForm
// itself, matching the "exactly one refresh network call" invariant.
func (a *Auth) Refresh(ctx context.Context) (*cloudstorage.Token, error) {
	before := a.Token()

	a.refreshOnce.Lock()
	defer a.refreshOnce.Unlock()

	current := a.Token()
	if current == nil || current.RefreshToken == "" {
		return nil, cloudstorage.Errorf(cloudstorage.CodeInvalidCredentials, "no refresh token available")
	}
	if before != nil && current.AccessToken != before.AccessToken {
		return current, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {current.RefreshToken},
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"redirect_uri":  {a.cfg.RedirectURI},
	}
	tok, err := a.postForm(ctx, form)
	if err != nil {
		a.logger.Errorf("token refresh failed: %v", err)
		return nil, cloudstorage.Errorf(cloudstorage.CodeInvalidCredentials, "%v", err)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = current.RefreshToken
	}
	a.SetToken(tok)
	return tok, nil
}

func (a *Auth) postForm(ctx context.Context, form url.Values) (*cloudstorage.Token, error) {
	req := a.http.Create(a.cfg.TokenURL, http.MethodPost, true)
	req.SetHeaderParameter("Content-Type", "application/x-www-form-urlencoded")
	req.Body(strings.NewReader(form.Encode()))

	resp, err := req.Send(ctx)
	if err != nil {
		return nil, err
	}
	defer resp.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, cloudstorage.Errorf(cloudstorage.FromHTTPStatus(resp.StatusCode), "token endpoint: %s", string(body))
	}
	return a.cfg.ParseTokenResponse(body)
}

// ParseStandardTokenResponse decodes the near-universal OAuth2 JSON token
// response shape. ExpiresIn is forced to -1 when absent from the payload,
// matching Box's behavior of never trusting a server-reported lifetime
// (src/CloudProvider/Box.cpp's Token{..., -1}).
func ParseStandardTokenResponse(body []byte) (*cloudstorage.Token, error) {
	var payload struct {
		AccessToken  string      `json:"access_token"`
		RefreshToken string      `json:"refresh_token"`
		ExpiresIn    interface{} `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "parse token response: %v", err)
	}
	if payload.AccessToken == "" {
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "token response missing access_token: %s", string(body))
	}

	expires := -1
	switch v := payload.ExpiresIn.(type) {
	case float64:
		expires = int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			expires = n
		}
	}

	return &cloudstorage.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresIn:    expires,
	}, nil
}
