package auth

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/gorilla/mux"

	cloudstorage "github.com/cloudcore/cloudcore"
	"github.com/cloudcore/cloudcore/pkg/log"
)

// CodeReceived is invoked exactly once, with either the authorization code
// or the failure that kept one from arriving.
type CodeReceived func(code string, err error)

// Server is the local HTTP loopback server that captures the OAuth
// redirect. Dropping it (Close) tears the listener down; an Auth's
// RequestAuthorizationCode returns one bound to its RedirectURI.
type Server struct {
	httpSrv *http.Server
	logger  log.Logger

	// Addr is the actual bound address, including the OS-assigned port
	// when RedirectURI specifies port 0.
	Addr string

	callback atomic.Pointer[CodeReceived]
}

// RedirectPath extracts the path portion of a redirect URI: everything
// after the third '/', ported from Auth::redirect_uri_path's slash-
// counting loop rather than net/url, since the original semantics (count
// slashes rather than parse a URL) are what spec.md calls out as
// exact-byte load-bearing.
func RedirectPath(redirectURI string) string {
	const scheme = "http://"
	count := strings.Count(scheme, "/") + 1
	for i := 0; i < len(redirectURI); i++ {
		if redirectURI[i] == '/' {
			count--
		}
		if count == 0 {
			return redirectURI[i:]
		}
	}
	return ""
}

// RequestAuthorizationCode starts the loopback server bound to the host
// portion of a.cfg.RedirectURI, routed at RedirectPath(a.cfg.RedirectURI)
// and that path's "/login" child. complete fires exactly once.
func (a *Auth) RequestAuthorizationCode(complete CodeReceived) (*Server, error) {
	path := RedirectPath(a.cfg.RedirectURI)
	host, err := redirectHost(a.cfg.RedirectURI)
	if err != nil {
		return nil, err
	}

	s := &Server{logger: a.logger}
	s.callback.Store(&complete)

	router := mux.NewRouter()
	router.HandleFunc(path+"/login", s.handleLogin(a))
	router.HandleFunc(path, s.handleRedirect(a))
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, a, http.StatusNotFound, "not found")
	})

	s.httpSrv = &http.Server{Addr: host, Handler: router}

	listener, err := net.Listen("tcp", host)
	if err != nil {
		return nil, err
	}
	s.Addr = listener.Addr().String()
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf("auth redirect server: %v", err)
		}
	}()
	return s, nil
}

func redirectHost(redirectURI string) (string, error) {
	rest := strings.TrimPrefix(redirectURI, "http://")
	rest = strings.TrimPrefix(rest, "https://")
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", errors.New("auth: redirect URI has no host")
	}
	return rest, nil
}

// Close shuts down the loopback listener. Safe to call more than once.
func (s *Server) Close() error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(context.Background())
}

func (s *Server) handleLogin(a *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.checkState(w, a, r) {
			return
		}
		w.WriteHeader(http.StatusOK)
		a.cfg.Pages.Login.Execute(w, nil)
	}
}

// handleRedirect implements the full routing table from spec.md §4.2,
// ported from Auth::HttpServerCallback::handle: the state check precedes
// everything else, then accepted/code/error are examined in that order.
func (s *Server) handleRedirect(a *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.checkState(w, a, r) {
			return
		}

		q := r.URL.Query()
		accepted := q.Get("accepted")
		code := q.Get("code")
		errParam := q.Get("error")

		if accepted != "" {
			cbPtr := s.callback.Swap(nil)
			if cbPtr != nil {
				cb := *cbPtr
				if accepted == "true" && code != "" {
					cb(code, nil)
				} else {
					cb("", cloudstorage.Errorf(cloudstorage.CodeBad, "%s", errParam))
				}
			}
		}

		switch {
		case code != "":
			w.WriteHeader(http.StatusOK)
			a.cfg.Pages.Success.Execute(w, nil)
		case errParam != "":
			s.renderError(w, a, http.StatusUnauthorized, errParam)
		default:
			s.renderError(w, a, http.StatusNotFound, "not found")
		}
	}
}

// checkState enforces the CSRF check ahead of all other parameter
// handling: a mismatch renders the error page with 401 and never invokes
// the pending callback.
func (s *Server) checkState(w http.ResponseWriter, a *Auth, r *http.Request) bool {
	state := r.URL.Query().Get("state")
	if state == "" || state != a.state {
		s.renderError(w, a, http.StatusUnauthorized, "state mismatch")
		return false
	}
	return true
}

func (s *Server) renderError(w http.ResponseWriter, a *Auth, status int, message string) {
	w.WriteHeader(status)
	var buf bytes.Buffer
	a.cfg.Pages.Error.Execute(&buf, struct{ Message string }{message})
	w.Write(buf.Bytes())
}
