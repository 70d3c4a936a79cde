// Package httpapi is the HTTP capability interface injected into every
// provider: the core never constructs transport itself, which keeps the
// module transport-agnostic and testable via the in-memory fake in
// httpapi/fake.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Factory creates Requests. A Factory is handed to every provider at
// construction time; providers never reach for net/http directly.
type Factory interface {
	Create(rawURL, method string, followRedirects bool) Request
}

// Request is a single HTTP call under construction. Header and query
// parameters and the outgoing body are set before Send is called.
type Request interface {
	SetHeaderParameter(name, value string)
	SetParameter(name, value string)
	// Body sets the outgoing request body. Providers that stream an
	// upload pass a reader backed by a request.Source; Send consumes it
	// exactly once.
	Body(io.Reader)
	Send(ctx context.Context) (*Response, error)
}

// Response is the result of a completed HTTP exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Close is a convenience for callers that only inspect Header/StatusCode.
func (r *Response) Close() error {
	if r == nil || r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// IsClientError reports whether the response status is a 4xx.
func (r *Response) IsClientError() bool {
	return r.StatusCode >= 400 && r.StatusCode < 500
}

// JoinQuery appends query parameters already set on a raw URL, used by
// Factory implementations that build the final *url.URL lazily.
func JoinQuery(rawURL string, query url.Values) string {
	if len(query) == 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
