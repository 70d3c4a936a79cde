// Package fake is an in-memory httpapi.Factory mapping (method, URL) pairs
// to canned responses, used throughout the module's tests instead of
// spinning up real servers for every provider exchange.
package fake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/cloudcore/cloudcore/httpapi"
)

// Canned is one scripted response. Handler, if set, takes priority over
// Body/Status and lets a test synthesize a response from the recorded
// request (e.g. pagination, echoing the posted body).
type Canned struct {
	Status  int
	Body    []byte
	Header  http.Header
	Handler func(*Recorded) (*httpapi.Response, error)
}

// Recorded captures what a Request actually sent, for assertions.
type Recorded struct {
	Method string
	URL    string
	Header http.Header
	Query  map[string]string
	Body   []byte
}

// Factory is a scriptable httpapi.Factory. Zero value is ready to use.
type Factory struct {
	mu        sync.Mutex
	responses map[string][]Canned
	Requests  []Recorded
}

// New returns an empty scriptable Factory.
func New() *Factory {
	return &Factory{responses: map[string][]Canned{}}
}

func key(method, url string) string { return method + " " + url }

// On queues the next response(s) returned for method+url, FIFO per key —
// successive calls to the same endpoint (e.g. paginated listing) pop in
// order.
func (f *Factory) On(method, url string, resp Canned) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(method, url)
	f.responses[k] = append(f.responses[k], resp)
}

// CallCount returns how many times method+url has been invoked.
func (f *Factory) CallCount(method, url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.Requests {
		if r.Method == method && r.URL == url {
			n++
		}
	}
	return n
}

func (f *Factory) Create(rawURL, method string, followRedirects bool) httpapi.Request {
	return &fakeRequest{
		factory: f,
		method:  method,
		rawURL:  rawURL,
		header:  http.Header{},
		query:   map[string]string{},
	}
}

type fakeRequest struct {
	factory *Factory
	method  string
	rawURL  string
	header  http.Header
	query   map[string]string
	body    io.Reader
}

func (r *fakeRequest) SetHeaderParameter(name, value string) { r.header.Set(name, value) }
func (r *fakeRequest) SetParameter(name, value string)        { r.query[name] = value }
func (r *fakeRequest) Body(body io.Reader)                    { r.body = body }

func (r *fakeRequest) Send(ctx context.Context) (*httpapi.Response, error) {
	var bodyBytes []byte
	if r.body != nil {
		var err error
		bodyBytes, err = io.ReadAll(r.body)
		if err != nil {
			return nil, err
		}
	}

	rec := Recorded{
		Method: r.method,
		URL:    r.rawURL,
		Header: r.header.Clone(),
		Query:  r.query,
		Body:   bodyBytes,
	}

	f := r.factory
	f.mu.Lock()
	f.Requests = append(f.Requests, rec)
	k := key(r.method, r.rawURL)
	queue := f.responses[k]
	var next Canned
	hasNext := len(queue) > 0
	if hasNext {
		next = queue[0]
		f.responses[k] = queue[1:]
	}
	f.mu.Unlock()

	if !hasNext {
		return nil, fmt.Errorf("fake: no response scripted for %s %s", r.method, r.rawURL)
	}
	if next.Handler != nil {
		return next.Handler(&rec)
	}

	header := next.Header
	if header == nil {
		header = http.Header{}
	}
	return &httpapi.Response{
		StatusCode: next.Status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(next.Body)),
	}, nil
}
