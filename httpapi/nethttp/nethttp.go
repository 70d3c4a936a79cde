// Package nethttp is the production httpapi.Factory, wrapping *http.Client
// with the same transport tuning the teacher repo applies to every
// connector's outbound client.
package nethttp

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cloudcore/cloudcore/httpapi"
)

// Config mirrors the teacher's httpclient.NewHTTPClient parameters: a set
// of extra root CAs and whether to skip verification entirely.
type Config struct {
	RootCAs            []string
	InsecureSkipVerify bool
}

// New builds an httpapi.Factory backed by a tuned *http.Client.
func New(cfg Config) (httpapi.Factory, error) {
	client, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}
	return &factory{client: client}, nil
}

func newHTTPClient(cfg Config) (*http.Client, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		pool = x509.NewCertPool()
	}

	tlsConfig := &tls.Config{RootCAs: pool, InsecureSkipVerify: cfg.InsecureSkipVerify}
	for _, ca := range cfg.RootCAs {
		pemData, err := os.ReadFile(ca)
		if err != nil {
			return nil, fmt.Errorf("failed to read root-ca: %w", err)
		}
		if !tlsConfig.RootCAs.AppendCertsFromPEM(pemData) {
			return nil, fmt.Errorf("no certs found in root CA file %q", ca)
		}
	}

	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			Proxy:           http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}, nil
}

type factory struct {
	client *http.Client
}

func (f *factory) Create(rawURL, method string, followRedirects bool) httpapi.Request {
	client := f.client
	if !followRedirects {
		shallow := *f.client
		shallow.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &shallow
	}
	return &request{
		client: client,
		rawURL: rawURL,
		method: method,
		header: http.Header{},
		query:  url.Values{},
	}
}

type request struct {
	client *http.Client
	rawURL string
	method string
	header http.Header
	query  url.Values
	body   io.Reader
}

func (r *request) SetHeaderParameter(name, value string) {
	r.header.Set(name, value)
}

func (r *request) SetParameter(name, value string) {
	r.query.Set(name, value)
}

func (r *request) Body(body io.Reader) {
	r.body = body
}

func (r *request) Send(ctx context.Context) (*httpapi.Response, error) {
	full := httpapi.JoinQuery(r.rawURL, r.query)
	req, err := http.NewRequestWithContext(ctx, r.method, full, r.body)
	if err != nil {
		return nil, err
	}
	req.Header = r.header.Clone()

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	return &httpapi.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}
