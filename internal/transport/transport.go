// Package transport builds the HTTP clients used to talk to the video site and
// to the wiki. All clients share one tuned connection pool; each client gets its
// own cookie jar so session state never leaks between imports.
package transport

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// BrowserUserAgent is sent to the video site, which serves different markup to
// unknown agents.
const BrowserUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"

// DefaultTimeout bounds a single request when the caller does not set one.
const DefaultTimeout = 3 * time.Minute

var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 30 * time.Second,
	IdleConnTimeout:       90 * time.Second,
}

// CloseIdleConnections drops pooled connections. Called once on exit.
func CloseIdleConnections() {
	sharedTransport.CloseIdleConnections()
}

// headerTransport fills in default headers the caller did not set.
type headerTransport struct {
	base    http.RoundTripper
	headers http.Header
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	missing := false
	for key := range t.headers {
		if req.Header.Get(key) == "" {
			missing = true
			break
		}
	}
	if !missing {
		return t.base.RoundTrip(req)
	}
	// RoundTrippers must not modify the caller's request.
	out := req.Clone(req.Context())
	for key, values := range t.headers {
		if out.Header.Get(key) == "" && len(values) > 0 {
			out.Header.Set(key, values[0])
		}
	}
	return t.base.RoundTrip(out)
}

// Options configures NewClient.
type Options struct {
	Timeout time.Duration
	// Headers are applied to every request that does not already carry them.
	Headers http.Header
	// Retry enables transparent retries of transient failures. Nil disables
	// retries, which is what non-idempotent callers want.
	Retry *RetryConfig
	// Base overrides the shared pool, for tests.
	Base http.RoundTripper
}

// NewClient returns an http.Client with a private cookie jar.
func NewClient(opts Options) *http.Client {
	jar, _ := cookiejar.New(nil)
	var rt http.RoundTripper = sharedTransport
	if opts.Base != nil {
		rt = opts.Base
	}
	if len(opts.Headers) > 0 {
		rt = &headerTransport{base: rt, headers: opts.Headers.Clone()}
	}
	if opts.Retry != nil {
		rt = newRetryTransport(rt, *opts.Retry)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Jar:       jar,
		Transport: rt,
	}
}

// Streaming returns a copy of c without an overall deadline, for bodies that
// take longer to read than one request may. The jar and the transport are
// shared, so dial, TLS handshake and response header timeouts still apply.
func Streaming(c *http.Client) *http.Client {
	out := *c
	out.Timeout = 0
	return &out
}

// BrowserHeaders are the defaults used against the video site.
func BrowserHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", BrowserUserAgent)
	h.Set("Accept-Language", "en-us, en;q=0.50")
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return h
}
