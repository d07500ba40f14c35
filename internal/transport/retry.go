package transport

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/lvcoi/youtube2mediawiki/internal/log"
)

// RetryConfig bounds how often and how patiently a request is repeated.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetry is used for read-only requests to the video site.
var DefaultRetry = RetryConfig{
	MaxRetries:   3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     8 * time.Second,
}

type retryTransport struct {
	next http.RoundTripper
	cfg  RetryConfig
}

func newRetryTransport(next http.RoundTripper, cfg RetryConfig) *retryTransport {
	return &retryTransport{next: next, cfg: cfg}
}

// RoundTrip sends req until it gets an answer worth keeping. When every attempt
// fails transiently the last response, or else the last error, is returned.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	for attempt := 1; attempt <= t.cfg.MaxRetries && transient(resp, err); attempt++ {
		wait := t.delay(attempt)
		log.WithField("url", req.URL.Redacted()).Debugf("retry %d in %s", attempt, wait)

		again, cloneErr := replay(req)
		if cloneErr != nil {
			return resp, err
		}
		if sleepErr := pause(req.Context(), wait); sleepErr != nil {
			discard(resp)
			return nil, sleepErr
		}
		discard(resp)
		resp, err = t.next.RoundTrip(again)
	}
	if transient(resp, err) && t.cfg.MaxRetries > 0 {
		log.Warnf("giving up on %s after %d retries", req.URL.Redacted(), t.cfg.MaxRetries)
	}
	return resp, err
}

// delay doubles from InitialDelay up to MaxDelay and spreads the result by a
// quarter either way.
func (t *retryTransport) delay(attempt int) time.Duration {
	d := t.cfg.InitialDelay << (attempt - 1)
	if d <= 0 || d > t.cfg.MaxDelay {
		d = t.cfg.MaxDelay
	}
	spread := float64(d) / 4
	return d + time.Duration(spread*(2*rand.Float64()-1)) //nolint:gosec
}

func transient(resp *http.Response, err error) bool {
	if err != nil {
		return isRetryableError(err)
	}
	return isRetryableStatus(resp.StatusCode)
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 504 && code != http.StatusNotImplemented)
}

func isRetryableError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// replay copies req for another attempt. A body without GetBody cannot be sent
// twice.
func replay(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, nil
	}
	if req.GetBody == nil {
		return nil, errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	out.Body = body
	return out, nil
}

func discard(resp *http.Response) {
	if resp != nil {
		resp.Body.Close()
	}
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
