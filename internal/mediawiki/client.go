// Package mediawiki talks to the MediaWiki action API: session login, edit
// tokens, page edits and the chunked file upload protocol.
package mediawiki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"slices"
	"time"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
	"github.com/lvcoi/youtube2mediawiki/internal/transport"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Fields are the form fields of one API call, besides action and format.
type Fields map[string]string

// File is a binary form part.
type File struct {
	Field string
	Name  string
	Data  []byte
}

// maxErrorBody caps how much of a failed response body is kept for diagnostics.
const maxErrorBody = 4096

// Client is a session against one wiki. Login state lives in its cookie jar, so
// a Client must not be shared between imports.
type Client struct {
	apiURL    string
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. The client should carry a cookie jar.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit paces API calls. A nil limiter disables pacing.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a client for the API endpoint at apiURL.
func New(apiURL string, opts ...Option) *Client {
	c := &Client{
		apiURL: apiURL,
		// Uploads are not idempotent; no transparent retries here.
		http:      transport.NewClient(transport.Options{}),
		userAgent: "youtube2mediawiki",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// API performs one action. HTTP error statuses do not produce an error: the
// body is decoded if possible and annotated with status.code and status.text so
// callers can inspect it like any other response. Only a call that produced no
// usable response at all returns an error.
func (c *Client) API(ctx context.Context, action string, fields Fields, files ...File) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, contentType, err := encodeForm(action, fields, files)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", action, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, failure.Wrap(failure.CategoryInvalidInput, fmt.Errorf("wiki api url: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", c.userAgent)

	entry := log.WithFields(logrus.Fields{"action": action, "fields": redact(fields), "bytes": len(body)})
	entry.Debug("api call")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.CategoryTransport, fmt.Errorf("%s request to %s: %w", action, c.apiURL, err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Wrap(failure.CategoryTransport, fmt.Errorf("read %s response: %w", action, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r, decodeErr := decodeResponse(raw)
		if decodeErr != nil {
			r = Response{}
		}
		status := map[string]any{
			"code": resp.StatusCode,
			"text": fmt.Sprintf("HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
		if decodeErr != nil && len(raw) > 0 {
			status["body"] = string(raw[:min(len(raw), maxErrorBody)])
		}
		r["status"] = status
		entry.WithField("status", resp.StatusCode).Warn("api call returned an http error")
		return r, nil
	}

	r, err := decodeResponse(raw)
	if err != nil {
		return nil, failure.WithDetail(failure.CategoryTransport,
			fmt.Errorf("decode %s response: %w", action, err), string(raw[:min(len(raw), maxErrorBody)]))
	}
	if log.DebugEnabled() {
		entry.WithField("response", r).Debug("api result")
	}
	return r, nil
}

func encodeForm(action string, fields Fields, files []File) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("format", "json"); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("action", action); err != nil {
		return nil, "", err
	}
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		if err := w.WriteField(key, fields[key]); err != nil {
			return nil, "", err
		}
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Name)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func decodeResponse(raw []byte) (Response, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var r Response
	if err := dec.Decode(&r); err != nil {
		return nil, err
	}
	if r == nil {
		r = Response{}
	}
	return r, nil
}

var secretFields = []string{"lgpassword", "token", "lgtoken"}

func redact(fields Fields) Fields {
	out := make(Fields, len(fields))
	for k, v := range fields {
		if slices.Contains(secretFields, k) {
			v = "***"
		}
		out[k] = v
	}
	return out
}
