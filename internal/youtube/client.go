// Package youtube fetches everything the importer needs from the video site:
// the watch page, video metadata and timed-text subtitle tracks.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/kkdai/youtube/v2"
	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
	"github.com/lvcoi/youtube2mediawiki/internal/subtitle"
	"github.com/lvcoi/youtube2mediawiki/internal/transport"
)

// DefaultBaseURL is the site root.
const DefaultBaseURL = "https://www.youtube.com"

// maxPageSize bounds how much of a watch page is read.
const maxPageSize = 8 << 20

// MetadataSource resolves video details through the player API.
type MetadataSource interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
}

// Client is a session against the video site. It keeps its own cookies.
type Client struct {
	http    *http.Client
	baseURL string
	meta    MetadataSource
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another host, for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetadataSource replaces the player API client.
func WithMetadataSource(m MetadataSource) Option {
	return func(c *Client) { c.meta = m }
}

// New returns a client whose requests time out after timeout.
func New(timeout time.Duration, opts ...Option) *Client {
	retry := transport.DefaultRetry
	c := &Client{
		http: transport.NewClient(transport.Options{
			Timeout: timeout,
			Headers: transport.BrowserHeaders(),
			Retry:   &retry,
		}),
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.meta == nil {
		c.meta = &youtube.Client{HTTPClient: c.http}
	}
	return c
}

// MediaClient shares the cookie jar and transport of the page client but has
// no overall deadline, so long media transfers are bounded by stall detection.
func (c *Client) MediaClient() *http.Client {
	return transport.Streaming(c.http)
}

// WatchURL is the canonical page address of a video.
func (c *Client) WatchURL(id string) string {
	return c.baseURL + "/watch?v=" + url.QueryEscape(id)
}

// WatchPage returns the HTML of the watch page.
func (c *Client) WatchPage(ctx context.Context, id string) (string, error) {
	body, err := c.get(ctx, c.WatchURL(id))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// SubtitleTrackList returns the language codes of the published subtitle
// tracks.
func (c *Client) SubtitleTrackList(ctx context.Context, id string) ([]string, error) {
	q := url.Values{"hl": {"en"}, "type": {"list"}, "tlangs": {"1"}, "v": {id}, "asrs": {"1"}}
	body, err := c.get(ctx, c.baseURL+"/api/timedtext?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return subtitle.ParseTrackList(body)
}

// SubtitleTrack downloads and parses the track for lang.
func (c *Client) SubtitleTrack(ctx context.Context, id, lang string) (subtitle.Track, error) {
	q := url.Values{"hl": {"en"}, "v": {id}, "type": {"track"}, "lang": {lang}, "name": {""}, "kind": {""}}
	body, err := c.get(ctx, c.baseURL+"/api/timedtext?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, nil
	}
	return subtitle.ParseTrack(body)
}

// Metadata gathers the description page fields for id from the player API and
// the watch page.
func (c *Client) Metadata(ctx context.Context, id string) (Info, error) {
	v, err := c.meta.GetVideoContext(ctx, id)
	if err != nil {
		return Info{}, classify(fmt.Errorf("video metadata for %s: %w", id, err))
	}
	info := infoFromVideo(v)
	info.ID = id
	info.URL = c.WatchURL(id)

	page, err := c.WatchPage(ctx, id)
	if err != nil {
		// The page only adds license and category details.
		log.WithField("video", id).WithError(err).Warn("watch page unavailable, metadata is incomplete")
		return info, nil
	}
	info.mergePage(page)
	return info, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, failure.Wrap(failure.CategoryInvalidInput, err)
	}
	log.WithField("url", rawURL).Debug("fetching")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failure.Wrap(failure.CategoryTransport, fmt.Errorf("GET %s: %w", rawURL, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, failure.Wrapf(failure.CategoryTransferFailed, "GET %s: unexpected status %s", rawURL, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return nil, failure.Wrap(failure.CategoryTransport, fmt.Errorf("read %s: %w", rawURL, err))
	}
	return body, nil
}

// classify separates network trouble from videos that simply cannot be
// played or read.
func classify(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return failure.Wrap(failure.CategoryTransport, err)
	}
	return failure.Wrap(failure.CategoryContentUnavailable, err)
}
