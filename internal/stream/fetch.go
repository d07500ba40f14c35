package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ReadSize is the fixed size of every read from the remote stream.
const ReadSize = 4096

// HTTPDoer executes raw HTTP requests. *http.Client satisfies this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Progress observes bytes as they are written to disk.
type Progress interface {
	io.Writer
	Finish() error
}

// ProgressFunc creates an observer for one transfer. size is -1 when unknown.
type ProgressFunc func(label string, size int64) Progress

// Fetcher copies remote streams to local files.
type Fetcher struct {
	client   HTTPDoer
	fs       afero.Fs
	progress ProgressFunc
	idle     time.Duration
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithIdleTimeout aborts a transfer that receives nothing for d. The transfer
// as a whole has no deadline besides the caller's context.
func WithIdleTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.idle = d }
}

// errStalled is the cancellation cause of a transfer that went quiet.
var errStalled = errors.New("stream stalled")

// NewFetcher builds a Fetcher writing to fs. A nil progress disables observation.
// The client should not carry an overall timeout; see transport.Streaming.
func NewFetcher(client HTTPDoer, fs afero.Fs, progress ProgressFunc, opts ...FetcherOption) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	f := &Fetcher{client: client, fs: fs, progress: progress}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch streams rawURL into dst, truncating dst first. Partially written files
// are left in place on failure; the caller's workspace removes them.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dst string) (int64, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	var watchdog *time.Timer
	if f.idle > 0 {
		watchdog = time.AfterFunc(f.idle, func() { cancel(errStalled) })
		defer watchdog.Stop()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, failure.Wrap(failure.CategoryTransferFailed, fmt.Errorf("building request: %w", err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, failure.Wrap(failure.CategoryTransferFailed, fmt.Errorf("starting stream: %w", cause(ctx, err)))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, failure.Wrapf(failure.CategoryTransferFailed, "starting stream: unexpected status %s", resp.Status)
	}

	file, err := f.fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, failure.Wrap(failure.CategoryTransferFailed, fmt.Errorf("opening %s: %w", dst, err))
	}
	defer file.Close()

	var sink io.Writer = file
	var progress Progress
	if f.progress != nil {
		progress = f.progress(dst, resp.ContentLength)
		sink = io.MultiWriter(file, progress)
	}

	var body io.Reader = resp.Body
	if watchdog != nil {
		body = &idleReader{r: resp.Body, timer: watchdog, idle: f.idle}
	}
	written, err := copyChunked(ctx, sink, body)
	if progress != nil {
		_ = progress.Finish()
	}
	if err != nil {
		return written, failure.Wrap(failure.CategoryTransferFailed, fmt.Errorf("downloading stream: %w", cause(ctx, err)))
	}
	if err := file.Close(); err != nil {
		return written, failure.Wrap(failure.CategoryTransferFailed, fmt.Errorf("closing %s: %w", dst, err))
	}
	return written, nil
}

// cause prefers the reason ctx was cancelled over the error it produced.
func cause(ctx context.Context, err error) error {
	if c := context.Cause(ctx); c != nil && !errors.Is(err, c) {
		return fmt.Errorf("%w: %w", c, err)
	}
	return err
}

// idleReader pushes the stall deadline back after every read that returns data.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	return n, err
}

// FetchSelection downloads the selected streams: the video into videoPath and,
// for adaptive selections, the audio into audioPath.
func (f *Fetcher) FetchSelection(ctx context.Context, sel Selection, videoPath, audioPath string) error {
	targets := []struct {
		kind string
		desc *Descriptor
		path string
	}{
		{"video", &sel.Video, videoPath},
		{"audio", sel.Audio, audioPath},
	}
	for _, t := range targets {
		if t.desc == nil {
			continue
		}
		if t.path == "" {
			return fmt.Errorf("no destination for %s stream", t.kind)
		}
		u, err := t.desc.ResolvedURL()
		if err != nil {
			return err
		}
		entry := log.WithFields(logrus.Fields{"kind": t.kind, "itag": t.desc.FormatID})
		entry.Debug("fetching stream")
		n, err := f.Fetch(ctx, u, t.path)
		if err != nil {
			return fmt.Errorf("fetching %s stream %s: %w", t.kind, t.desc.FormatID, err)
		}
		entry.WithField("size", humanize.IBytes(uint64(n))).Debug("stream fetched")
	}
	return nil
}

// copyChunked copies src to dst in ReadSize reads, checking ctx between reads.
func copyChunked(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, ReadSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			w, err := dst.Write(buf[:n])
			written += int64(w)
			if err != nil {
				return written, err
			}
			if w != n {
				return written, io.ErrShortWrite
			}
		}
		if errors.Is(readErr, io.EOF) {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}
