package cli

import (
	"context"
	"path/filepath"

	"github.com/lvcoi/youtube2mediawiki/internal/config"
	"github.com/lvcoi/youtube2mediawiki/internal/importer"
	"github.com/lvcoi/youtube2mediawiki/internal/mediawiki"
	"github.com/lvcoi/youtube2mediawiki/internal/remux"
	"github.com/lvcoi/youtube2mediawiki/internal/stream"
	"github.com/lvcoi/youtube2mediawiki/internal/ui"
	"github.com/lvcoi/youtube2mediawiki/internal/youtube"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"
)

// UserAgent identifies the tool to the wiki.
const UserAgent = "youtube2mediawiki/" + config.Version + " (+https://www.mediawiki.org/wiki/User:BotInc/youtube2mediawiki)"

// buildDeps wires fresh clients for one import. The wiki session and the
// uploader share a cookie jar through the same client.
func buildDeps(cfg config.Config, p *ui.Printer) importer.Deps {
	fs := afero.NewOsFs()
	source := youtube.New(cfg.Timeout)

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	wiki := mediawiki.New(cfg.WikiURL,
		mediawiki.WithTimeout(cfg.Timeout),
		mediawiki.WithRateLimit(limiter),
		mediawiki.WithUserAgent(UserAgent),
	)
	uploader := mediawiki.NewUploader(wiki, fs,
		mediawiki.IgnoreWarnings(cfg.IgnoreWarnings),
		mediawiki.Overwrite(cfg.Overwrite),
		mediawiki.WithObserver(uploadProgress(p)),
	)
	fetcher := stream.NewFetcher(source.MediaClient(), fs, func(label string, size int64) stream.Progress {
		name := filepath.Base(label)
		return &fetchProgress{bar: p.Progress(name, size), printer: p, label: name}
	}, stream.WithIdleTimeout(cfg.Timeout))

	return importer.Deps{
		Source:   source,
		Wiki:     wiki,
		Uploader: uploader,
		Fetcher:  fetcher,
		Locate: func(ctx context.Context) (remux.Muxer, error) {
			m, err := remux.Locate(ctx)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		Fs:       fs,
		Reporter: p,
	}
}

// uploadProgress drives a progress bar from upload session events.
func uploadProgress(p *ui.Printer) mediawiki.Observer {
	var bar ui.Bar
	return func(e mediawiki.Event) {
		switch e.To {
		case mediawiki.StateChunkInFlight:
			if bar == nil {
				bar = p.Progress("upload", e.Session.TotalSize)
			}
		case mediawiki.StateChunkAcknowledged:
			if bar != nil {
				_ = bar.Add64(e.Sent)
			}
		case mediawiki.StateDone, mediawiki.StateErrored:
			if bar != nil {
				_ = bar.Finish()
				bar = nil
			}
		}
	}
}

// fetchProgress feeds a download into its bar and prints the total when the
// transfer ends.
type fetchProgress struct {
	bar     ui.Bar
	printer *ui.Printer
	label   string
	n       int64
}

func (f *fetchProgress) Write(b []byte) (int, error) {
	f.n += int64(len(b))
	return f.bar.Write(b)
}

func (f *fetchProgress) Finish() error {
	err := f.bar.Finish()
	f.printer.Done(f.label, f.n)
	return err
}
