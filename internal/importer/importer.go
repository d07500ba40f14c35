// Package importer runs one import: it resolves the video, downloads the best
// WebM rendition, uploads it to the wiki and copies its subtitles over.
package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lvcoi/youtube2mediawiki/internal/config"
	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
	"github.com/lvcoi/youtube2mediawiki/internal/mediawiki"
	"github.com/lvcoi/youtube2mediawiki/internal/remux"
	"github.com/lvcoi/youtube2mediawiki/internal/stream"
	"github.com/lvcoi/youtube2mediawiki/internal/subtitle"
	"github.com/lvcoi/youtube2mediawiki/internal/workspace"
	"github.com/lvcoi/youtube2mediawiki/internal/youtube"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Source is the video site.
type Source interface {
	Metadata(ctx context.Context, id string) (youtube.Info, error)
	WatchPage(ctx context.Context, id string) (string, error)
	SubtitleTrackList(ctx context.Context, id string) ([]string, error)
	SubtitleTrack(ctx context.Context, id, lang string) (subtitle.Track, error)
}

// Wiki is the session used for login and page edits.
type Wiki interface {
	Login(ctx context.Context, username, password string) error
	EditPage(ctx context.Context, page, text, comment string, overwrite bool) error
}

// Uploader sends a local file to the wiki.
type Uploader interface {
	Upload(ctx context.Context, req mediawiki.UploadRequest) (string, error)
}

// Downloader fetches selected streams to local paths.
type Downloader interface {
	FetchSelection(ctx context.Context, sel stream.Selection, videoPath, audioPath string) error
}

// Reporter receives progress meant for the user.
type Reporter interface {
	Step(format string, args ...any)
	Warn(format string, args ...any)
	Uploaded(url string)
}

// Deps are the collaborators of a run. Wiki and Uploader must share one
// session, and Fetcher and Uploader must work on Fs.
type Deps struct {
	Source   Source
	Wiki     Wiki
	Uploader Uploader
	Fetcher  Downloader
	// Locate finds the muxer; only called in adaptive mode.
	Locate   func(ctx context.Context) (remux.Muxer, error)
	Fs       afero.Fs
	Reporter Reporter
}

// Result describes a finished or partially finished import.
type Result struct {
	// URL is the description page of the uploaded file, empty if the upload
	// did not happen.
	URL       string
	Filename  string
	Subtitles []string
	// SubtitleErrors holds the languages that could not be copied.
	SubtitleErrors map[string]error
}

// Run imports the video id according to cfg.
func Run(ctx context.Context, cfg config.Config, id string, deps Deps) (res Result, err error) {
	if id == "" {
		return res, failure.Wrapf(failure.CategoryInvalidInput, "video id is required")
	}
	if deps.Reporter == nil {
		deps.Reporter = nopReporter{}
	}
	rep := deps.Reporter
	entry := log.WithFields(logrus.Fields{"run": uuid.NewString(), "video": id})

	mode := stream.Progressive
	if cfg.Adaptive {
		mode = stream.Adaptive
	}

	var muxer remux.Muxer
	if mode == stream.Adaptive {
		muxer, err = deps.Locate(ctx)
		if err != nil {
			return res, err
		}
	}

	rep.Step("logging in to %s as %s", cfg.WikiURL, cfg.Username)
	if err := deps.Wiki.Login(ctx, cfg.Username, cfg.Password); err != nil {
		return res, err
	}

	rep.Step("reading video details")
	info, err := deps.Source.Metadata(ctx, id)
	if err != nil {
		return res, err
	}
	entry = entry.WithField("title", info.Title)
	entry.WithFields(logrus.Fields{"license": info.License, "keywords": info.Keywords}).Debug("metadata")

	ws, err := workspace.Acquire(deps.Fs, "youtube2mediawiki")
	if err != nil {
		return res, err
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			entry.WithError(rerr).Warn("could not remove workspace")
		}
	}()
	defer func() {
		if res.URL != "" {
			rep.Uploaded(res.URL)
		}
	}()

	base := SafeName(info.Title)
	if base == "" {
		base = SafeName(id)
	}
	output := ws.Path(base + ".webm")

	if err := download(ctx, deps, rep, id, mode, ws, output, muxer, entry); err != nil {
		return res, err
	}

	res.Filename = mediawiki.TargetName(cfg.Name, output)
	comment := fmt.Sprintf("Imported %sfrom %s using youtube2mediawiki version %s ", cfg.NewVersionComment(), info.URL, config.Version)
	rep.Step("uploading %s", res.Filename)
	res.URL, err = deps.Uploader.Upload(ctx, mediawiki.UploadRequest{
		Path:    output,
		Name:    cfg.Name,
		Comment: comment,
		Text:    Description(info),
	})
	if err != nil {
		return res, err
	}

	if cfg.Overwrite {
		entry.Debug("overwriting, subtitles left alone")
		return res, nil
	}
	res.Subtitles, res.SubtitleErrors = copySubtitles(ctx, deps, rep, id, res.Filename, info.URL, entry)
	return res, nil
}

func download(ctx context.Context, deps Deps, rep Reporter, id string, mode stream.Mode, ws *workspace.Workspace, output string, muxer remux.Muxer, entry *logrus.Entry) error {
	page, err := deps.Source.WatchPage(ctx, id)
	if err != nil {
		return err
	}
	catalog, err := stream.ParseCatalog([]byte(page), mode)
	if err != nil {
		return err
	}
	entry.WithField("catalog", catalog.String()).Debug("streams")
	sel, err := stream.Select(catalog)
	if err != nil {
		return err
	}
	entry.WithField("itags", sel.FormatIDs()).Debug("selected")
	rep.Step("downloading %s stream %s", mode, strings.Join(sel.FormatIDs(), "+"))

	if mode == stream.Progressive {
		return deps.Fetcher.FetchSelection(ctx, sel, output, "")
	}
	videoPath, audioPath := ws.Path("video.dat"), ws.Path("audio.dat")
	if err := deps.Fetcher.FetchSelection(ctx, sel, videoPath, audioPath); err != nil {
		return err
	}
	rep.Step("merging audio and video")
	return muxer.Mux(ctx, videoPath, audioPath, output)
}

// copySubtitles copies every published track. A failing language is recorded
// and the others still go ahead.
func copySubtitles(ctx context.Context, deps Deps, rep Reporter, id, filename, sourceURL string, entry *logrus.Entry) ([]string, map[string]error) {
	langs, err := deps.Source.SubtitleTrackList(ctx, id)
	if err != nil {
		rep.Warn("could not list subtitles: %v", err)
		return nil, nil
	}
	var done []string
	failed := map[string]error{}
	for _, lang := range langs {
		if err := ctx.Err(); err != nil {
			failed[lang] = err
			continue
		}
		track, err := deps.Source.SubtitleTrack(ctx, id, lang)
		if err != nil {
			failed[lang] = err
			rep.Warn("subtitles %s: %v", lang, err)
			continue
		}
		srt := track.SRT()
		if srt == "" {
			continue
		}
		page := SubtitlePage(filename, lang)
		if err := deps.Wiki.EditPage(ctx, page, srt, "Imported from "+sourceURL, false); err != nil {
			failed[lang] = err
			rep.Warn("subtitles %s: %v", lang, err)
			continue
		}
		entry.WithField("page", page).Debug("subtitles imported")
		done = append(done, lang)
	}
	if len(failed) == 0 {
		failed = nil
	}
	return done, failed
}

// SubtitlePage is the TimedText page holding the lang track of filename.
func SubtitlePage(filename, lang string) string {
	return fmt.Sprintf("TimedText:%s.%s.srt", strings.ReplaceAll(filename, " ", "_"), lang)
}

type nopReporter struct{}

func (nopReporter) Step(string, ...any) {}
func (nopReporter) Warn(string, ...any) {}
func (nopReporter) Uploaded(string)     {}
