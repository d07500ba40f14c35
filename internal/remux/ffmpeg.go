// Package remux combines separately downloaded video and audio streams into
// one WebM container without re-encoding.
package remux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Muxer copies a video and an audio elementary stream into outputPath.
type Muxer interface {
	Mux(ctx context.Context, videoPath, audioPath, outputPath string) error
}

// LookPathFunc resolves an executable name on the platform search path.
type LookPathFunc func(file string) (string, error)

// CheckFunc runs the version check of a candidate binary.
type CheckFunc func(ctx context.Context, bin string) error

// Locator finds a usable ffmpeg binary.
type Locator struct {
	LookPath LookPathFunc
	Check    CheckFunc
	// Dir is searched when the binary is not on the search path. Defaults to
	// the working directory.
	Dir string
}

// BinaryName is the platform-specific executable name.
func BinaryName() string {
	if runtime.GOOS == "windows" {
		return "ffmpeg.exe"
	}
	return "ffmpeg"
}

// Locate returns an FFmpeg muxer, or a DependencyMissing error when no binary
// can be found or the found binary does not answer -version. Callers should
// run this before downloading anything.
func Locate(ctx context.Context) (*FFmpeg, error) {
	return Locator{}.Locate(ctx)
}

// Locate resolves the binary using l's hooks.
func (l Locator) Locate(ctx context.Context) (*FFmpeg, error) {
	lookPath := l.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	check := l.Check
	if check == nil {
		check = versionCheck
	}
	dir := l.Dir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		} else {
			dir = "."
		}
	}

	name := BinaryName()
	log.Debugf("testing for %s on %s", name, runtime.GOOS)

	bin, err := lookPath(name)
	if err != nil {
		bin = filepath.Join(dir, name)
	}
	if err := check(ctx, bin); err != nil {
		return nil, failure.Wrap(failure.CategoryDependencyMissing,
			fmt.Errorf("ffmpeg not found: install ffmpeg or place %s in %s: %w", name, dir, err))
	}
	log.Debugf("using %s", bin)
	return &FFmpeg{Bin: bin}, nil
}

func versionCheck(ctx context.Context, bin string) error {
	cmd := exec.CommandContext(ctx, bin, "-version")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}

// FFmpeg muxes with the ffmpeg command line tool.
type FFmpeg struct {
	Bin string
}

// Mux copies both streams into outputPath, replacing it if it exists.
func (f *FFmpeg) Mux(ctx context.Context, videoPath, audioPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if f == nil || f.Bin == "" {
		return failure.Wrap(failure.CategoryDependencyMissing, errors.New("ffmpeg binary not configured"))
	}

	stream := muxStream(videoPath, audioPath, outputPath).SetFfmpegPath(f.Bin)
	log.WithField("args", stream.GetArgs()).Debug("running ffmpeg")
	if err := stream.Run(); err != nil {
		return failure.Wrap(failure.CategoryRemuxFailed, fmt.Errorf("merge by ffmpeg failed: %w", err))
	}
	return nil
}

func muxStream(videoPath, audioPath, outputPath string) *ffmpeg.Stream {
	return ffmpeg.Output(
		[]*ffmpeg.Stream{ffmpeg.Input(videoPath), ffmpeg.Input(audioPath)},
		outputPath,
		ffmpeg.KwArgs{"c:v": "copy", "c:a": "copy"},
	).OverWriteOutput().Silent(true)
}
