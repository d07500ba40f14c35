// Package cli is the youtube2mediawiki command line: flag parsing, settings
// resolution and wiring the import pipeline together.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lvcoi/youtube2mediawiki/internal/config"
	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/importer"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
	"github.com/lvcoi/youtube2mediawiki/internal/ui"
	"github.com/lvcoi/youtube2mediawiki/internal/youtube"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries what the commands share. Tests replace the seams.
type app struct {
	v       *viper.Viper
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	printer *ui.Printer
	keyring Keyring
	// newDeps builds the import collaborators for one run.
	newDeps func(cfg config.Config, p *ui.Printer) importer.Deps
	// configPaths are searched for youtube2mediawiki.toml.
	configPaths []string
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		v:           viper.New(),
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		keyring:     systemKeyring{},
		newDeps:     buildDeps,
		configPaths: defaultConfigPaths(),
	}
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "youtube2mediawiki"))
	}
	return paths
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return newApp(os.Stdin, os.Stdout, os.Stderr).execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	root := a.rootCommand()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if a.printer == nil {
		a.printer = ui.NewPrinter(a.stderr, ui.Options{})
	}
	a.printer.Error(err)
	if failure.Is(err, failure.CategoryInvalidInput) {
		cmd, _, findErr := root.Find(args)
		if findErr != nil || cmd == nil {
			cmd = root
		}
		cmd.SetOut(a.stderr)
		_ = cmd.Usage()
	}
	return failure.ExitCode(err)
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "youtube2mediawiki [flags] <youtube id or url>",
		Short: "Import a YouTube video and its subtitles into a MediaWiki installation",
		Long: "youtube2mediawiki downloads the best WebM rendition of a video, uploads it to a\n" +
			"MediaWiki wiki with a generated description page, and copies the published\n" +
			"subtitles to TimedText pages.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return failure.Wrapf(failure.CategoryInvalidInput, "expected exactly one video id or url, got %d arguments", len(args))
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			paths, err := cmd.Flags().GetStringSlice("config-path")
			if err != nil {
				return err
			}
			return a.loadSettings(paths)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runImport(cmd.Context(), args[0])
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	root.SetIn(a.stdin)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return failure.Wrap(failure.CategoryInvalidInput, err)
	})

	pf := root.PersistentFlags()
	pf.StringP("username", "u", "", "wiki username")
	pf.StringP("password", "p", "", "wiki password (or set Y2M_PASSWORD, or store it with 'credentials set')")
	pf.StringP("url", "w", config.DefaultWikiURL, "wiki api url")
	pf.BoolP("debug", "d", false, "print debug information")
	pf.BoolP("quiet", "q", false, "only print the result")
	pf.StringSlice("config-path", nil, "directories searched for youtube2mediawiki.toml")
	lo.Must0(a.v.BindPFlag(config.KeyUsername, pf.Lookup("username")))
	lo.Must0(a.v.BindPFlag(config.KeyPassword, pf.Lookup("password")))
	lo.Must0(a.v.BindPFlag(config.KeyWikiURL, pf.Lookup("url")))
	lo.Must0(a.v.BindPFlag(config.KeyDebug, pf.Lookup("debug")))
	lo.Must0(a.v.BindPFlag(config.KeyQuiet, pf.Lookup("quiet")))

	f := root.Flags()
	f.StringP("name", "n", "", "name of the file on the wiki (default: the video title)")
	f.BoolP("ignore-warnings", "i", false, "ignore upload warnings such as duplicates")
	f.BoolP("adaptive-streaming", "a", false, "download separate audio and video streams and merge them with ffmpeg")
	f.BoolP("overwrite", "o", false, "upload a new version of an existing file (subtitles are not copied)")
	f.Duration("timeout", config.DefaultTimeout, "timeout of a single network request, and of a stalled download")
	f.Float64("requests-per-second", 0, "pace wiki api calls (0 means no limit)")
	lo.Must0(a.v.BindPFlag(config.KeyName, f.Lookup("name")))
	lo.Must0(a.v.BindPFlag(config.KeyIgnoreWarnings, f.Lookup("ignore-warnings")))
	lo.Must0(a.v.BindPFlag(config.KeyAdaptive, f.Lookup("adaptive-streaming")))
	lo.Must0(a.v.BindPFlag(config.KeyOverwrite, f.Lookup("overwrite")))
	lo.Must0(a.v.BindPFlag(config.KeyTimeout, f.Lookup("timeout")))
	lo.Must0(a.v.BindPFlag(config.KeyRequestsPerSecond, f.Lookup("requests-per-second")))

	root.AddCommand(a.versionCommand(), a.credentialsCommand())
	return root
}

// loadSettings reads the config file and environment and sets up logging.
// Explicit paths replace the default search locations.
func (a *app) loadSettings(paths []string) error {
	if len(paths) == 0 {
		paths = a.configPaths
	}
	if err := config.Setup(a.v, paths...); err != nil {
		return failure.Wrap(failure.CategoryInvalidInput, fmt.Errorf("reading config: %w", err))
	}
	cfg := config.Load(a.v)
	log.Setup(a.stderr, cfg.Debug)
	a.printer = ui.NewPrinter(a.stderr, ui.Options{Quiet: cfg.Quiet, Debug: cfg.Debug})
	return nil
}

func (a *app) runImport(ctx context.Context, raw string) error {
	cfg := config.Load(a.v)
	if cfg.Password == "" {
		cfg.Password = a.storedPassword(cfg)
	}
	if cfg.Password == "" && cfg.Username != "" {
		pw, err := promptPassword(a.stdin, a.stderr, fmt.Sprintf("Password for %s: ", cfg.Username))
		if err != nil && !errors.Is(err, errNotTerminal) {
			return failure.Wrap(failure.CategoryInvalidInput, err)
		}
		cfg.Password = pw
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	id := youtube.ParseID(raw)
	log.WithField("video", id).Debugf("importing into %s", cfg.WikiURL)
	_, err := importer.Run(ctx, cfg, id, a.newDeps(cfg, a.printer))
	return err
}
