// Package config holds the settings of one import run. A Config value is built
// once from flags, environment, and an optional config file, then passed
// explicitly to every component; nothing reads global state after Load.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/spf13/viper"
)

// Version is reported in the upload comment and the wiki User-Agent.
const Version = "0.5.0"

// DefaultWikiURL is the API endpoint used when none is configured.
const DefaultWikiURL = "https://commons.wikimedia.org/w/api.php"

// DefaultTimeout bounds a single network request.
const DefaultTimeout = 3 * time.Minute

// EnvPrefix namespaces environment variables, e.g. Y2M_PASSWORD.
const EnvPrefix = "Y2M"

// Viper keys.
const (
	KeyUsername          = "wiki.username"
	KeyPassword          = "wiki.password"
	KeyWikiURL           = "wiki.url"
	KeyRequestsPerSecond = "wiki.requests_per_second"
	KeyName              = "upload.name"
	KeyIgnoreWarnings    = "upload.ignore_warnings"
	KeyOverwrite         = "upload.overwrite"
	KeyAdaptive          = "download.adaptive"
	KeyTimeout           = "download.timeout"
	KeyDebug             = "debug"
	KeyQuiet             = "quiet"
)

// Config describes one import invocation.
type Config struct {
	WikiURL  string
	Username string
	Password string

	// Name overrides the destination file name; the video title is used when empty.
	Name string

	Debug          bool
	Quiet          bool
	IgnoreWarnings bool
	Adaptive       bool
	Overwrite      bool

	Timeout           time.Duration
	RequestsPerSecond float64
}

// EnvKeyReplacer maps nested keys to environment names (wiki.password -> WIKI_PASSWORD).
var EnvKeyReplacer = strings.NewReplacer(".", "_")

// Defaults registers factory values on v.
func Defaults(v *viper.Viper) {
	v.SetDefault(KeyWikiURL, DefaultWikiURL)
	v.SetDefault(KeyTimeout, DefaultTimeout)
	v.SetDefault(KeyRequestsPerSecond, 0.0)
	v.SetDefault(KeyIgnoreWarnings, false)
	v.SetDefault(KeyOverwrite, false)
	v.SetDefault(KeyAdaptive, false)
	v.SetDefault(KeyDebug, false)
	v.SetDefault(KeyQuiet, false)
}

// Setup prepares v to read the environment and an optional youtube2mediawiki.toml
// from the given search paths. A missing config file is not an error.
func Setup(v *viper.Viper, paths ...string) error {
	Defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(EnvKeyReplacer)
	v.AutomaticEnv()
	// Y2M_PASSWORD predates the nested key layout.
	if err := v.BindEnv(KeyPassword, EnvPrefix+"_PASSWORD", EnvPrefix+"_WIKI_PASSWORD"); err != nil {
		return err
	}

	if len(paths) == 0 {
		return nil
	}
	v.SetConfigName("youtube2mediawiki")
	v.SetConfigType("toml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return nil
}

// Load snapshots v into a Config.
func Load(v *viper.Viper) Config {
	return Config{
		WikiURL:           v.GetString(KeyWikiURL),
		Username:          v.GetString(KeyUsername),
		Password:          v.GetString(KeyPassword),
		Name:              v.GetString(KeyName),
		Debug:             v.GetBool(KeyDebug),
		Quiet:             v.GetBool(KeyQuiet),
		IgnoreWarnings:    v.GetBool(KeyIgnoreWarnings),
		Adaptive:          v.GetBool(KeyAdaptive),
		Overwrite:         v.GetBool(KeyOverwrite),
		Timeout:           v.GetDuration(KeyTimeout),
		RequestsPerSecond: v.GetFloat64(KeyRequestsPerSecond),
	}
}

// Validate checks that the settings are usable for an import.
func (c Config) Validate() error {
	switch {
	case c.Username == "":
		return failure.Wrap(failure.CategoryInvalidInput, errors.New("wiki username is required"))
	case c.Password == "":
		return failure.Wrap(failure.CategoryInvalidInput, errors.New("wiki password is required (flag, Y2M_PASSWORD, or stored credentials)"))
	case c.WikiURL == "":
		return failure.Wrap(failure.CategoryInvalidInput, errors.New("wiki api url is required"))
	case c.Timeout < 0:
		return failure.Wrap(failure.CategoryInvalidInput, errors.New("timeout must not be negative"))
	case c.RequestsPerSecond < 0:
		return failure.Wrap(failure.CategoryInvalidInput, errors.New("requests per second must not be negative"))
	}
	return nil
}

// NewVersionComment is the infix used in upload comments when replacing a file.
func (c Config) NewVersionComment() string {
	if c.Overwrite {
		return "new version "
	}
	return ""
}
