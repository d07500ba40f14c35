// Package stream finds, ranks, and downloads the media streams advertised by a
// watch page.
package stream

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
)

// Mode selects which manifest is read and how streams are ranked.
type Mode int

const (
	// Progressive streams carry audio and video in one file.
	Progressive Mode = iota
	// Adaptive streams deliver audio and video separately; they must be remuxed.
	Adaptive
)

func (m Mode) String() string {
	if m == Adaptive {
		return "adaptive"
	}
	return "progressive"
}

const (
	VideoMimePrefix = "video/webm"
	AudioMimePrefix = "audio/webm"

	escapedAmpersand = "\\u0026"

	// UnavailableMarker appears on watch pages of removed or blocked videos.
	UnavailableMarker = `<h1 id="unavailable-message" class="message">`
)

var (
	progressiveManifest = regexp.MustCompile(`"url_encoded_fmt_stream_map".*?"(.*?)"`)
	adaptiveManifest    = regexp.MustCompile(`"adaptive_fmts".*?"(.*?)"`)
)

// Descriptor is one stream entry of a manifest.
type Descriptor struct {
	MimeType  string
	FormatID  string
	URL       string
	Signature string
	// Attributes holds every decoded key of the entry, including the ones above.
	Attributes map[string]string
}

// ResolvedURL is the fetchable address: the stream URL with the signature
// appended when the manifest supplied one separately.
func (d Descriptor) ResolvedURL() (string, error) {
	if d.URL == "" {
		return "", failure.Wrapf(failure.CategoryNoDecodableStream, "stream %s has no download url", d.FormatID)
	}
	if d.Signature != "" {
		return d.URL + "&signature=" + d.Signature, nil
	}
	return d.URL, nil
}

// Catalog partitions the eligible descriptors of a page by kind. Both maps are
// keyed by format id.
type Catalog struct {
	Mode  Mode
	Video map[string]Descriptor
	Audio map[string]Descriptor
}

// ParseCatalog extracts the manifest for mode from a raw watch page.
func ParseCatalog(page []byte, mode Mode) (*Catalog, error) {
	manifest, ok := findManifest(page, mode)
	if !ok {
		if bytes.Contains(page, []byte(UnavailableMarker)) {
			return nil, failure.Wrap(failure.CategoryContentUnavailable, errors.New("video is not available"))
		}
		return nil, failure.Wrapf(failure.CategoryNoDecodableStream, "no %s stream manifest found on watch page", mode)
	}

	entries, err := ParseManifest(manifest)
	if err != nil {
		return nil, err
	}

	catalog := &Catalog{
		Mode:  mode,
		Video: make(map[string]Descriptor),
		Audio: make(map[string]Descriptor),
	}
	for _, d := range entries {
		switch {
		case strings.HasPrefix(d.MimeType, VideoMimePrefix):
			if _, seen := catalog.Video[d.FormatID]; !seen {
				catalog.Video[d.FormatID] = d
			}
		case mode == Adaptive && strings.HasPrefix(d.MimeType, AudioMimePrefix):
			if _, seen := catalog.Audio[d.FormatID]; !seen {
				catalog.Audio[d.FormatID] = d
			}
		}
	}
	return catalog, nil
}

func findManifest(page []byte, mode Mode) (string, bool) {
	pattern := progressiveManifest
	if mode == Adaptive {
		pattern = adaptiveManifest
	}
	m := pattern.FindSubmatch(page)
	if m == nil {
		return "", false
	}
	return string(m[1]), true
}

// ParseManifest splits a manifest into descriptors. Entries are separated by
// commas; inside an entry, key=value pairs are joined by a JSON-escaped
// ampersand and values are percent-encoded. Pairs without '=' are skipped, and
// entries lacking a type, an itag, or both url and sig are dropped rather than
// failing the whole manifest.
func ParseManifest(manifest string) ([]Descriptor, error) {
	var out []Descriptor
	for _, entry := range strings.Split(manifest, ",") {
		d, ok := parseEntry(entry)
		if ok {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, failure.Wrap(failure.CategoryNoDecodableStream, errors.New("manifest contains no decodable stream"))
	}
	return out, nil
}

func parseEntry(entry string) (Descriptor, bool) {
	entry = strings.ReplaceAll(entry, escapedAmpersand, "&")
	attrs := make(map[string]string)
	for _, pair := range strings.Split(entry, "&") {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			continue
		}
		attrs[key] = unescape(value)
	}

	d := Descriptor{
		MimeType:   attrs["type"],
		FormatID:   attrs["itag"],
		URL:        attrs["url"],
		Signature:  attrs["sig"],
		Attributes: attrs,
	}
	if d.MimeType == "" || d.FormatID == "" {
		return Descriptor{}, false
	}
	if d.URL == "" && d.Signature == "" {
		return Descriptor{}, false
	}
	return d, true
}

func unescape(v string) string {
	decoded, err := url.QueryUnescape(v)
	if err != nil {
		return v
	}
	return decoded
}

func (c *Catalog) String() string {
	return fmt.Sprintf("%s catalog: %d video, %d audio", c.Mode, len(c.Video), len(c.Audio))
}
