package stream

import (
	"net/url"
	"strings"
	"testing"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
)

// entry builds one manifest entry the way the watch page embeds it.
func entry(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, pairs[i]+"="+url.QueryEscape(pairs[i+1]))
	}
	return strings.Join(parts, escapedAmpersand)
}

func page(key string, entries ...string) []byte {
	return []byte(`<script>var ytplayer = {"args":{"title":"x","` + key + `": "` + strings.Join(entries, ",") + `","length_seconds":"10"}};</script>`)
}

func TestParseCatalogProgressive(t *testing.T) {
	p := page("url_encoded_fmt_stream_map",
		entry("itag", "43", "type", `video/webm; codecs="vp8.0, vorbis"`, "url", "https://r1.example/videoplayback?id=1", "quality", "medium"),
		entry("type", "video/mp4", "itag", "22", "url", "https://r1.example/videoplayback?id=2"),
		entry("url", "https://r1.example/videoplayback?id=3", "itag", "44", "type", "video/webm"),
		entry("itag", "171", "type", "audio/webm", "url", "https://r1.example/a"),
	)

	c, err := ParseCatalog(p, Progressive)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if len(c.Video) != 2 {
		t.Fatalf("expected 2 webm video streams, got %d: %v", len(c.Video), c)
	}
	if len(c.Audio) != 0 {
		t.Fatalf("audio must stay empty outside adaptive mode, got %d", len(c.Audio))
	}
	d := c.Video["43"]
	if d.MimeType != `video/webm; codecs="vp8.0, vorbis"` {
		t.Fatalf("type not decoded: %q", d.MimeType)
	}
	if d.Attributes["quality"] != "medium" {
		t.Fatalf("raw attributes lost: %v", d.Attributes)
	}
}

func TestParseCatalogAdaptive(t *testing.T) {
	p := page("adaptive_fmts",
		entry("itag", "248", "type", "video/webm", "url", "https://r1.example/v248"),
		entry("itag", "251", "type", "audio/webm", "url", "https://r1.example/a251"),
		entry("itag", "140", "type", "audio/mp4", "url", "https://r1.example/a140"),
	)

	c, err := ParseCatalog(p, Adaptive)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if _, ok := c.Video["248"]; !ok || len(c.Video) != 1 {
		t.Fatalf("unexpected video set %v", c.Video)
	}
	if _, ok := c.Audio["251"]; !ok || len(c.Audio) != 1 {
		t.Fatalf("unexpected audio set %v", c.Audio)
	}
}

func TestParseCatalogReadsOnlyTheRequestedManifest(t *testing.T) {
	p := page("url_encoded_fmt_stream_map", entry("itag", "43", "type", "video/webm", "url", "https://x/43"))
	_, err := ParseCatalog(p, Adaptive)
	if !failure.Is(err, failure.CategoryNoDecodableStream) {
		t.Fatalf("expected no decodable stream, got %v", err)
	}
}

func TestParseCatalogUnavailable(t *testing.T) {
	p := []byte(`<html><body>` + UnavailableMarker + `This video is unavailable.</h1></body></html>`)
	_, err := ParseCatalog(p, Progressive)
	if !failure.Is(err, failure.CategoryContentUnavailable) {
		t.Fatalf("expected content unavailable, got %v", err)
	}
}

func TestParseCatalogManifestWinsOverMarker(t *testing.T) {
	p := append(page("url_encoded_fmt_stream_map", entry("itag", "43", "type", "video/webm", "url", "https://x/43")), []byte(UnavailableMarker)...)
	if _, err := ParseCatalog(p, Progressive); err != nil {
		t.Fatalf("manifest present, marker should be ignored: %v", err)
	}
}

func TestParseManifestSkipsMalformedEntries(t *testing.T) {
	manifest := strings.Join([]string{
		// no type
		entry("itag", "43", "url", "https://x/43"),
		// no itag
		entry("type", "video/webm", "url", "https://x/none"),
		// neither url nor sig
		entry("type", "video/webm", "itag", "44"),
		// no usable pairs at all
		"garbage" + escapedAmpersand + "=novalue" + escapedAmpersand + "justakey",
		// valid, keys reordered
		entry("sig", "ABC.DEF", "type", "video/webm", "itag", "45", "url", "https://x/45?a=1"),
	}, ",")

	ds, err := ParseManifest(manifest)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if len(ds) != 1 {
		t.Fatalf("expected one valid descriptor, got %d: %+v", len(ds), ds)
	}
	u, err := ds[0].ResolvedURL()
	if err != nil {
		t.Fatalf("ResolvedURL: %v", err)
	}
	if u != "https://x/45?a=1&signature=ABC.DEF" {
		t.Fatalf("unexpected resolved url %q", u)
	}
}

func TestParseManifestNothingDecodable(t *testing.T) {
	_, err := ParseManifest(entry("itag", "43"))
	if !failure.Is(err, failure.CategoryNoDecodableStream) {
		t.Fatalf("expected no decodable stream, got %v", err)
	}
	_, err = ParseManifest("")
	if !failure.Is(err, failure.CategoryNoDecodableStream) {
		t.Fatalf("expected no decodable stream for empty manifest, got %v", err)
	}
}

func TestParseManifestDecodesPlusAsSpace(t *testing.T) {
	// Plain ampersands are accepted as pair separators too.
	ds, err := ParseManifest(`itag=43&type=video%2Fwebm%3B+codecs%3D%22vp8.0%22&url=https%3A%2F%2Fx%2F43`)
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if ds[0].MimeType != `video/webm; codecs="vp8.0"` {
		t.Fatalf("unexpected type %q", ds[0].MimeType)
	}
	if ds[0].URL != "https://x/43" {
		t.Fatalf("unexpected url %q", ds[0].URL)
	}
}

func TestResolvedURLWithoutURL(t *testing.T) {
	d := Descriptor{FormatID: "43", Signature: "abc"}
	if _, err := d.ResolvedURL(); !failure.Is(err, failure.CategoryNoDecodableStream) {
		t.Fatalf("expected no decodable stream, got %v", err)
	}
}

func TestParseCatalogDuplicateItagKeepsFirst(t *testing.T) {
	p := page("url_encoded_fmt_stream_map",
		entry("itag", "43", "type", "video/webm", "url", "https://x/first"),
		entry("itag", "43", "type", "video/webm", "url", "https://x/second"),
	)
	c, err := ParseCatalog(p, Progressive)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}
	if c.Video["43"].URL != "https://x/first" {
		t.Fatalf("expected first occurrence, got %q", c.Video["43"].URL)
	}
}
