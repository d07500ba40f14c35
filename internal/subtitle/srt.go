// Package subtitle turns timed-text tracks into SubRip documents.
package subtitle

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// DefaultDuration is used for cues whose source omits a duration.
const DefaultDuration = 2.0

// Cue is one timed caption.
type Cue struct {
	Start    float64
	Duration float64
	// Text is still entity-encoded as delivered by the source.
	Text string
}

// End is Start plus Duration.
func (c Cue) End() float64 {
	return c.Start + c.Duration
}

// Track is the ordered list of cues of one language.
type Track []Cue

type transcriptXML struct {
	Texts []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Body  string `xml:",chardata"`
	} `xml:"text"`
}

// ParseTrack reads a timedtext transcript document.
func ParseTrack(data []byte) (Track, error) {
	var doc transcriptXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing transcript: %w", err)
	}
	track := make(Track, 0, len(doc.Texts))
	for i, t := range doc.Texts {
		start, err := strconv.ParseFloat(strings.TrimSpace(t.Start), 64)
		if err != nil {
			return nil, fmt.Errorf("cue %d: invalid start %q", i, t.Start)
		}
		dur := DefaultDuration
		if s := strings.TrimSpace(t.Dur); s != "" {
			dur, err = strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("cue %d: invalid dur %q", i, t.Dur)
			}
		}
		track = append(track, Cue{Start: start, Duration: dur, Text: t.Body})
	}
	return track, nil
}

type trackListXML struct {
	Tracks []struct {
		LangCode string `xml:"lang_code,attr"`
	} `xml:"track"`
}

// ParseTrackList returns the language codes listed in a timedtext track list.
func ParseTrackList(data []byte) ([]string, error) {
	var doc trackListXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing track list: %w", err)
	}
	langs := make([]string, 0, len(doc.Tracks))
	for _, t := range doc.Tracks {
		if t.LangCode != "" {
			langs = append(langs, t.LangCode)
		}
	}
	return langs, nil
}

// FormatTime renders seconds as HH:MM:SS,mmm. Hours wrap at 24.
func FormatTime(seconds float64) string {
	ms := int64(seconds * 1000)
	h := ms % 86400000 / 3600000
	m := ms % 3600000 / 60000
	s := ms % 60000 / 1000
	ms = ms % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// charRef matches decimal, hexadecimal, and named character references with an
// optional trailing semicolon.
var charRef = regexp.MustCompile(`&(#(\d+|x[\da-fA-F]+)|[\w.:-]+);?`)

// DecodeHTML resolves character references and turns non-breaking spaces into
// plain spaces. Unknown named references are left as they are.
func DecodeHTML(s string) string {
	out := charRef.ReplaceAllStringFunc(s, func(ref string) string {
		candidate := ref
		if !strings.HasSuffix(candidate, ";") {
			candidate += ";"
		}
		decoded := html.UnescapeString(candidate)
		// A legacy prefix match like "&not" in "&notit;" leaves the rest of
		// the name and the semicolon behind; only whole references count.
		if decoded == candidate || (len(decoded) > 1 && strings.HasSuffix(decoded, ";")) {
			return ref
		}
		return decoded
	})
	return strings.ReplaceAll(out, "\u00a0", " ")
}

// SRT renders the track as a SubRip document, numbering cues from zero.
func (t Track) SRT() string {
	var b strings.Builder
	for i, c := range t {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i, FormatTime(c.Start), FormatTime(c.End()), DecodeHTML(c.Text))
	}
	return b.String()
}
