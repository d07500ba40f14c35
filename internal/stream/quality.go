package stream

import (
	"errors"
	"sort"
	"strconv"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/samber/lo"
)

// QualityTable lists known format ids from worst to best; the index is the rank.
type QualityTable []string

// VideoQuality ranks the video-only WebM formats of the adaptive manifest.
var VideoQuality = QualityTable{
	"278", "242", "167", "243", "168", "218", "219", "244", "245", "246",
	"169", "247", "302", "170", "248", "303", "271", "308", "272", "313", "315",
}

// AudioQuality ranks the audio-only WebM formats of the adaptive manifest.
var AudioQuality = QualityTable{"171", "249", "250", "172", "251"}

// Rank returns the position of id, or false when the table does not know it.
func (t QualityTable) Rank(id string) (int, bool) {
	for i, known := range t {
		if known == id {
			return i, true
		}
	}
	return -1, false
}

// Best returns the descriptor with the highest rank. Ids missing from the
// table are ignored.
func (t QualityTable) Best(set map[string]Descriptor) (Descriptor, bool) {
	ranked := lo.Filter(lo.Keys(set), func(id string, _ int) bool {
		_, ok := t.Rank(id)
		return ok
	})
	if len(ranked) == 0 {
		return Descriptor{}, false
	}
	best := lo.MaxBy(ranked, func(a, b string) bool {
		ra, _ := t.Rank(a)
		rb, _ := t.Rank(b)
		return ra > rb
	})
	return set[best], true
}

// Selection is the outcome of ranking a catalog. Audio is nil for progressive
// streams, which already carry sound.
type Selection struct {
	Mode  Mode
	Video Descriptor
	Audio *Descriptor
}

// Select picks the best video stream and, in adaptive mode, the best audio
// stream.
func Select(c *Catalog) (Selection, error) {
	if c == nil || len(c.Video) == 0 {
		return Selection{}, failure.Wrap(failure.CategoryNoDecodableStream, errors.New("no WebM video found"))
	}

	if c.Mode != Adaptive {
		return Selection{Mode: Progressive, Video: c.Video[maxFormatID(lo.Keys(c.Video))]}, nil
	}

	video, ok := VideoQuality.Best(c.Video)
	if !ok {
		return Selection{}, failure.Wrap(failure.CategoryNoDecodableStream, errors.New("no known adaptive WebM video format"))
	}
	audio, ok := AudioQuality.Best(c.Audio)
	if !ok {
		return Selection{}, failure.Wrap(failure.CategoryNoDecodableStream, errors.New("no known adaptive WebM audio format"))
	}
	return Selection{Mode: Adaptive, Video: video, Audio: &audio}, nil
}

// FormatIDs lists the selected ids, video first.
func (s Selection) FormatIDs() []string {
	ids := []string{s.Video.FormatID}
	if s.Audio != nil {
		ids = append(ids, s.Audio.FormatID)
	}
	return ids
}

// maxFormatID orders progressive ids numerically. Ids that are not integers
// sort below every numeric id and lexically among themselves.
func maxFormatID(ids []string) string {
	sort.Slice(ids, func(i, j int) bool {
		return lessFormatID(ids[i], ids[j])
	})
	return ids[len(ids)-1]
}

func lessFormatID(a, b string) bool {
	ai, errA := strconv.Atoi(a)
	bi, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return ai < bi
	case errA == nil:
		return false
	case errB == nil:
		return true
	}
	return a < b
}
