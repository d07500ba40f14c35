package youtube

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/kkdai/youtube/v2"
	"github.com/samber/lo"
)

// Info is what the file description page is built from.
type Info struct {
	ID          string
	URL         string
	Title       string
	Description string
	// Date is the publication day, YYYY-MM-DD.
	Date       string
	Author     string
	Categories []string
	Keywords   []string
	License    string
}

// WikiCategories renders one [[Category:X]] line per category.
func (i Info) WikiCategories() string {
	lines := lo.Map(i.Categories, func(c string, _ int) string {
		return "[[Category:" + c + "]]"
	})
	return strings.Join(lines, "\n")
}

func infoFromVideo(v *youtube.Video) Info {
	info := Info{
		Title:       v.Title,
		Description: v.Description,
		Author:      v.Author,
	}
	if v.ChannelID != "" {
		info.Author = "https://www.youtube.com/channel/" + v.ChannelID
	}
	if !v.PublishDate.IsZero() {
		info.Date = v.PublishDate.Format("2006-01-02")
	}
	return info
}

// mergePage fills in what only the watch page carries.
func (i *Info) mergePage(page string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return
	}
	if i.Title == "" {
		i.Title = strings.TrimSpace(doc.Find(`meta[name="title"]`).AttrOr("content", ""))
	}
	if kw, ok := doc.Find(`meta[name="keywords"]`).Attr("content"); ok && len(i.Keywords) == 0 {
		i.Keywords = lo.Compact(lo.Map(strings.Split(kw, ","), func(s string, _ int) string {
			return strings.TrimSpace(s)
		}))
	}
	doc.Find(`meta[itemprop="genre"]`).Each(func(_ int, s *goquery.Selection) {
		if g := strings.TrimSpace(s.AttrOr("content", "")); g != "" {
			i.Categories = append(i.Categories, g)
		}
	})
	i.Categories = lo.Uniq(i.Categories)
	if lic := license(doc); lic != "" {
		i.License = lic
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// license returns the text that follows a "License:" heading.
func license(doc *goquery.Document) string {
	heading := doc.Find("h4").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.TrimSpace(s.Text()) == "License:"
	}).First()
	if heading.Length() == 0 {
		return ""
	}
	text := heading.NextAll().First().Text()
	if strings.TrimSpace(text) == "" {
		text = strings.TrimPrefix(strings.TrimSpace(heading.Parent().Text()), "License:")
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

var watchIDPattern = regexp.MustCompile(`\?v=([^&]+)`)

// ParseID extracts the video id from a watch URL. Other inputs are handed to
// the id extractor of the player client and returned unchanged when it cannot
// make sense of them either.
func ParseID(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := watchIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if strings.Contains(raw, "/") {
		if id, err := youtube.ExtractVideoID(raw); err == nil {
			return id
		}
	}
	return raw
}
