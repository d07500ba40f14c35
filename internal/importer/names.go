package importer

import (
	"regexp"
	"strings"
	"text/template"

	"github.com/lvcoi/youtube2mediawiki/internal/youtube"
)

var (
	separatorChars = regexp.MustCompile(`[:/\\]`)
	reservedChars  = regexp.MustCompile(`[<>\[\]|{}$#"/]`)
)

// SafeName turns a video title into a file name the wiki accepts.
func SafeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = separatorChars.ReplaceAllString(s, "_")
	s = reservedChars.ReplaceAllString(s, "-")
	// Two passes, so runs of up to four underscores collapse.
	s = strings.ReplaceAll(s, "__", "_")
	s = strings.ReplaceAll(s, "__", "_")
	return s
}

var descriptionTemplate = template.Must(template.New("description").Delims("<%", "%>").Parse(`=={{int:filedesc}}==
{{Information
|description=<% .Description %>
|source=<% .URL %>
|author=<% .Author %>
|date=<% .Date %>
|permission=
|other_versions=
}}

== {{int:license-header}} ==
{{YouTube CC-BY}}
{{LicenseReview}}

[[Category:Uploaded with youtube2mediawiki]]
<% .WikiCategories %>
`))

// Description renders the wikitext of the file description page.
func Description(info youtube.Info) string {
	var b strings.Builder
	// The template only reads fields of a value type; it cannot fail.
	_ = descriptionTemplate.Execute(&b, info)
	return b.String()
}
