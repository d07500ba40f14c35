// Package ui renders what a person at the terminal sees: step lines, transfer
// progress, the final upload URL and error summaries.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"golang.org/x/term"
)

// Options configures a Printer.
type Options struct {
	Quiet bool
	Debug bool
	// Interactive forces progress bars on or off. Nil means detect a terminal.
	Interactive *bool
}

// Printer writes user-facing output.
type Printer struct {
	out      io.Writer
	quiet    bool
	debug    bool
	progress bool

	okStyle   lipgloss.Style
	failStyle lipgloss.Style
	warnStyle lipgloss.Style
	dimStyle  lipgloss.Style
	urlStyle  lipgloss.Style
}

// NewPrinter returns a printer writing to out.
func NewPrinter(out io.Writer, opts Options) *Printer {
	if out == nil {
		out = os.Stderr
	}
	interactive := isTerminal(out)
	if opts.Interactive != nil {
		interactive = *opts.Interactive
	}
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:      out,
		quiet:    opts.Quiet,
		debug:    opts.Debug,
		progress: interactive && !opts.Quiet && !opts.Debug,

		okStyle:   r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		failStyle: r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warnStyle: r.NewStyle().Foreground(lipgloss.Color("3")),
		dimStyle:  r.NewStyle().Faint(true),
		urlStyle:  r.NewStyle().Underline(true),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Step announces a stage of the import.
func (p *Printer) Step(format string, args ...any) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.dimStyle.Render("»"), fmt.Sprintf(format, args...))
}

// Done reports a finished transfer with its size.
func (p *Printer) Done(label string, bytes int64) {
	if p.quiet {
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n", p.okStyle.Render("OK"), label, p.dimStyle.Render(humanize.IBytes(uint64(max(bytes, 0)))))
}

// Warn prints a non-fatal problem.
func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintf(p.out, "%s %s\n", p.warnStyle.Render("WARN"), fmt.Sprintf(format, args...))
}

// Uploaded prints the description page of an uploaded file. It is printed even
// in quiet mode.
func (p *Printer) Uploaded(url string) {
	fmt.Fprintf(p.out, "Uploaded to %s\n", p.urlStyle.Render(url))
}

// Error prints a failed run: a one-line summary and a hint, or with debug
// enabled the full error chain and whatever the remote side sent back.
func (p *Printer) Error(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", p.failStyle.Render("FAIL"), summary(err))
	if hint := Hint(err); hint != "" {
		fmt.Fprintf(p.out, "     %s\n", p.dimStyle.Render(hint))
	}
	if !p.debug {
		return
	}
	fmt.Fprintf(p.out, "category: %s\n", failure.CategoryOf(err))
	fmt.Fprintf(p.out, "error: %+v\n", err)
	if detail, ok := failure.DetailOf(err); ok {
		fmt.Fprintf(p.out, "remote response: %v\n", detail)
	}
}

func summary(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return msg
}

// Hint suggests what to do about err, or "".
func Hint(err error) string {
	switch failure.CategoryOf(err) {
	case failure.CategoryInvalidInput:
		return "see --help for usage"
	case failure.CategoryDependencyMissing:
		return "install ffmpeg, or import without --adaptive-streaming"
	case failure.CategoryContentUnavailable:
		return "the video is private, removed, or blocked in this region"
	case failure.CategoryNoDecodableStream:
		return "no WebM stream is offered; try --adaptive-streaming"
	case failure.CategoryLoginFailed:
		return "check --username and --password, or run 'youtube2mediawiki credentials set'"
	case failure.CategoryTargetExists:
		return "use --overwrite to upload a new version, or --name to pick another file name"
	case failure.CategoryUploadRejected, failure.CategoryFinalizeFailed:
		return "the wiki refused the file; rerun with --debug to see its response"
	case failure.CategoryTransferFailed, failure.CategoryTransport:
		return "network problem; try again later"
	}
	return ""
}
