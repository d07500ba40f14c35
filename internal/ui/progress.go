package ui

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Bar is a byte counter shown while data moves. Writes count bytes.
type Bar interface {
	io.Writer
	Add64(n int64) error
	Finish() error
}

type nopBar struct{}

func (nopBar) Write(b []byte) (int, error) { return len(b), nil }
func (nopBar) Add64(int64) error           { return nil }
func (nopBar) Finish() error               { return nil }

// Progress returns a bar for a transfer of size bytes. A size below one means
// unknown and renders a spinner. Without a terminal the bar discards updates.
func (p *Printer) Progress(label string, size int64) Bar {
	if !p.progress {
		return nopBar{}
	}
	if size < 1 {
		size = -1
	}
	return progressbar.NewOptions64(size,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription(label),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
}
