package mediawiki

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/lvcoi/youtube2mediawiki/internal/failure"
	"github.com/lvcoi/youtube2mediawiki/internal/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// ChunkSize is the size of every upload chunk but the last.
const ChunkSize int64 = 5 * 1024 * 1024

// State is the position of an upload session.
type State int

const (
	StateNotStarted State = iota
	StateChunkInFlight
	StateChunkAcknowledged
	StateFinalizing
	StateDone
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateChunkInFlight:
		return "chunk-in-flight"
	case StateChunkAcknowledged:
		return "chunk-acknowledged"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateErrored:
		return "errored"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

var transitions = map[State][]State{
	StateNotStarted:        {StateChunkInFlight, StateErrored},
	StateChunkInFlight:     {StateChunkAcknowledged, StateErrored},
	StateChunkAcknowledged: {StateChunkInFlight, StateFinalizing, StateErrored},
	StateFinalizing:        {StateDone, StateErrored},
}

// Session is the state of one resumable upload.
type Session struct {
	Filename  string
	TotalSize int64
	Offset    int64
	FileKey   string
	Token     string
	State     State
}

// Event is reported to an Observer on every state change.
type Event struct {
	From, To State
	Session  Session
	// Sent is the number of bytes acknowledged by the transition, zero unless
	// To is StateChunkAcknowledged.
	Sent int64
}

// Observer receives upload events. It must not block.
type Observer func(Event)

// UploadRequest describes one file upload.
type UploadRequest struct {
	// Path is the local file.
	Path string
	// Name is the target file name; empty means the base name of Path.
	Name    string
	Comment string
	Text    string
}

// Uploader sends files through the chunked upload protocol.
type Uploader struct {
	client         *Client
	fs             afero.Fs
	chunkSize      int64
	ignoreWarnings bool
	overwrite      bool
	observer       Observer
}

// UploaderOption configures an Uploader.
type UploaderOption func(*Uploader)

// IgnoreWarnings sends ignorewarnings=1 with every upload call.
func IgnoreWarnings(v bool) UploaderOption {
	return func(u *Uploader) { u.ignoreWarnings = v }
}

// Overwrite allows replacing an existing file page.
func Overwrite(v bool) UploaderOption {
	return func(u *Uploader) { u.overwrite = v }
}

// WithObserver installs an event callback.
func WithObserver(o Observer) UploaderOption {
	return func(u *Uploader) { u.observer = o }
}

// WithChunkSize changes the chunk size. Only tests should need this.
func WithChunkSize(n int64) UploaderOption {
	return func(u *Uploader) {
		if n > 0 {
			u.chunkSize = n
		}
	}
}

// NewUploader returns an uploader reading local files from fs.
func NewUploader(client *Client, fs afero.Fs, opts ...UploaderOption) *Uploader {
	u := &Uploader{client: client, fs: fs, chunkSize: ChunkSize}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// TargetName normalizes an upload name: a leading "File:" prefix and a
// trailing ".webm", in any case, are dropped and ".webm" is appended. An empty
// name falls back to the base name of path.
func TargetName(name, path string) string {
	if name == "" {
		name = filepath.Base(path)
	}
	if len(name) >= 5 && strings.EqualFold(name[:5], "file:") {
		name = name[5:]
	}
	if len(name) >= 5 && strings.EqualFold(name[len(name)-5:], ".webm") {
		name = name[:len(name)-5]
	}
	return name + ".webm"
}

// PageName is the description page title of a file.
func PageName(filename string) string {
	return "File:" + strings.ReplaceAll(filename, " ", "_")
}

// Upload sends the file and returns the URL of its description page.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (string, error) {
	s := &Session{Filename: TargetName(req.Name, req.Path), State: StateNotStarted}
	entry := log.WithField("file", s.Filename)

	url, err := u.run(ctx, s, req, entry)
	if err != nil {
		_ = u.advance(s, StateErrored, 0)
		entry.WithError(err).WithField("offset", s.Offset).Debug("upload aborted")
		return "", err
	}
	return url, nil
}

func (u *Uploader) run(ctx context.Context, s *Session, req UploadRequest, entry *logrus.Entry) (string, error) {
	token, err := u.client.EditToken(ctx, PageName(s.Filename), u.overwrite)
	if err != nil {
		return "", err
	}
	s.Token = token

	f, err := u.fs.Open(req.Path)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat upload source: %w", err)
	}
	s.TotalSize = fi.Size()

	buf := make([]byte, u.chunkSize)
	for {
		n, err := f.ReadAt(buf, s.Offset)
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read chunk at %d: %w", s.Offset, err)
		}
		if err := u.sendChunk(ctx, s, req, buf[:n], entry); err != nil {
			return "", err
		}
		if s.Offset >= s.TotalSize {
			break
		}
	}
	return u.finalize(ctx, s, req, entry)
}

func (u *Uploader) baseFields(s *Session) Fields {
	f := Fields{
		"filename": s.Filename,
		"filesize": strconv.FormatInt(s.TotalSize, 10),
		"offset":   strconv.FormatInt(s.Offset, 10),
		"token":    s.Token,
	}
	if u.ignoreWarnings {
		f["ignorewarnings"] = "1"
	}
	return f
}

func (u *Uploader) sendChunk(ctx context.Context, s *Session, req UploadRequest, chunk []byte, entry *logrus.Entry) error {
	first := s.Offset == 0
	fields := u.baseFields(s)
	if first {
		fields["comment"] = req.Comment
	} else {
		fields["filekey"] = s.FileKey
	}

	if err := u.advance(s, StateChunkInFlight, 0); err != nil {
		return err
	}
	entry.WithFields(logrus.Fields{"offset": s.Offset, "size": len(chunk)}).Debug("sending chunk")
	r, err := u.client.API(ctx, "upload", fields, File{
		Field: "chunk",
		Name:  "chunk-" + strconv.FormatInt(s.Offset, 10) + ".bin",
		Data:  chunk,
	})
	if err != nil {
		return err
	}
	if err := chunkError(r, s.Offset); err != nil {
		return err
	}

	key := r.String("upload", "filekey")
	switch {
	case first && key == "":
		if warnings := r.Object("upload", "warnings"); warnings != nil {
			return failure.WithDetail(failure.CategoryUploadRejected,
				fmt.Errorf("upload refused with warnings %s (use --ignore-warnings to proceed)", warningNames(warnings)), r)
		}
		return failure.WithDetail(failure.CategoryUploadRejected, errors.New("upload failed: no file key returned"), r)
	case first:
		s.FileKey = key
	case key != "" && key != s.FileKey:
		entry.WithFields(logrus.Fields{"old": s.FileKey, "new": key}).Warn("file key changed during upload")
		s.FileKey = key
	}

	s.Offset += u.chunkSize
	return u.advance(s, StateChunkAcknowledged, int64(len(chunk)))
}

func chunkError(r Response, offset int64) error {
	if apiErr := r.Err(); apiErr != nil {
		return failure.WithDetail(failure.CategoryUploadRejected,
			fmt.Errorf("upload failed at offset %d: %w", offset, apiErr), r)
	}
	if code, text, ok := r.Status(); ok && code != 200 {
		return failure.WithDetail(failure.CategoryUploadRejected,
			fmt.Errorf("upload failed at offset %d: %s", offset, text), r)
	}
	if r.Has("upload", "error") {
		return failure.WithDetail(failure.CategoryUploadRejected,
			fmt.Errorf("upload failed at offset %d: %s", offset, r.String("upload", "error")), r)
	}
	return nil
}

func warningNames(w Response) string {
	return strings.Join(slices.Sorted(maps.Keys(w)), ", ")
}

func (u *Uploader) finalize(ctx context.Context, s *Session, req UploadRequest, entry *logrus.Entry) (string, error) {
	if err := u.advance(s, StateFinalizing, 0); err != nil {
		return "", err
	}
	fields := Fields{
		"filename": s.Filename,
		"filekey":  s.FileKey,
		"token":    s.Token,
		"text":     req.Text,
		"comment":  req.Comment,
	}
	if u.ignoreWarnings {
		fields["ignorewarnings"] = "1"
	}
	entry.Debug("finalizing upload")
	r, err := u.client.API(ctx, "upload", fields)
	if err != nil {
		return "", err
	}
	if r.String("upload", "result") != "Success" {
		msg := "upload failed"
		if apiErr := r.Err(); apiErr != nil {
			msg = apiErr.Error()
		} else if _, text, ok := r.Status(); ok {
			msg = text
		} else if result := r.String("upload", "result"); result != "" {
			msg = "result " + result
		}
		return "", failure.WithDetail(failure.CategoryFinalizeFailed, fmt.Errorf("finalize %s: %s", s.Filename, msg), r)
	}
	if err := u.advance(s, StateDone, 0); err != nil {
		return "", err
	}
	return r.String("upload", "imageinfo", "descriptionurl"), nil
}

func (u *Uploader) advance(s *Session, to State, sent int64) error {
	from := s.State
	if from == to && to == StateErrored {
		return nil
	}
	allowed := false
	for _, next := range transitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("upload session: invalid transition %s -> %s", from, to)
	}
	s.State = to
	if u.observer != nil {
		u.observer(Event{From: from, To: to, Session: *s, Sent: sent})
	}
	return nil
}
