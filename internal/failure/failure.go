// Package failure carries the error taxonomy of an import run. Every error that
// aborts an import is wrapped with a Category so the CLI can pick an exit code
// and a message without string matching.
package failure

import (
	"errors"
	"fmt"
)

// Category names the class of failure.
type Category string

const (
	CategoryUnknown            Category = "unknown"
	CategoryInvalidInput       Category = "invalid_input"
	CategoryContentUnavailable Category = "content_unavailable"
	CategoryNoDecodableStream  Category = "no_decodable_stream"
	CategoryDependencyMissing  Category = "dependency_missing"
	CategoryTransferFailed     Category = "transfer_failed"
	CategoryRemuxFailed        Category = "remux_failed"
	CategoryLoginFailed        Category = "login_failed"
	CategoryTargetExists       Category = "target_exists"
	CategoryUploadRejected     Category = "upload_rejected"
	CategoryFinalizeFailed     Category = "finalize_failed"
	CategoryEditRejected       Category = "edit_rejected"
	CategoryTransport          Category = "transport_error"
)

// CategorizedError attaches a Category and an optional remote diagnostic payload
// to an underlying error.
type CategorizedError struct {
	Category Category
	Err      error
	// Detail holds whatever the remote side sent back, if anything. It is only
	// printed in debug mode.
	Detail any
}

func (e CategorizedError) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return e.Err.Error()
}

func (e CategorizedError) Unwrap() error {
	return e.Err
}

// Wrap tags err with category. A nil err stays nil.
func Wrap(category Category, err error) error {
	if err == nil {
		return nil
	}
	return CategorizedError{Category: category, Err: err}
}

// Wrapf is Wrap over fmt.Errorf.
func Wrapf(category Category, format string, args ...any) error {
	return CategorizedError{Category: category, Err: fmt.Errorf(format, args...)}
}

// WithDetail tags err with category and keeps the remote payload for diagnostics.
func WithDetail(category Category, err error, detail any) error {
	if err == nil {
		return nil
	}
	return CategorizedError{Category: category, Err: err, Detail: detail}
}

// CategoryOf returns the outermost category attached to err.
func CategoryOf(err error) Category {
	if err == nil {
		return ""
	}
	var ce CategorizedError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return CategoryUnknown
}

// Is reports whether err carries category anywhere in its chain.
func Is(err error, category Category) bool {
	for err != nil {
		var ce CategorizedError
		if !errors.As(err, &ce) {
			return false
		}
		if ce.Category == category {
			return true
		}
		err = ce.Err
	}
	return false
}

// DetailOf returns the first remote diagnostic payload found in the chain.
func DetailOf(err error) (any, bool) {
	for err != nil {
		var ce CategorizedError
		if !errors.As(err, &ce) {
			return nil, false
		}
		if ce.Detail != nil {
			return ce.Detail, true
		}
		err = ce.Err
	}
	return nil, false
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch CategoryOf(err) {
	case CategoryInvalidInput:
		return 2
	case CategoryDependencyMissing:
		return 3
	case CategoryContentUnavailable, CategoryNoDecodableStream:
		return 4
	case CategoryTransferFailed, CategoryTransport:
		return 5
	case CategoryRemuxFailed:
		return 6
	case CategoryLoginFailed, CategoryTargetExists:
		return 7
	case CategoryUploadRejected, CategoryFinalizeFailed, CategoryEditRejected:
		return 8
	default:
		return 1
	}
}
