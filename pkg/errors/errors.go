// Package errors defines the sentinel errors shared across the indexer, the
// per-item error carrier reported by crawlers and workers, and an AppError
// type that maps failures onto HTTP status codes for the lookup API.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrFilesystemAccess  = errors.New("filesystem access error")
	ErrFileRead          = errors.New("file read error")
	ErrInterrupted       = errors.New("interrupted during wait")
	ErrInvalidInput      = errors.New("invalid input")
	ErrNoRoots           = errors.New("no root paths configured")
	ErrPipelineStart     = errors.New("pipeline startup failed")
	ErrIndexNotReady     = errors.New("index not ready")
	ErrRebuildInProgress = errors.New("rebuild already in progress")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrUnavailable       = errors.New("dependency unavailable")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

// ItemError describes a failure isolated to a single directory entry or file.
// Kind is ErrFilesystemAccess, ErrFileRead or ErrInterrupted, or ErrInternal
// when a failure is not tied to the filesystem (a panicking filter, say).
type ItemError struct {
	Kind error
	Path string
	Err  error
}

func (e *ItemError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Path)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind.Error(), e.Path, e.Err.Error())
}

// Unwrap exposes both the kind sentinel and the underlying cause so that
// errors.Is matches either.
func (e *ItemError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// FilesystemAccess reports an unreadable directory entry found while crawling.
func FilesystemAccess(path string, err error) *ItemError {
	return &ItemError{Kind: ErrFilesystemAccess, Path: path, Err: err}
}

// FileRead reports a discovered file that vanished or could not be read.
func FileRead(path string, err error) *ItemError {
	return &ItemError{Kind: ErrFileRead, Path: path, Err: err}
}

// Interrupted reports work abandoned because the run was cancelled.
func Interrupted(path string, err error) *ItemError {
	return &ItemError{Kind: ErrInterrupted, Path: path, Err: err}
}

// KindLabel returns a short, stable label for the kind of err, suitable for
// metric labels and event payloads.
func KindLabel(err error) string {
	switch {
	case errors.Is(err, ErrFilesystemAccess):
		return "filesystem_access"
	case errors.Is(err, ErrFileRead):
		return "file_read"
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	default:
		return "other"
	}
}

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNoRoots):
		return http.StatusBadRequest
	case errors.Is(err, ErrRebuildInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrIndexNotReady), errors.Is(err, ErrUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
