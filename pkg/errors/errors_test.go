package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestItemError_MatchesKindAndCause(t *testing.T) {
	err := FileRead("/data/a.txt", fs.ErrNotExist)

	assert.True(t, errors.Is(err, ErrFileRead))
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.False(t, errors.Is(err, ErrFilesystemAccess))
	assert.Contains(t, err.Error(), "/data/a.txt")
}

func TestItemError_WrappedStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("indexing: %w", FilesystemAccess("/data/locked", fs.ErrPermission))

	var itemErr *ItemError
	assert.True(t, errors.As(wrapped, &itemErr))
	assert.Equal(t, "/data/locked", itemErr.Path)
	assert.True(t, errors.Is(wrapped, fs.ErrPermission))
}

func TestItemError_NilCause(t *testing.T) {
	err := Interrupted("/data/x", nil)
	assert.Equal(t, "interrupted during wait: /data/x", err.Error())
	assert.True(t, errors.Is(err, ErrInterrupted))
}

func TestKindLabel(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{FilesystemAccess("p", nil), "filesystem_access"},
		{FileRead("p", nil), "file_read"},
		{Interrupted("p", nil), "interrupted"},
		{errors.New("boom"), "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindLabel(tt.err))
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInternal, http.StatusTeapot, "short and stout"), http.StatusTeapot},
		{"invalid input", fmt.Errorf("parse: %w", ErrInvalidInput), http.StatusBadRequest},
		{"rebuild busy", ErrRebuildInProgress, http.StatusConflict},
		{"not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}
