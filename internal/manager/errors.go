package manager

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrCellularConsentRequired is returned when an artifact must be
	// downloaded but the network is metered. No request was made.
	ErrCellularConsentRequired = errors.New("download requires consent on a metered network")
	// ErrInitializing means a backend is being constructed.
	ErrInitializing = errors.New("model is initializing")
	// ErrNoModelLoaded means no backend is installed.
	ErrNoModelLoaded = errors.New("no model loaded")
	// ErrRemoteNotConfigured means the remote endpoint lacks a URL or key.
	ErrRemoteNotConfigured = errors.New("remote endpoint not configured")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("manager closed")
)

// DownloadingError reports that the artifact is still being acquired.
type DownloadingError struct{ Percent int }

func (e *DownloadingError) Error() string { return fmt.Sprintf("downloading model: %d%%", e.Percent) }

func (e *DownloadingError) StatusCode() int { return http.StatusServiceUnavailable }

// IsDownloading reports whether err is a DownloadingError.
func IsDownloading(err error) bool {
	var de *DownloadingError
	return errors.As(err, &de)
}

// IsNotReady reports whether err is one of the transient "no backend" states.
func IsNotReady(err error) bool {
	return IsDownloading(err) || errors.Is(err, ErrInitializing) || errors.Is(err, ErrNoModelLoaded)
}

// tooBusyError signals queue overflow for 429 mapping.
type tooBusyError struct{ depth int }

func (e tooBusyError) Error() string { return fmt.Sprintf("too busy: %d requests queued", e.depth) }

// IsTooBusy reports whether err indicates backpressure (return 429).
func IsTooBusy(err error) bool {
	var tb tooBusyError
	return errors.As(err, &tb)
}

// modelNotFoundError is returned when a requested name is not in the catalog.
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound returns an error for a name missing from the catalog.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether the error indicates a missing model name.
func IsModelNotFound(err error) bool {
	var nf modelNotFoundError
	return errors.As(err, &nf)
}

// busyOpError is returned when the background pool cannot take more work.
type busyOpError struct{ op string }

func (e busyOpError) Error() string { return "lifecycle pool busy: " + e.op }

func (e busyOpError) StatusCode() int { return http.StatusTooManyRequests }
