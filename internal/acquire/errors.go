package acquire

import (
	"errors"
	"fmt"

	"github.com/dustin/go-humanize"
)

// ErrTooManyRedirects is returned when the redirect chain exceeds the hop limit.
var ErrTooManyRedirects = errors.New("too many redirects")

// ErrNoSource is returned for descriptors without a download URL.
var ErrNoSource = errors.New("model has no download url")

// HTTPError is a final response with a status other than 200.
type HTTPError struct {
	Status int
	URL    string
}

func (e *HTTPError) Error() string { return fmt.Sprintf("http error %d fetching %s", e.Status, e.URL) }

// InsufficientStorageError reports the free space required and observed.
type InsufficientStorageError struct {
	Need uint64
	Have uint64
}

func (e *InsufficientStorageError) Error() string {
	return fmt.Sprintf("insufficient storage: need %s free, have %s", humanize.IBytes(e.Need), humanize.IBytes(e.Have))
}

// IOError wraps transport and file faults during acquisition.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return "download " + e.Op + ": " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// IsInsufficientStorage reports whether err is a free-space failure.
func IsInsufficientStorage(err error) bool {
	var se *InsufficientStorageError
	return errors.As(err, &se)
}

// IsHTTPError reports whether err is a non-200 final response.
func IsHTTPError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he)
}

// IsIOError reports whether err is a transport or write fault.
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}
