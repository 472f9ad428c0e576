// Package engine defines the contract every inference engine satisfies and the
// three adapters behind it: a managed runtime (go-llama.cpp, cgo), a native
// library reached over FFI (yzma/purego), and a remote chat-completions API.
//
// Generate is synchronous. Running it on a worker and delivering the result on
// a separate callback context is the dispatcher's job, so the handoff is the
// same for every variant.
//
// Build tags:
//
//   - llama: links go-llama.cpp for the managed engine (requires libllama at link time).
//   - yzma: enables the FFI native library loader.
//
// Without a tag the corresponding constructor reports the runtime unavailable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backend is the uniform engine contract.
type Backend interface {
	// Generate runs one completion. It blocks until the engine returns.
	Generate(ctx context.Context, prompt string) (Result, error)
	// IsReady is a cheap side-effect-free probe.
	IsReady() bool
	// Close releases engine resources. Safe to call more than once; IsReady is
	// false afterwards.
	Close() error
}

// Result is a completed generation.
type Result struct {
	Text    string
	Elapsed time.Duration
}

var (
	// ErrConstruction wraps any failure to build an engine from an artifact.
	ErrConstruction = errors.New("backend construction failed")
	// ErrRuntimeUnavailable means the managed runtime was not compiled in.
	ErrRuntimeUnavailable = errors.New("managed runtime not built (missing 'llama' build tag)")
	// ErrLibraryUnavailable means the native library could not be loaded at
	// process start. It is permanent for the life of the process.
	ErrLibraryUnavailable = errors.New("native library unavailable")
	// ErrNotReady is returned by Generate on a closed or unconfigured engine.
	ErrNotReady = errors.New("backend not ready")
	// ErrEmptyResponse is a 200 reply with no choices.
	ErrEmptyResponse = errors.New("remote returned no choices")
)

// RemoteAPIError is a non-200 reply from the remote chat API.
type RemoteAPIError struct {
	Status int
	Body   string
}

func (e *RemoteAPIError) Error() string { return fmt.Sprintf("API error %d: %s", e.Status, e.Body) }

// IsConstruction reports whether err came from building an engine.
func IsConstruction(err error) bool {
	return errors.Is(err, ErrConstruction) || errors.Is(err, ErrRuntimeUnavailable) || errors.Is(err, ErrLibraryUnavailable)
}

// IsRemoteAPIError reports whether err is an HTTP-layer fault from the remote API.
func IsRemoteAPIError(err error) bool {
	var re *RemoteAPIError
	return errors.As(err, &re)
}

func constructionErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrConstruction, what, err)
}

// timed runs fn and stamps the elapsed time on its result.
func timed(fn func() (string, error)) (Result, error) {
	start := time.Now()
	text, err := fn()
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Elapsed: time.Since(start)}, nil
}
