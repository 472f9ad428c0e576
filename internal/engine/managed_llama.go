//go:build llama

package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	llama "github.com/go-skynet/go-llama.cpp"
)

// ManagedBuilt reports whether this binary links the managed runtime.
const ManagedBuilt = true

// Managed wraps a go-llama.cpp model loaded once with fixed options.
type Managed struct {
	mu     sync.Mutex
	model  *llama.LLama
	opts   ManagedOptions
	tokens atomic.Int64
	closed atomic.Bool
}

// NewManaged loads the model at path. Load failures and panics from the
// runtime are returned as ErrConstruction.
func NewManaged(path string, opts ManagedOptions) (m *Managed, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, constructionErr("managed runtime panic", fmt.Errorf("%v", r))
		}
	}()
	if strings.TrimSpace(path) == "" {
		return nil, constructionErr("managed", errors.New("model path is empty"))
	}
	opts = opts.withDefaults()
	model, err := llama.New(path, llama.SetContext(opts.ContextSize))
	if err != nil {
		return nil, constructionErr("managed load", err)
	}
	m = &Managed{model: model, opts: opts}
	// Partial results are accepted and counted but not surfaced.
	model.SetTokenCallback(func(string) bool {
		m.tokens.Add(1)
		return true
	})
	return m, nil
}

func (m *Managed) Generate(ctx context.Context, prompt string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model == nil {
		return Result{}, ErrNotReady
	}
	return timed(func() (string, error) {
		text, err := m.model.Predict(prompt,
			llama.SetTokens(m.opts.MaxTokens),
			llama.SetThreads(m.opts.Threads),
			llama.SetTopK(m.opts.TopK),
			llama.SetTemperature(m.opts.Temperature),
		)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		return strings.TrimSpace(text), nil
	})
}

// IsReady does not wait for a running generation.
func (m *Managed) IsReady() bool { return !m.closed.Load() }

// Tokens returns the number of tokens streamed by the runtime so far.
func (m *Managed) Tokens() int64 { return m.tokens.Load() }

// Close waits for a running generation, then frees the model.
func (m *Managed) Close() error {
	m.closed.Store(true)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.model != nil {
		m.model.Free()
		m.model = nil
	}
	return nil
}
