//go:build !llama

package engine

import "context"

// ManagedBuilt reports whether this binary links the managed runtime.
const ManagedBuilt = false

// Managed is a placeholder that never becomes ready in builds without the
// 'llama' tag. It keeps default builds CGO-free.
type Managed struct{}

// NewManaged always fails with ErrRuntimeUnavailable in this build.
func NewManaged(string, ManagedOptions) (*Managed, error) {
	return nil, ErrRuntimeUnavailable
}

func (*Managed) Generate(context.Context, string) (Result, error) {
	return Result{}, ErrRuntimeUnavailable
}

func (*Managed) IsReady() bool { return false }

func (*Managed) Close() error { return nil }
