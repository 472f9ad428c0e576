//go:build !yzma

package engine

import "errors"

// NativeBuilt reports whether this binary carries the FFI loader.
const NativeBuilt = false

// LoadNativeLibrary returns a library that is permanently unavailable in
// builds without the 'yzma' tag.
func LoadNativeLibrary(string) NativeLibrary {
	return unavailableLibrary{}
}

type unavailableLibrary struct{}

var errNoFFI = errors.New("native support not built (missing 'yzma' build tag)")

func (unavailableLibrary) Err() error { return errNoFFI }

func (unavailableLibrary) LoadModel(string, NativeOptions) (any, error) { return nil, errNoFFI }

func (unavailableLibrary) NewContext(any, NativeOptions) (any, error) { return nil, errNoFFI }

func (unavailableLibrary) Generate(any, any, string, NativeOptions) (string, error) {
	return "", errNoFFI
}

func (unavailableLibrary) FreeContext(any) {}

func (unavailableLibrary) FreeModel(any) {}
