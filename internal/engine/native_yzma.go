//go:build yzma

package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hybridgroup/yzma/pkg/llama"
)

// NativeBuilt reports whether this binary carries the FFI loader.
const NativeBuilt = true

var (
	yzmaOnce sync.Once
	yzmaLib  *yzmaLibrary
)

// LoadNativeLibrary loads the llama.cpp shared libraries from libDir. The load
// happens once per process; later calls return the same library, including
// a failed one.
func LoadNativeLibrary(libDir string) NativeLibrary {
	yzmaOnce.Do(func() {
		yzmaLib = &yzmaLibrary{}
		defer func() {
			if r := recover(); r != nil {
				yzmaLib.err = fmt.Errorf("load %s: panic: %v", libDir, r)
			}
		}()
		if libDir == "" {
			yzmaLib.err = errors.New("native library directory not configured")
			return
		}
		if err := llama.Load(libDir); err != nil {
			yzmaLib.err = fmt.Errorf("load %s: %w", libDir, err)
			return
		}
		llama.LogSet(llama.LogSilent())
		llama.Init()
	})
	return yzmaLib
}

type yzmaLibrary struct {
	err error
}

func (l *yzmaLibrary) Err() error { return l.err }

func (l *yzmaLibrary) LoadModel(path string, opts NativeOptions) (any, error) {
	params := llama.ModelDefaultParams()
	params.NGpuLayers = int32(opts.GPULayers)
	model, err := llama.ModelLoadFromFile(path, params)
	if err != nil {
		return nil, err
	}
	return model, nil
}

func (l *yzmaLibrary) NewContext(model any, opts NativeOptions) (any, error) {
	m, ok := model.(llama.Model)
	if !ok {
		return nil, errors.New("not a model reference")
	}
	params := llama.ContextDefaultParams()
	params.NCtx = uint32(opts.ContextSize)
	params.NBatch = uint32(opts.BatchSize)
	params.Embeddings = 0
	lctx, err := llama.InitFromModel(m, params)
	if err != nil {
		return nil, err
	}
	return lctx, nil
}

func (l *yzmaLibrary) Generate(model, ctx any, prompt string, opts NativeOptions) (string, error) {
	m, ok := model.(llama.Model)
	if !ok {
		return "", errors.New("not a model reference")
	}
	lctx, ok := ctx.(llama.Context)
	if !ok {
		return "", errors.New("not a context reference")
	}
	// Each call starts from an empty KV cache.
	mem, err := llama.GetMemory(lctx)
	if err != nil {
		return "", err
	}
	if err := llama.MemoryClear(mem, true); err != nil {
		return "", err
	}

	vocab := llama.ModelGetVocab(m)
	tokens := llama.Tokenize(vocab, prompt, true, true)
	if len(tokens) == 0 {
		return "", errors.New("tokenization produced no tokens")
	}
	if len(tokens) > opts.BatchSize {
		return "", fmt.Errorf("prompt too long: %d tokens exceeds batch size %d", len(tokens), opts.BatchSize)
	}

	sp := llama.DefaultSamplerParams()
	sp.Temp = opts.Temperature
	sp.TopK = int32(opts.TopK)
	sp.TopP = opts.TopP
	sampler := llama.NewSampler(m, llama.DefaultSamplers, sp)
	defer llama.SamplerFree(sampler)

	if _, err := llama.Decode(lctx, llama.BatchGetOne(tokens)); err != nil {
		return "", fmt.Errorf("prompt decode: %w", err)
	}

	var out []byte
	buf := make([]byte, 256)
	deadline := time.Now().Add(opts.TimeBudget)
	for i := 0; i < opts.MaxTokens; i++ {
		if time.Now().After(deadline) {
			break
		}
		token := llama.SamplerSample(sampler, lctx, -1)
		if llama.VocabIsEOG(vocab, token) {
			break
		}
		if n := llama.TokenToPiece(vocab, token, buf, 0, true); n > 0 {
			out = append(out, buf[:n]...)
		}
		if _, err := llama.Decode(lctx, llama.BatchGetOne([]llama.Token{token})); err != nil {
			break
		}
	}
	return string(out), nil
}

func (l *yzmaLibrary) FreeContext(ctx any) {
	if lctx, ok := ctx.(llama.Context); ok {
		llama.Free(lctx)
	}
}

func (l *yzmaLibrary) FreeModel(model any) {
	if m, ok := model.(llama.Model); ok {
		llama.ModelFree(m)
	}
}
