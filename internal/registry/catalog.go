package registry

import (
	"errors"
	"fmt"
)

// Builtin returns the default model catalog. The first entry is the fallback
// for unknown selections.
func Builtin() []Descriptor {
	return []Descriptor{
		{
			Name:          "Gemma 2 2B",
			FileName:      "gemma-2-2b-it-Q4_K_M.gguf",
			URL:           "https://huggingface.co/bartowski/gemma-2-2b-it-GGUF/resolve/main/gemma-2-2b-it-Q4_K_M.gguf",
			MinValidBytes: 1_300_000_000,
			Backend:       KindManaged,
			Description:   "Google Gemma 2. Reliable general assistant.",
			SizeLabel:     "~1.7GB",
		},
		{
			Name:          "TinyLlama 1.1B",
			FileName:      "tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf",
			URL:           "https://huggingface.co/TheBloke/TinyLlama-1.1B-Chat-v1.0-GGUF/resolve/main/tinyllama-1.1b-chat-v1.0.Q4_K_M.gguf",
			MinValidBytes: 500_000_000,
			Backend:       KindManaged,
			Description:   "Small and fast. Good for constrained hosts.",
			SizeLabel:     "~0.7GB",
		},
		{
			Name:          "Moondream2",
			FileName:      "moondream2-text-model-f16.gguf",
			URL:           "https://huggingface.co/moondream/moondream2-gguf/resolve/main/moondream2-text-model-f16.gguf",
			MinValidBytes: 500_000_000,
			Backend:       KindNative,
			Description:   "Vision model. Can describe images, read text in photos.",
			Vision:        true,
			SizeLabel:     "~1.5GB",
		},
		{
			Name:          "SmolVLM 500M",
			FileName:      "smolvlm-500m-instruct-q8_0.gguf",
			URL:           "https://huggingface.co/ggml-org/SmolVLM-500M-Instruct-GGUF/resolve/main/SmolVLM-500M-Instruct-Q8_0.gguf",
			MinValidBytes: 300_000_000,
			Backend:       KindNative,
			Description:   "Tiny vision model. Ultra-fast, fits any device.",
			Vision:        true,
			SizeLabel:     "~0.5GB",
		},
		{
			Name:          "Qwen2-VL 2B",
			FileName:      "qwen2-vl-2b-instruct-q4_k_m.gguf",
			URL:           "https://huggingface.co/Qwen/Qwen2-VL-2B-Instruct-GGUF/resolve/main/qwen2-vl-2b-instruct-q4_k_m.gguf",
			MinValidBytes: 1_000_000_000,
			Backend:       KindNative,
			Description:   "Strong OCR and image understanding.",
			Vision:        true,
			SizeLabel:     "~1.6GB",
		},
		{
			Name:          "Phi-3.5 Mini",
			FileName:      "phi-3.5-mini-instruct-q4_k_m.gguf",
			URL:           "https://huggingface.co/bartowski/Phi-3.5-mini-instruct-GGUF/resolve/main/Phi-3.5-mini-instruct-Q4_K_M.gguf",
			MinValidBytes: 1_500_000_000,
			Backend:       KindNative,
			Description:   "Best reasoning at this size. Text-only.",
			SizeLabel:     "~1.8GB",
		},
		{
			Name:        "Remote",
			Backend:     KindRemote,
			Description: "OpenAI-compatible chat endpoint configured in preferences.",
		},
	}
}

// Catalog is an ordered, validated set of descriptors keyed by name.
type Catalog struct {
	entries []Descriptor
	byName  map[string]int
}

// NewCatalog validates entries and rejects duplicates. At least one entry is required.
func NewCatalog(entries []Descriptor) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, errors.New("catalog is empty")
	}
	c := &Catalog{entries: make([]Descriptor, 0, len(entries)), byName: make(map[string]int, len(entries))}
	for _, d := range entries {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate model name %q", d.Name)
		}
		c.byName[d.Name] = len(c.entries)
		c.entries = append(c.entries, d)
	}
	return c, nil
}

// Lookup returns the descriptor with the given name.
func (c *Catalog) Lookup(name string) (Descriptor, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Descriptor{}, false
	}
	return c.entries[i], true
}

// Find returns the named descriptor, or the first entry when the name is unknown.
func (c *Catalog) Find(name string) Descriptor {
	if d, ok := c.Lookup(name); ok {
		return d
	}
	return c.entries[0]
}

// List returns a copy of all descriptors in catalog order.
func (c *Catalog) List() []Descriptor {
	out := make([]Descriptor, len(c.entries))
	copy(out, c.entries)
	return out
}
