package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"inferd/internal/common/fsutil"
)

// catalogFile is the on-disk shape of a catalog file.
type catalogFile struct {
	Models []Descriptor `json:"models" yaml:"models" toml:"models"`
}

// LoadFile reads descriptors from a .yaml/.yml, .json or .toml catalog file.
func LoadFile(path string) ([]Descriptor, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var cf catalogFile
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cf)
	case ".json":
		err = json.Unmarshal(b, &cf)
	case ".toml":
		err = toml.Unmarshal(b, &cf)
	default:
		return nil, fmt.Errorf("unsupported catalog extension: %s", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", p, err)
	}
	return cf.Models, nil
}

// LoadDir scans a directory for sideloaded *.gguf files and describes each one
// as a native-engine model without a download URL. The file name is the model
// name. A missing directory yields no entries.
func LoadDir(dir string) ([]Descriptor, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var out []Descriptor
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		out = append(out, Descriptor{
			Name:          name,
			FileName:      name,
			MinValidBytes: 1,
			Backend:       KindNative,
			Description:   "Sideloaded model file.",
		})
	}
	return out, nil
}

// Merge appends extra descriptors to base, skipping names already present and
// local artifacts whose file name is already described.
func Merge(base []Descriptor, extra ...[]Descriptor) []Descriptor {
	seen := make(map[string]bool, len(base))
	files := make(map[string]bool, len(base))
	out := make([]Descriptor, 0, len(base))
	add := func(d Descriptor) {
		seen[d.Name] = true
		if d.FileName != "" {
			files[d.FileName] = true
		}
		out = append(out, d)
	}
	for _, d := range base {
		add(d)
	}
	for _, list := range extra {
		for _, d := range list {
			if seen[d.Name] || (d.FileName != "" && files[d.FileName]) {
				continue
			}
			add(d)
		}
	}
	return out
}
