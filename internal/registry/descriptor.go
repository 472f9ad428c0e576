package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Kind selects the engine variant a descriptor is served by.
type Kind string

const (
	KindManaged Kind = "managed"
	KindNative  Kind = "native"
	KindRemote  Kind = "remote"
)

// Local reports whether the kind needs an on-disk artifact.
func (k Kind) Local() bool { return k == KindManaged || k == KindNative }

// Label is the short engine tag shown next to a model name.
func (k Kind) Label() string {
	switch k {
	case KindManaged:
		return "[managed]"
	case KindNative:
		return "[llama.cpp]"
	case KindRemote:
		return "[remote]"
	default:
		return "[" + string(k) + "]"
	}
}

// Descriptor is the immutable description of one selectable model.
type Descriptor struct {
	// Display name, also the lookup key.
	Name string `json:"name" yaml:"name" toml:"name" validate:"required"`
	// Artifact file name under the models directory. Unused for remote.
	FileName string `json:"file_name,omitempty" yaml:"file_name,omitempty" toml:"file_name,omitempty" validate:"required_unless=Backend remote,excludesall=/\\"`
	// Source URL of the artifact. Sideloaded files may omit it.
	URL string `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty" validate:"omitempty,url"`
	// Files smaller than this are treated as corrupt.
	MinValidBytes int64 `json:"min_valid_bytes,omitempty" yaml:"min_valid_bytes,omitempty" toml:"min_valid_bytes,omitempty" validate:"gte=0"`
	Backend       Kind  `json:"backend" yaml:"backend" toml:"backend" validate:"required,oneof=managed native remote"`

	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Vision      bool   `json:"vision,omitempty" yaml:"vision,omitempty" toml:"vision,omitempty"`
	SizeLabel   string `json:"size_label,omitempty" yaml:"size_label,omitempty" toml:"size_label,omitempty"`
	// Overrides the computed free-space margin for this artifact when non-zero.
	RequiredFreeBytes uint64 `json:"required_free_bytes,omitempty" yaml:"required_free_bytes,omitempty" toml:"required_free_bytes,omitempty"`
}

// FormattedName renders the name with vision badge, engine tag and size label.
func (d Descriptor) FormattedName() string {
	var b strings.Builder
	b.WriteString(d.Name)
	if d.Vision {
		b.WriteString(" (vision)")
	}
	b.WriteString(" ")
	b.WriteString(d.Backend.Label())
	if d.SizeLabel != "" {
		b.WriteString(" ")
		b.WriteString(d.SizeLabel)
	}
	return b.String()
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New(validator.WithRequiredStructEnabled()) })
	return validate
}

// Validate checks the descriptor's field constraints.
func (d Descriptor) Validate() error {
	if err := validatorInstance().Struct(d); err != nil {
		return fmt.Errorf("descriptor %q: %w", d.Name, err)
	}
	return nil
}
