// Package prefs is the read-only view of user preferences the runtime
// consults: which model is selected, the assistant persona that becomes the
// system preamble, and the remote endpoint credentials. Writing preferences
// belongs to whoever owns the settings UI.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"inferd/internal/prompt"
)

// RemoteEndpoint holds the OpenAI-compatible endpoint settings.
type RemoteEndpoint struct {
	URL    string `json:"url" yaml:"url" toml:"url" validate:"omitempty,url"`
	APIKey string `json:"api_key" yaml:"api_key" toml:"api_key"`
	Model  string `json:"model,omitempty" yaml:"model,omitempty" toml:"model,omitempty"`
}

// Configured reports whether both URL and key are present.
func (r RemoteEndpoint) Configured() bool {
	return strings.TrimSpace(r.URL) != "" && strings.TrimSpace(r.APIKey) != ""
}

// Preferences is the on-disk document.
type Preferences struct {
	SelectedModel string         `json:"selected_model" yaml:"selected_model" toml:"selected_model"`
	Persona       prompt.Persona `json:"persona" yaml:"persona" toml:"persona"`
	Remote        RemoteEndpoint `json:"remote" yaml:"remote" toml:"remote"`
}

// Defaults returns preferences with the default persona and nothing selected.
func Defaults() Preferences {
	return Preferences{Persona: prompt.DefaultPersona()}
}

// Source is what the lifecycle controller reads. Implementations must be safe
// for concurrent use.
type Source interface {
	SelectedModel() string
	Preamble() string
	RemoteEndpoint() RemoteEndpoint
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func (p Preferences) Validate() error {
	validateOnce.Do(func() { validate = validator.New(validator.WithRequiredStructEnabled()) })
	return validate.Struct(p)
}

// Parse decodes b according to the extension of name. Missing persona scales
// fall back to the neutral defaults.
func Parse(name string, b []byte) (Preferences, error) {
	p := Defaults()
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return p, err
		}
	case ".json":
		if err := json.Unmarshal(b, &p); err != nil {
			return p, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &p); err != nil {
			return p, err
		}
	default:
		return p, fmt.Errorf("unsupported preferences extension: %s", ext)
	}
	p.fillPersona()
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

func (p *Preferences) fillPersona() {
	d := prompt.DefaultPersona()
	if p.Persona.Personality == "" {
		p.Persona.Personality = d.Personality
	}
	if p.Persona.Mood == "" {
		p.Persona.Mood = d.Mood
	}
	for _, v := range []*int{&p.Persona.Intensity, &p.Persona.Verbosity, &p.Persona.Formality, &p.Persona.Humor} {
		if *v == 0 {
			*v = 5
		}
	}
}

// LoadFile reads and parses path.
func LoadFile(path string) (Preferences, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(path, b)
}

// Static is an in-memory Source.
type Static struct {
	mu sync.RWMutex
	p  Preferences
}

func NewStatic(p Preferences) *Static { return &Static{p: p} }

func (s *Static) SelectedModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p.SelectedModel
}

func (s *Static) Preamble() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return prompt.SystemPrompt(s.p.Persona)
}

func (s *Static) RemoteEndpoint() RemoteEndpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p.Remote
}

// Get returns a copy of the current preferences.
func (s *Static) Get() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.p
}

// Set replaces the preferences.
func (s *Static) Set(p Preferences) {
	s.mu.Lock()
	s.p = p
	s.mu.Unlock()
}
