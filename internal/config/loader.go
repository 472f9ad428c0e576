package config

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
)

// Defaults applied by ApplyDefaults when corresponding fields are unset.
const (
	DefaultAddr          = ":8080"
	DefaultModelsDir     = "~/.local/share/inferd/models"
	DefaultPrefsFile     = "~/.config/inferd/prefs.yaml"
	DefaultNetworkMode   = "auto"
	DefaultHeadroomMB    = 900
	DefaultMaxQueueDepth = 32
	DefaultWorkers       = 4
	DefaultLogLevel      = "info"
	DefaultMaxBodyBytes  = 1 << 20
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr" validate:"required"`
	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir" validate:"required"`
	LibDir      string `json:"lib_dir" yaml:"lib_dir" toml:"lib_dir"`
	CatalogFile string `json:"catalog_file" yaml:"catalog_file" toml:"catalog_file"`
	PrefsFile   string `json:"prefs_file" yaml:"prefs_file" toml:"prefs_file" validate:"required"`
	// NetworkMode overrides metered detection: auto, metered or unmetered.
	NetworkMode   string   `json:"network_mode" yaml:"network_mode" toml:"network_mode" validate:"oneof=auto metered unmetered"`
	HeadroomMB    int      `json:"headroom_mb" yaml:"headroom_mb" toml:"headroom_mb" validate:"gte=0"`
	MaxQueueDepth int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth" validate:"gte=1"`
	Workers       int      `json:"workers" yaml:"workers" toml:"workers" validate:"gte=2"`
	LogLevel      string   `json:"log_level" yaml:"log_level" toml:"log_level" validate:"oneof=trace debug info warn error off"`
	CORSOrigins   []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	MaxBodyBytes  int64    `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes" validate:"gte=0"`
	// Engine tuning.
	Threads     int `json:"threads" yaml:"threads" toml:"threads" validate:"gte=0"`
	ContextSize int `json:"context_size" yaml:"context_size" toml:"context_size" validate:"gte=0"`
	GPULayers   int `json:"gpu_layers" yaml:"gpu_layers" toml:"gpu_layers" validate:"gte=0"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = DefaultModelsDir
	}
	if c.PrefsFile == "" {
		c.PrefsFile = DefaultPrefsFile
	}
	if c.NetworkMode == "" {
		c.NetworkMode = DefaultNetworkMode
	}
	if c.HeadroomMB == 0 {
		c.HeadroomMB = DefaultHeadroomMB
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = DefaultMaxBodyBytes
	}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validate checks field constraints. Call after ApplyDefaults.
func (c Config) Validate() error {
	validateOnce.Do(func() { validate = validator.New(validator.WithRequiredStructEnabled()) })
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
