package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"inferd/internal/common/fsutil"
	"inferd/internal/config"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath  string
	logLevel    string
	logJSON     bool
	modelsDir   string
	libDir      string
	catalogFile string
	prefsFile   string
	networkMode string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "inferd",
		Short:         "On-device inference runtime with interchangeable engines",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", os.Getenv("INFERD_CONFIG"), "Config file (.yaml, .json or .toml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: trace|debug|info|warn|error|off (default info)")
	pf.BoolVar(&opts.logJSON, "log-json", false, "Emit JSON logs instead of console output")
	pf.StringVar(&opts.modelsDir, "models-dir", "", "Directory holding model artifacts")
	pf.StringVar(&opts.libDir, "lib-dir", "", "Directory holding the native inference library")
	pf.StringVar(&opts.catalogFile, "catalog", "", "Extra catalog file merged after the built-in models")
	pf.StringVar(&opts.prefsFile, "prefs", "", "Preferences file (selected model, persona, remote endpoint)")
	pf.StringVar(&opts.networkMode, "network-mode", "", "Network classification: auto|metered|unmetered")

	root.AddCommand(
		newServeCmd(opts),
		newPullCmd(opts),
		newGenerateCmd(opts),
		newModelsCmd(opts),
		newRemoteModelsCmd(opts),
	)
	return root
}

// loadConfig reads the config file when given, applies flag overrides and
// defaults, expands home-relative paths and validates the result.
func (o *rootOptions) loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	var cfg config.Config
	if o.configPath != "" {
		c, err := config.Load(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = c
	}
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	override("log-level", &cfg.LogLevel, o.logLevel)
	override("models-dir", &cfg.ModelsDir, o.modelsDir)
	override("lib-dir", &cfg.LibDir, o.libDir)
	override("catalog", &cfg.CatalogFile, o.catalogFile)
	override("prefs", &cfg.PrefsFile, o.prefsFile)
	override("network-mode", &cfg.NetworkMode, o.networkMode)
	cfg.ApplyDefaults()
	for _, p := range []*string{&cfg.ModelsDir, &cfg.LibDir, &cfg.CatalogFile, &cfg.PrefsFile} {
		if *p == "" {
			continue
		}
		expanded, err := fsutil.ExpandHome(*p)
		if err != nil {
			return cfg, err
		}
		*p = expanded
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newLogger builds the process logger.
func newLogger(level string, json bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	if level == "off" {
		lvl = zerolog.Disabled
	}
	var z zerolog.Logger
	if json {
		z = zerolog.New(os.Stderr)
	} else {
		z = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return z.Level(lvl).With().Timestamp().Logger()
}

// splitCSV splits a comma-separated list, trimming blanks.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
