package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// Config represents the JSON configuration file structure.
type Config struct {
	General GeneralConfig `json:"general"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics MetricsConfig `json:"metrics"`
}

// GeneralConfig holds general application settings.
type GeneralConfig struct {
	DataDir   string `json:"data_dir"`
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// RuntimeConfig holds transaction execution settings.
type RuntimeConfig struct {
	SkipSigVerify bool   `json:"skip_sig_verify"`
	Keypair       string `json:"keypair"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Namespace string `json:"namespace"`
	Process   bool   `json:"process"`
}

// defaultConfigPath returns ~/.config/x1-anchor/config.json.
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".config", "x1-anchor", "config.json")
}

// defaultConfig returns a Config with default values.
func defaultConfig() Config {
	dataDir := "x1-anchor-data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".local", "share", "x1-anchor")
	}
	return Config{
		General: GeneralConfig{
			DataDir:   dataDir,
			LogLevel:  "info",
			LogFormat: "text",
		},
		Metrics: MetricsConfig{
			Namespace: "anchor",
		},
	}
}

// loadConfig loads configuration from the specified JSON file.
// If the file doesn't exist, it returns the default configuration.
func loadConfig(path string, log logrus.FieldLogger) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.WithField("path", path).Debug("Config file not found, using defaults")
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	log.WithField("path", path).Debug("Loaded configuration")
	return cfg, nil
}

// applyFlagOverrides lets flags that were explicitly set on the command line
// override config file values.
func applyFlagOverrides(cfg *Config, flags *pflag.FlagSet) {
	if f := flags.Lookup("data-dir"); f != nil && f.Changed {
		cfg.General.DataDir = f.Value.String()
	}
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		cfg.General.LogLevel = f.Value.String()
	}
	if f := flags.Lookup("log-format"); f != nil && f.Changed {
		cfg.General.LogFormat = f.Value.String()
	}
	if f := flags.Lookup("skip-sig-verify"); f != nil && f.Changed {
		cfg.Runtime.SkipSigVerify = f.Value.String() == "true"
	}
}
