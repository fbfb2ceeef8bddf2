// Package config persists engine-wide configuration that must survive the
// destruction and recreation of a Debugger instance, namely the global
// signal-disposition table (spec §3, "Signal disposition").
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDirName  = ".dbgcore"
	configFileName = "signals.yml"
)

// SignalDisposition mirrors dbg.SignalDisposition without importing pkg/dbg,
// so that pkg/dbg can depend on this package without a cycle.
type SignalDisposition struct {
	Catch bool `yaml:"catch"`
	Pass  bool `yaml:"pass"`
}

// SignalConfig is the on-disk shape of the global signal-disposition table,
// keyed by signal number.
type SignalConfig struct {
	Dispositions map[int]SignalDisposition `yaml:"dispositions"`
}

// ConfigDir returns the directory configuration files are stored under,
// creating it if necessary.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, configDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

func configFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadSignalConfig reads the persisted signal-disposition table. A missing
// file is not an error; it yields an empty table.
func LoadSignalConfig() (*SignalConfig, error) {
	path, err := configFilePath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &SignalConfig{Dispositions: map[int]SignalDisposition{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading signal config: %w", err)
	}
	var cfg SignalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding signal config: %w", err)
	}
	if cfg.Dispositions == nil {
		cfg.Dispositions = map[int]SignalDisposition{}
	}
	return &cfg, nil
}

// SaveSignalConfig persists the signal-disposition table.
func SaveSignalConfig(cfg *SignalConfig) error {
	path, err := configFilePath()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0644)
}
