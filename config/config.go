// Package config loads the proxy configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the full proxy configuration.
type Config struct {
	// Host is the address the proxy listens on.
	Host string `yaml:"host"`
	// Port is the port the proxy listens on. 0 picks a free port.
	Port int `yaml:"port"`
	// ScriptDirs lists directories scanned for *.user.js files.
	ScriptDirs []string `yaml:"script_dirs"`
	// ForceInline injects scripts with a download URL inline anyway.
	ForceInline bool `yaml:"force_inline"`
	// ApplyUnscoped makes scripts without match/include patterns apply to
	// every page.
	ApplyUnscoped bool `yaml:"apply_unscoped"`
	// CADir is where the root CA certificate and key are stored.
	CADir string `yaml:"ca_dir"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Host:       "127.0.0.1",
		Port:       8080,
		ScriptDirs: []string{"userscripts"},
		CADir:      defaultCADir(),
	}
}

// Load reads the configuration file at path, applying defaults for any
// omitted field. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func defaultCADir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "userscript-proxy", "ca")
}
