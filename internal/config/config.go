// Package config loads and persists the clustermux.yaml file kept next
// to the executable. Absent fields keep their defaults, so a partial
// file only overrides what it names; Save writes the merged result
// back, which seeds a complete template on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/user/clustermux/internal/cluster"
)

// FileName is the config file kept next to the executable.
const FileName = "clustermux.yaml"

// UsernameHostPlaceholder marks where "user@host" is substituted into
// the client argument list.
const UsernameHostPlaceholder = "{{USERNAME_AT_HOST}}"

// ClientConfig controls how each client console runs its remote shell.
type ClientConfig struct {
	// SSHConfigPath is the OpenSSH client config consulted for a User
	// directive when no username is given on the command line.
	SSHConfigPath string `yaml:"ssh_config_path"`
	// Program is the remote-shell executable.
	Program string `yaml:"program"`
	// Arguments is the argument list handed to Program, with
	// UsernameHostPlaceholder standing in for the target.
	Arguments []string `yaml:"arguments"`
}

// DaemonConfig controls the daemon console and the tiling layout.
type DaemonConfig struct {
	// Height of the daemon console strip, in pixels.
	Height int `yaml:"height"`
	// AspectRatioAdjustment biases the grid column count. Negative
	// favors wide client windows, positive favors tall ones.
	AspectRatioAdjustment float64 `yaml:"aspect_ratio_adjustment"`
	// ConsoleColor is the daemon console's text attribute value.
	ConsoleColor uint16 `yaml:"console_color"`
}

// Config is the root of clustermux.yaml.
type Config struct {
	Clusters []cluster.Cluster `yaml:"clusters"`
	Client   ClientConfig      `yaml:"client"`
	Daemon   DaemonConfig      `yaml:"daemon"`
}

// Default returns the built-in configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Client: ClientConfig{
			SSHConfigPath: filepath.Join(home, ".ssh", "config"),
			Program:       "ssh",
			Arguments:     []string{"-XY", UsernameHostPlaceholder},
		},
		Daemon: DaemonConfig{
			Height:                200,
			AspectRatioAdjustment: -1.0,
			ConsoleColor:          207,
		},
	}
}

// DefaultPath is the config location next to the running executable.
func DefaultPath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), FileName), nil
}

// Load reads path and overlays it onto the defaults. A missing file is
// not an error; it yields the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the full merged config to path.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
