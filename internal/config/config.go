// Package config loads the optional miniftp configuration file and
// parses human-readable sizes.
package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional miniftp configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
}

// DefaultsConfig holds persistent flag defaults. Pointer fields
// distinguish "unset" from a zero value; a CLI flag explicitly set
// always wins over the file.
type DefaultsConfig struct {
	Listen      *string `toml:"listen"`
	Root        *string `toml:"root"`
	Mode        *string `toml:"mode"`
	BWLimit     *string `toml:"bwlimit"`
	DataTimeout *string `toml:"data_timeout"`
	Verify      *bool   `toml:"verify"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "miniftp", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	return LoadFile(Path())
}

// LoadFile reads a config file from an explicit path. A missing file
// is not an error.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
