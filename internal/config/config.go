// Package config loads optional defaults from a TOML config file.
//
// The file lives at $XDG_CONFIG_HOME/dupehound/config.toml (or the
// equivalent XDG search path). A missing file is not an error: every
// value has a built-in default, and CLI flags override file values.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/adrg/xdg"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/dupehound/dupehound/internal/logging"
)

var log = logging.GetLogger("config")

// ConfigFile is the config file path relative to the XDG config root.
const ConfigFile = "dupehound/config.toml"

// Config holds file-configurable defaults.
type Config struct {
	Workers    int      `toml:"workers"`
	MinSize    string   `toml:"min_size"`
	ProbeBytes int      `toml:"probe_bytes"`
	Exclude    []string `toml:"exclude"`
	CacheFile  string   `toml:"cache_file"`
	NoProgress bool     `toml:"no_progress"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Workers:    runtime.NumCPU(),
		MinSize:    "1",
		ProbeBytes: 10,
	}
}

// Load reads the config file at path, or the XDG location when path is
// empty. Returns defaults when no file exists.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		found, err := xdg.SearchConfigFile(ConfigFile)
		if err != nil {
			// No config file anywhere on the search path
			return cfg, nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	log.Debug().Str("path", path).Msg("Loaded config file")
	return cfg, nil
}
