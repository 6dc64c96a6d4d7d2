package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the CLI configuration, loaded from a TOML file.
type Config struct {
	// URL is the host's multiplexer endpoint.
	URL string `toml:"url"`

	// SessionID stamps outbound requests with a terminal session id.
	SessionID string `toml:"session_id"`

	// Gzip compresses outbound frame bodies.
	Gzip bool `toml:"gzip"`

	// Timeout bounds each request round trip.
	Timeout duration `toml:"timeout"`
}

// duration wraps time.Duration so TOML files can say "5s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// defaultConfig returns the configuration used when no file exists.
func defaultConfig() *Config {
	return &Config{
		URL:     "ws://127.0.0.1:8787/mux",
		Timeout: duration{5 * time.Second},
	}
}

// defaultConfigPath returns the conventional config location,
// ~/.config/termmux/config.toml, honoring XDG_CONFIG_HOME.
func defaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "termmux", "config.toml")
}

// LoadConfig reads the config file at path, or the default location
// when path is empty. A missing file is not an error; defaults apply.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
	}

	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("load config %s: unknown key %q", path, undecoded[0].String())
	}
	if cfg.Timeout.Duration <= 0 {
		cfg.Timeout = duration{5 * time.Second}
	}
	return cfg, nil
}
