// Package config loads gatewatch.yaml and reads the gateway's own
// openclaw.json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents a gatewatch.yaml configuration file.
type Config struct {
	Version     int      `yaml:"version"      json:"version"`
	LogLevel    string   `yaml:"log_level"    json:"log_level"`
	OpenClawDir string   `yaml:"openclaw_dir" json:"openclaw_dir"`
	LogDir      string   `yaml:"log_dir"      json:"log_dir"`
	Journal     string   `yaml:"journal"      json:"journal"`
	Listen      string   `yaml:"listen"       json:"listen"`
	Socket      string   `yaml:"socket"       json:"socket"`
	Poll        Poll     `yaml:"poll"         json:"poll"`
	Activity    Activity `yaml:"activity"     json:"activity"`

	// FilePath is where the config was loaded from; empty for defaults.
	FilePath string `yaml:"-" json:"-"`
}

// Poll controls the background tail poller.
type Poll struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	Window   int           `yaml:"window"   json:"window"`
	Watch    bool          `yaml:"watch"    json:"watch"`
	Rate     float64       `yaml:"rate"     json:"rate"` // max watcher-triggered polls per second
}

// Activity controls the activity feed sources.
type Activity struct {
	Window        int           `yaml:"window"          json:"window"`
	SessionMaxAge time.Duration `yaml:"session_max_age" json:"session_max_age"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Version:     1,
		LogLevel:    "info",
		OpenClawDir: "~/.openclaw",
		LogDir:      "/tmp/openclaw",
		Journal:     "~/.openclaw/gatewatch/activity.jsonl",
		Listen:      "127.0.0.1:8787",
		Socket:      DefaultSocketPath(),
		Poll: Poll{
			Interval: 2 * time.Second,
			Window:   200,
			Watch:    true,
			Rate:     2,
		},
		Activity: Activity{
			Window:        2000,
			SessionMaxAge: 24 * time.Hour,
		},
	}
}

// DefaultSocketPath returns the daemon socket under XDG_RUNTIME_DIR, falling
// back to /tmp.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "gatewatch", "gatewatchd.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("gatewatch-%d", os.Getuid()), "gatewatchd.sock")
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	c.FilePath = path
	return c, nil
}

// Parse decodes YAML on top of Default and expands ~ in path fields.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.Expand()
	return c, nil
}

// Expand resolves a leading ~ in every path field.
func (c *Config) Expand() {
	c.OpenClawDir = ExpandHome(c.OpenClawDir)
	c.LogDir = ExpandHome(c.LogDir)
	c.Journal = ExpandHome(c.Journal)
	c.Socket = ExpandHome(c.Socket)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// OpenClawConfigPath is the gateway's own config file.
func (c *Config) OpenClawConfigPath() string {
	return filepath.Join(c.OpenClawDir, "openclaw.json")
}
