package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. GATEWATCH_LOG_DIR.
const EnvPrefix = "GATEWATCH"

// DefaultPath returns the config file read when --config is not given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "gatewatch.yaml"
	}
	return filepath.Join(dir, "gatewatch", "gatewatch.yaml")
}

// RegisterFlags adds the override flags shared by gatewatchd and gatewatch.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "config file (default: "+DefaultPath()+")")
	flags.String("socket", "", "daemon socket path")
	flags.String("log-level", "", "log level: debug, info, warn, error")
}

// RegisterDaemonFlags adds the overrides only gatewatchd understands.
func RegisterDaemonFlags(flags *pflag.FlagSet) {
	flags.String("listen", "", "HTTP listen address")
	flags.String("openclaw-dir", "", "OpenClaw state directory")
	flags.String("log-dir", "", "directory holding openclaw-YYYY-MM-DD.log")
	flags.String("journal", "", "activity journal path")
	flags.Duration("poll-interval", 0, "tail poll interval")
	flags.Int("poll-window", 0, "lines read per poll")
	flags.Bool("watch", true, "poll when the log file changes")
}

// NewViper binds flags and GATEWATCH_* environment variables.
func NewViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}
	return v, nil
}

// Resolve loads the config file named by v's "config" key, or DefaultPath
// when that exists, and applies flag and environment overrides on top.
func Resolve(v *viper.Viper) (*Config, error) {
	path := v.GetString("config")
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	c, err := Load(path)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		c = Default()
		c.Expand()
	default:
		return nil, err
	}

	applyOverrides(c, v)
	c.Expand()

	if errs := Validate(c); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return c, nil
}

func applyOverrides(c *Config, v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	setString("socket", &c.Socket)
	setString("log-level", &c.LogLevel)
	setString("listen", &c.Listen)
	setString("openclaw-dir", &c.OpenClawDir)
	setString("log-dir", &c.LogDir)
	setString("journal", &c.Journal)

	if v.IsSet("poll-interval") && v.GetDuration("poll-interval") > 0 {
		c.Poll.Interval = v.GetDuration("poll-interval")
	}
	if v.IsSet("poll-window") && v.GetInt("poll-window") > 0 {
		c.Poll.Window = v.GetInt("poll-window")
	}
	if v.IsSet("watch") {
		c.Poll.Watch = v.GetBool("watch")
	}
}
