package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if c.LogDir == "" {
		errs = append(errs, fmt.Errorf("log_dir is required"))
	}
	if c.Journal == "" {
		errs = append(errs, fmt.Errorf("journal is required"))
	}
	if c.Socket == "" {
		errs = append(errs, fmt.Errorf("socket is required"))
	}
	if c.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Listen); err != nil {
			errs = append(errs, fmt.Errorf("listen: %w", err))
		}
	}

	// Poll
	if c.Poll.Interval <= 0 {
		errs = append(errs, fmt.Errorf("poll.interval must be positive, got %s", c.Poll.Interval))
	}
	if c.Poll.Window < 1 {
		errs = append(errs, fmt.Errorf("poll.window must be at least 1, got %d", c.Poll.Window))
	}
	if c.Poll.Watch && c.Poll.Rate <= 0 {
		errs = append(errs, fmt.Errorf("poll.rate must be positive when poll.watch is set"))
	}

	// Activity
	if c.Activity.Window < 1 {
		errs = append(errs, fmt.Errorf("activity.window must be at least 1, got %d", c.Activity.Window))
	}
	if c.Activity.SessionMaxAge <= 0 {
		errs = append(errs, fmt.Errorf("activity.session_max_age must be positive"))
	}

	return errs
}

// ParseLevel maps a log_level value onto a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log_level must be debug, info, warn, or error; got %q", s)
}
