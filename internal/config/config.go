// Package config loads srftp's server/client settings from an ini
// file (grounded in samsamfire-gocanopen's use of gopkg.in/ini.v1 to
// parse its object-dictionary files), falling back to the protocol's
// built-in defaults when no file path is given — the same
// defaults-constructor-plus-bootstrap shape the teacher library uses
// for core.NewConfig()/overproto.Init().
package config

import (
	"time"

	"gopkg.in/ini.v1"

	"github.com/nickolajgrishuk/srftp/internal/proto"
)

// Config holds the tunables a deployment may override. Protocol
// constants that affect wire compatibility (MaxPayload, WindowSize,
// frame layout) are NOT configurable here — only deployment concerns
// are.
type Config struct {
	// ListenPort is the server's well-known port.
	ListenPort uint16
	// MetricsAddr is the address the Prometheus /metrics endpoint binds
	// to; empty disables it.
	MetricsAddr string
	// WorkDir is the directory received_/downloaded_ files are created
	// in.
	WorkDir string
	// IdleTimeout is loaded from idle_timeout_seconds. It is not passed
	// to the receiver engine, which always uses its own fixed 20-second
	// idle timeout.
	IdleTimeout time.Duration
	// LogLevel is parsed with logrus.ParseLevel.
	LogLevel string
}

// Default returns the built-in configuration used when no ini file is
// supplied.
func Default() *Config {
	return &Config{
		ListenPort:  proto.WellKnownPort,
		MetricsAddr: ":9998",
		WorkDir:     ".",
		IdleTimeout: 20 * time.Second,
		LogLevel:    "info",
	}
}

// Load reads path (an ini file) over top of Default(), so a file that
// only sets one key leaves the rest at their defaults. An empty path
// returns Default(); a path that cannot be read is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, err
	}

	section := file.Section("srftp")
	if key := section.Key("listen_port"); key.String() != "" {
		port, err := key.Uint()
		if err != nil {
			return nil, err
		}
		cfg.ListenPort = uint16(port)
	}
	if key := section.Key("metrics_addr"); key.String() != "" {
		cfg.MetricsAddr = key.String()
	}
	if key := section.Key("work_dir"); key.String() != "" {
		cfg.WorkDir = key.String()
	}
	if key := section.Key("idle_timeout_seconds"); key.String() != "" {
		seconds, err := key.Int()
		if err != nil {
			return nil, err
		}
		cfg.IdleTimeout = time.Duration(seconds) * time.Second
	}
	if key := section.Key("log_level"); key.String() != "" {
		cfg.LogLevel = key.String()
	}

	return cfg, nil
}
