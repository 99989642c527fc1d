package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// overlay is the YAML-file shape accepted by LoadYAMLOverlay. Fields are
// plain values, so an absent key and an explicit zero value (empty string,
// non-positive frame size, empty map) look the same: either leaves the
// environment-derived default untouched.
type overlay struct {
	Transport           string            `yaml:"transport"`
	Addr                string            `yaml:"addr"`
	BaseURL             string            `yaml:"base_url"`
	TCPAddr             string            `yaml:"tcp_addr"`
	TLSCertFile         string            `yaml:"tls_cert_file"`
	TLSKeyFile          string            `yaml:"tls_key_file"`
	UnixSocketPath      string            `yaml:"unix_socket_path"`
	FrameSizeLimit      int               `yaml:"frame_size_limit"`
	ShutdownDrainWindow string            `yaml:"shutdown_drain_window"`
	DefaultMethodTimeout string           `yaml:"default_method_timeout"`
	MethodTimeouts      map[string]string `yaml:"method_timeouts"`
}

// LoadYAMLOverlay reads the YAML file at path and overlays any fields it
// sets onto cfg, leaving the environment-derived defaults alone for
// anything the file omits. This gives operators a single file for settings
// that are awkward to express as environment variables (the per-method
// timeout table) without giving up the env-var path entirely.
func LoadYAMLOverlay(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var ov overlay
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	if ov.Transport != "" {
		cfg.Transport = ov.Transport
	}
	if ov.Addr != "" {
		cfg.Addr = ov.Addr
	}
	if ov.BaseURL != "" {
		cfg.BaseURL = ov.BaseURL
	}
	if ov.TCPAddr != "" {
		cfg.TCPAddr = ov.TCPAddr
	}
	if ov.TLSCertFile != "" {
		cfg.TLSCertFile = ov.TLSCertFile
	}
	if ov.TLSKeyFile != "" {
		cfg.TLSKeyFile = ov.TLSKeyFile
	}
	if ov.UnixSocketPath != "" {
		cfg.UnixSocketPath = ov.UnixSocketPath
	}
	if ov.FrameSizeLimit > 0 {
		cfg.FrameSizeLimit = ov.FrameSizeLimit
	}
	if ov.ShutdownDrainWindow != "" {
		d, err := time.ParseDuration(ov.ShutdownDrainWindow)
		if err != nil {
			return fmt.Errorf("invalid shutdown_drain_window: %w", err)
		}
		cfg.ShutdownDrainWindow = d
	}
	if ov.DefaultMethodTimeout != "" {
		d, err := time.ParseDuration(ov.DefaultMethodTimeout)
		if err != nil {
			return fmt.Errorf("invalid default_method_timeout: %w", err)
		}
		cfg.DefaultMethodTimeout = d
	}
	if cfg.MethodTimeouts == nil {
		cfg.MethodTimeouts = make(map[string]time.Duration)
	}
	for method, raw := range ov.MethodTimeouts {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid method_timeouts[%q]: %w", method, err)
		}
		cfg.MethodTimeouts[method] = d
	}

	return nil
}
