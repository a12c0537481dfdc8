package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server  ServerConfig  `toml:"server"`
	Capture CaptureConfig `toml:"capture"`
}

type ServerConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	NatsURL    string `toml:"nats_url"`
	DmesgBytes int    `toml:"dmesg_bytes"` // how much of our own log output to retain
}

type CaptureConfig struct {
	BufferBytes int    `toml:"buffer_bytes"` // per-session output retention
	Shell       string `toml:"shell"`        // used when a session command is a shell string
}

func DefaultConfig() *Config {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}

	return &Config{
		Server: ServerConfig{
			Host:       "127.0.0.1",
			Port:       7430,
			DmesgBytes: 64 * 1024,
		},
		Capture: CaptureConfig{
			BufferBytes: 1024 * 1024,
			Shell:       shell,
		},
	}
}

func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try system config first
	if _, err := os.Stat("/etc/ringlog/config.toml"); err == nil {
		if _, err := toml.DecodeFile("/etc/ringlog/config.toml", cfg); err != nil {
			return nil, err
		}
	}

	// Then user config (overrides system)
	home, err := os.UserHomeDir()
	if err == nil {
		userConfig := filepath.Join(home, ".config", "ringlog", "config.toml")
		if _, err := os.Stat(userConfig); err == nil {
			if _, err := toml.DecodeFile(userConfig, cfg); err != nil {
				return nil, err
			}
		}
	}

	// Environment variable overrides
	if host := os.Getenv("RINGLOG_HOST"); host != "" {
		cfg.Server.Host = host
	}

	if portStr := os.Getenv("RINGLOG_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid RINGLOG_PORT: %q", portStr)
		}
		cfg.Server.Port = port
	}

	if natsURL := os.Getenv("RINGLOG_NATS_URL"); natsURL != "" {
		cfg.Server.NatsURL = natsURL
	}

	if bufStr := os.Getenv("RINGLOG_BUFFER_BYTES"); bufStr != "" {
		n, err := strconv.Atoi(bufStr)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RINGLOG_BUFFER_BYTES: %q", bufStr)
		}
		cfg.Capture.BufferBytes = n
	}

	if shell := os.Getenv("RINGLOG_SHELL"); shell != "" {
		cfg.Capture.Shell = shell
	}

	return cfg, nil
}
