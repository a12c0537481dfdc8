package config

import (
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("default host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 7430 {
		t.Errorf("default port = %d, want 7430", cfg.Server.Port)
	}
	if cfg.Capture.BufferBytes <= 0 {
		t.Errorf("default buffer bytes = %d, want positive", cfg.Capture.BufferBytes)
	}
	if cfg.Capture.Shell == "" {
		t.Error("default shell should not be empty")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RINGLOG_HOST", "0.0.0.0")
	t.Setenv("RINGLOG_PORT", "9999")
	t.Setenv("RINGLOG_NATS_URL", "nats://localhost:4222")
	t.Setenv("RINGLOG_BUFFER_BYTES", "4096")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Server.NatsURL != "nats://localhost:4222" {
		t.Errorf("nats url = %q", cfg.Server.NatsURL)
	}
	if cfg.Capture.BufferBytes != 4096 {
		t.Errorf("buffer bytes = %d, want 4096", cfg.Capture.BufferBytes)
	}
}

func TestInvalidPort(t *testing.T) {
	for _, bad := range []string{"notaport", "0", "-1", "70000"} {
		t.Run(bad, func(t *testing.T) {
			t.Setenv("RINGLOG_PORT", bad)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with RINGLOG_PORT=%q should fail", bad)
			}
		})
	}
}
