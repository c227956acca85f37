package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:   "default configuration is valid",
			mutate: func(c *Config) {},
		},
		{
			name:        "invalid server port",
			mutate:      func(c *Config) { c.Server.Port = 70000 },
			expectError: true,
		},
		{
			name:        "empty bind address",
			mutate:      func(c *Config) { c.Server.BindAddress = "" },
			expectError: true,
		},
		{
			name:        "empty recordings dir",
			mutate:      func(c *Config) { c.Storage.RecordingsDir = "" },
			expectError: true,
		},
		{
			name:        "tiny upload ceiling",
			mutate:      func(c *Config) { c.Storage.MaxUploadBytes = 100 },
			expectError: true,
		},
		{
			name: "chunk size above ceiling",
			mutate: func(c *Config) {
				c.Storage.MaxUploadBytes = 2048
				c.Storage.ReadChunkBytes = 4096
			},
			expectError: true,
		},
		{
			name:        "zero default sample rate",
			mutate:      func(c *Config) { c.Audio.DefaultSampleRate = 0 },
			expectError: true,
		},
		{
			name:        "unsupported default bit depth",
			mutate:      func(c *Config) { c.Audio.DefaultBitDepth = 12 },
			expectError: true,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
		{
			name:        "invalid log format",
			mutate:      func(c *Config) { c.Logging.Format = "xml" },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("Expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  port: 9000
  bind_address: "127.0.0.1"
  read_timeout: 15
  write_timeout: 5
storage:
  recordings_dir: "/tmp/recordings"
  max_upload_bytes: 5242880
  read_chunk_bytes: 8192
  read_idle_millis: 1000
audio:
  default_sample_rate: 8000
  default_bit_depth: 16
  default_channels: 2
logging:
  level: "debug"
  format: "json"
  output: "stderr"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Storage.RecordingsDir != "/tmp/recordings" {
		t.Errorf("Expected recordings dir /tmp/recordings, got %s", cfg.Storage.RecordingsDir)
	}
	if cfg.Storage.MaxUploadBytes != 5242880 {
		t.Errorf("Expected max upload bytes 5242880, got %d", cfg.Storage.MaxUploadBytes)
	}
	if cfg.Audio.DefaultSampleRate != 8000 {
		t.Errorf("Expected default sample rate 8000, got %d", cfg.Audio.DefaultSampleRate)
	}
	if cfg.Audio.DefaultChannels != 2 {
		t.Errorf("Expected default channels 2, got %d", cfg.Audio.DefaultChannels)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestConfigLoadPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  port: 9001
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Expected port 9001, got %d", cfg.Server.Port)
	}
	if cfg.Storage.RecordingsDir != "recordings" {
		t.Errorf("Expected default recordings dir, got %s", cfg.Storage.RecordingsDir)
	}
	if cfg.Audio.DefaultSampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", cfg.Audio.DefaultSampleRate)
	}
}

func TestConfigLoadNonexistentFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load of missing file should use defaults, got error: %v", err)
	}

	def := Default()
	if cfg.Server.Port != def.Server.Port {
		t.Errorf("Expected default port %d, got %d", def.Server.Port, cfg.Server.Port)
	}
	if cfg.Storage.MaxUploadBytes != def.Storage.MaxUploadBytes {
		t.Errorf("Expected default ceiling %d, got %d", def.Storage.MaxUploadBytes, cfg.Storage.MaxUploadBytes)
	}
}

func TestConfigLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected parse error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUDIO_SERVER_PORT", "9999")
	t.Setenv("AUDIO_RECORDINGS_DIR", "/data/recordings")
	t.Setenv("AUDIO_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9999 {
		t.Errorf("Expected env-overridden port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Storage.RecordingsDir != "/data/recordings" {
		t.Errorf("Expected env-overridden recordings dir, got %s", cfg.Storage.RecordingsDir)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Expected env-overridden log level warn, got %s", cfg.Logging.Level)
	}
}

func TestEnvOverrideIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("AUDIO_SERVER_PORT", "not-a-port")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8000 {
		t.Errorf("Malformed env override should keep default port, got %d", cfg.Server.Port)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	if got := cfg.Server.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("Expected read timeout 30s, got %v", got)
	}
	if got := cfg.Server.GetWriteTimeout(); got != 10*time.Second {
		t.Errorf("Expected write timeout 10s, got %v", got)
	}
	if got := cfg.Storage.GetReadIdleTimeout(); got != 2*time.Second {
		t.Errorf("Expected read idle timeout 2s, got %v", got)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Default()
	if got := cfg.Server.ListenAddr(); got != "0.0.0.0:8000" {
		t.Errorf("Unexpected listen address: %s", got)
	}
}
