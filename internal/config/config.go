package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Audio   AudioConfig   `yaml:"audio"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// StorageConfig contains recording storage configuration
type StorageConfig struct {
	RecordingsDir  string `yaml:"recordings_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"` // safety ceiling for unframed uploads
	ReadChunkBytes int    `yaml:"read_chunk_bytes"` // chunk size when no length is declared
	ReadIdleMillis int    `yaml:"read_idle_millis"` // raw-stream read deadline per chunk
}

// AudioConfig contains the default audio parameters assumed when the device
// omits the descriptive headers
type AudioConfig struct {
	DefaultSampleRate int `yaml:"default_sample_rate"`
	DefaultBitDepth   int `yaml:"default_bit_depth"`
	DefaultChannels   int `yaml:"default_channels"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the built-in configuration matching the parameters the
// ESP32 firmware ships with.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8000,
			BindAddress:  "0.0.0.0",
			ReadTimeout:  30,
			WriteTimeout: 10,
		},
		Storage: StorageConfig{
			RecordingsDir:  "recordings",
			MaxUploadBytes: 10 * 1024 * 1024,
			ReadChunkBytes: 16 * 1024,
			ReadIdleMillis: 2000,
		},
		Audio: AudioConfig{
			DefaultSampleRate: 16000,
			DefaultBitDepth:   16,
			DefaultChannels:   1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file, then applies environment
// variable overrides. A missing file is not an error: the defaults are used,
// so the service runs out of the box.
func Load(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides overlays AUDIO_* environment variables onto the loaded
// configuration. A .env file in the working directory is honored if present.
func (c *Config) applyEnvOverrides() {
	_ = godotenv.Load()

	if v := os.Getenv("AUDIO_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("AUDIO_BIND_ADDRESS"); v != "" {
		c.Server.BindAddress = v
	}
	if v := os.Getenv("AUDIO_RECORDINGS_DIR"); v != "" {
		c.Storage.RecordingsDir = v
	}
	if v := os.Getenv("AUDIO_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Storage.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("AUDIO_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AUDIO_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	if s.RecordingsDir == "" {
		return fmt.Errorf("recordings_dir cannot be empty")
	}

	if s.MaxUploadBytes < 1024 {
		return fmt.Errorf("max_upload_bytes must be at least 1024, got %d", s.MaxUploadBytes)
	}

	if s.ReadChunkBytes < 512 {
		return fmt.Errorf("read_chunk_bytes must be at least 512, got %d", s.ReadChunkBytes)
	}

	if int64(s.ReadChunkBytes) > s.MaxUploadBytes {
		return fmt.Errorf("read_chunk_bytes (%d) cannot exceed max_upload_bytes (%d)",
			s.ReadChunkBytes, s.MaxUploadBytes)
	}

	if s.ReadIdleMillis < 100 {
		return fmt.Errorf("read_idle_millis must be at least 100, got %d", s.ReadIdleMillis)
	}

	return nil
}

// Validate validates audio defaults
func (a *AudioConfig) Validate() error {
	if a.DefaultSampleRate < 1 {
		return fmt.Errorf("default_sample_rate must be positive, got %d", a.DefaultSampleRate)
	}

	if a.DefaultBitDepth != 8 && a.DefaultBitDepth != 16 && a.DefaultBitDepth != 24 && a.DefaultBitDepth != 32 {
		return fmt.Errorf("default_bit_depth must be one of [8, 16, 24, 32], got %d", a.DefaultBitDepth)
	}

	if a.DefaultChannels < 1 {
		return fmt.Errorf("default_channels must be at least 1, got %d", a.DefaultChannels)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output accepts stdout, stderr, or a file path; nothing to reject here.

	return nil
}

// GetReadTimeout returns the server read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the server write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetReadIdleTimeout returns the raw-stream per-read deadline as a time.Duration
func (s *StorageConfig) GetReadIdleTimeout() time.Duration {
	return time.Duration(s.ReadIdleMillis) * time.Millisecond
}

// ListenAddr returns the address the HTTP server binds to
func (s *ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.BindAddress, s.Port)
}
