// Package config provides configuration loading and validation for the audio
// recording service. It handles YAML-based configuration with struct validation
// and supports environment variable overrides so the service can run without
// a config file at all.
package config
