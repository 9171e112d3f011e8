// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads listsync configuration and item documents from
// YAML, JSON or JSON-with-comments files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// MaxDocumentSize bounds any file read by this package.
const MaxDocumentSize = 4 << 20

var (
	// ErrInvalidConfig wraps validation failures.
	ErrInvalidConfig = errors.New("invalid config")

	// ErrDocumentTooLarge is returned for files over MaxDocumentSize.
	ErrDocumentTooLarge = errors.New("document exceeds size limit")

	// ErrUnsupportedFormat is returned for unknown file extensions.
	ErrUnsupportedFormat = errors.New("unsupported document format")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config is the listsync configuration.
type Config struct {
	// Workers bounds parallel artifact computation. 0 means one per CPU.
	Workers int `yaml:"workers" json:"workers" validate:"gte=0,lte=256"`

	// Mode is the default mutation mode, "async" or "sync".
	Mode string `yaml:"mode" json:"mode" validate:"oneof=async sync"`

	Layout    LayoutConfig    `yaml:"layout" json:"layout"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Serve     ServeConfig     `yaml:"serve" json:"serve"`
	Watch     WatchConfig     `yaml:"watch" json:"watch"`
}

// LayoutConfig configures the text sizer and initial constraints.
type LayoutConfig struct {
	Width      float64 `yaml:"width" json:"width" validate:"gte=0"`
	Height     float64 `yaml:"height" json:"height" validate:"gte=0"`
	GlyphWidth float64 `yaml:"glyph_width" json:"glyph_width" validate:"gt=0"`
	LineHeight float64 `yaml:"line_height" json:"line_height" validate:"gt=0"`
	Padding    float64 `yaml:"padding" json:"padding" validate:"gte=0"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json" json:"json"`
	Dir   string `yaml:"dir" json:"dir"`
}

// TelemetryConfig selects OpenTelemetry exporters.
type TelemetryConfig struct {
	ServiceName  string `yaml:"service_name" json:"service_name" validate:"required"`
	Traces       string `yaml:"traces" json:"traces" validate:"oneof=none stdout otlp"`
	Metrics      string `yaml:"metrics" json:"metrics" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint string `yaml:"otlp_endpoint" json:"otlp_endpoint" validate:"required_if=Traces otlp"`
}

// ServeConfig configures the HTTP facade.
type ServeConfig struct {
	Addr           string `yaml:"addr" json:"addr" validate:"required,hostname_port"`
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout" validate:"required"`
}

// Timeout parses RequestTimeout.
func (s ServeConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(s.RequestTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// WatchConfig configures the file watcher.
type WatchConfig struct {
	// DebounceMS is the minimum gap between reloads.
	DebounceMS int `yaml:"debounce_ms" json:"debounce_ms" validate:"gte=0,lte=60000"`
}

// Debounce returns DebounceMS as a duration.
func (w WatchConfig) Debounce() time.Duration {
	return time.Duration(w.DebounceMS) * time.Millisecond
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Workers: 0,
		Mode:    "async",
		Layout: LayoutConfig{
			Width:      40,
			GlyphWidth: 1,
			LineHeight: 1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "listsync",
			Traces:      "none",
			Metrics:     "prometheus",
		},
		Serve: ServeConfig{
			Addr:           "127.0.0.1:8087",
			RequestTimeout: "5s",
		},
		Watch: WatchConfig{
			DebounceMS: 200,
		},
	}
}

// Validate checks struct tags and cross-field rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := time.ParseDuration(c.Serve.RequestTimeout); err != nil {
		return fmt.Errorf("%w: serve.request_timeout: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Load reads path over DefaultConfig and validates the result. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := ReadDocument(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv lets LISTSYNC_* variables override file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LISTSYNC_ADDR"); v != "" {
		cfg.Serve.Addr = v
	}
	if v := os.Getenv("LISTSYNC_TRACES"); v != "" {
		cfg.Telemetry.Traces = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" && cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}

// Format is a document encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// FormatFor picks the format from a file extension. JSONC and JSON share
// a decoder.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json", ".jsonc":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ReadDocument decodes the file at path into v.
//
// Description:
//
//	The format follows the extension. JSON documents may carry comments
//	and trailing commas. Files larger than MaxDocumentSize are refused
//	before decoding.
func ReadDocument(path string, v any) error {
	format, err := FormatFor(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxDocumentSize+1))
	if err != nil {
		return err
	}
	if len(data) > MaxDocumentSize {
		return ErrDocumentTooLarge
	}
	return Decode(data, format, v)
}

// Decode parses data in the given format into v.
func Decode(data []byte, format Format, v any) error {
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parsing yaml: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
			return fmt.Errorf("parsing json: %w", err)
		}
	default:
		return ErrUnsupportedFormat
	}
	return nil
}
