// Package yamlutil wraps YAML decoding for configuration files, so callers
// never import the YAML library directly.
package yamlutil

import (
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
)

// MaxInputSize limits YAML input to prevent memory exhaustion (default 1MB).
var MaxInputSize = 1 << 20

// Sentinel errors for YAML decoding.
var (
	ErrNilData        = errors.New("yamlutil: nil or empty data")
	ErrNilDestination = errors.New("yamlutil: nil destination pointer")
	ErrInputTooLarge  = errors.New("yamlutil: input exceeds maximum size")
)

// Option configures Unmarshal.
type Option func(*decodeConfig)

type decodeConfig struct {
	strict bool
}

// Strict rejects keys that do not map to a struct field.
func Strict() Option {
	return func(c *decodeConfig) { c.strict = true }
}

func validateInput(data []byte, v any) error {
	if len(data) == 0 {
		return ErrNilData
	}
	if len(data) > MaxInputSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrInputTooLarge, len(data), MaxInputSize)
	}
	if v == nil {
		return ErrNilDestination
	}
	return nil
}

// Unmarshal decodes data into v. Fields of v absent from data are left as
// they were, so v can be pre-filled with defaults.
func Unmarshal(data []byte, v any, opts ...Option) error {
	if err := validateInput(data, v); err != nil {
		return err
	}
	var cfg decodeConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var decodeOpts []yaml.DecodeOption
	if cfg.strict {
		decodeOpts = append(decodeOpts, yaml.Strict())
	}
	if err := yaml.UnmarshalWithOptions(data, v, decodeOpts...); err != nil {
		return fmt.Errorf("yamlutil: %w", err)
	}
	return nil
}

// Marshal encodes v, for printing an effective configuration.
func Marshal(v any) ([]byte, error) {
	result, err := yaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yamlutil: %w", err)
	}
	return result, nil
}
