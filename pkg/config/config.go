// Package config provides YAML-based configuration loading with environment variable expansion.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// LoadOption tunes Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	optional bool
	lookup   func(string) (string, bool)
}

// Optional makes a missing file keep the defaults already in target.
// Validation still runs.
func Optional() LoadOption {
	return func(o *loadOptions) { o.optional = true }
}

// WithLookup replaces os.LookupEnv for variable expansion.
func WithLookup(lookup func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) { o.lookup = lookup }
}

// Load reads a YAML file into target, which should already hold the defaults.
//
// ${VAR} and $VAR are replaced from the environment before parsing.
// ${VAR:-fallback} uses fallback when VAR is unset or empty.
// If target implements Validator it is validated afterwards.
func Load[T any](filename string, target *T, opts ...LoadOption) error {
	o := loadOptions{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	data, err := os.ReadFile(filename)
	switch {
	case errors.Is(err, os.ErrNotExist) && o.optional:
		data = nil
	case err != nil:
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if len(data) > 0 {
		expanded := Expand(string(data), o.lookup)
		if err := yaml.Unmarshal([]byte(expanded), target); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}

// Expand substitutes environment references in s using lookup.
func Expand(s string, lookup func(string) (string, bool)) string {
	return os.Expand(s, func(ref string) string {
		name, fallback, hasFallback := strings.Cut(ref, ":-")
		v, ok := lookup(name)
		if hasFallback && (!ok || v == "") {
			return fallback
		}
		return v
	})
}
