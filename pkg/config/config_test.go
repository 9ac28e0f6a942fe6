package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	Debug bool   `yaml:"debug"`
}

type validated struct {
	Port int `yaml:"port"`
}

func (v *validated) Validate() error {
	if v.Port == 0 {
		return errors.New("port is required")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoad_KeepsDefaultsAndExpands(t *testing.T) {
	path := writeFile(t, "name: ${APP_NAME}\nport: ${APP_PORT:-8080}\n")
	cfg := sample{Debug: true}

	err := Load(path, &cfg, WithLookup(env(map[string]string{"APP_NAME": "synapse"})))
	require.NoError(t, err)
	assert.Equal(t, "synapse", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Debug, "unset keys keep their default")
}

func TestLoad_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg := sample{Port: 1}
	assert.Error(t, Load(missing, &cfg))

	require.NoError(t, Load(missing, &cfg, Optional()))
	assert.Equal(t, 1, cfg.Port)
}

func TestLoad_Validates(t *testing.T) {
	path := writeFile(t, "port: 0\n")
	err := Load(path, &validated{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port is required")

	// Validation runs on defaults too.
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	assert.Error(t, Load(missing, &validated{}, Optional()))
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeFile(t, "port: [unclosed\n")
	err := Load(path, &sample{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse")
}

func TestExpand(t *testing.T) {
	lookup := env(map[string]string{"SET": "v", "EMPTY": ""})
	assert.Equal(t, "v", Expand("$SET", lookup))
	assert.Equal(t, "v", Expand("${SET:-x}", lookup))
	assert.Equal(t, "x", Expand("${EMPTY:-x}", lookup))
	assert.Equal(t, "x", Expand("${UNSET:-x}", lookup))
	assert.Equal(t, "", Expand("${UNSET}", lookup))
}
