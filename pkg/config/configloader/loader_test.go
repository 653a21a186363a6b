package configloader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Storage struct {
		Driver  string        `koanf:"driver"`
		Path    string        `koanf:"path"`
		Timeout time.Duration `koanf:"timeout"`
	} `koanf:"storage"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func (c testConfig) Validate() error {
	if c.Storage.Driver == "" {
		return errors.New("storage driver is not configured")
	}
	return nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func Test_LoadFrom_Precedence(t *testing.T) {
	// given
	dir := t.TempDir()
	configFile := writeFile(t, dir, "config.yaml", `
storage:
  driver: memory
  path: /yaml/cart.db
  timeout: 2s
log:
  level: info
`)
	envFile := writeFile(t, dir, ".env", "CART_STORAGE_PATH=/dotenv/cart.db\nCART_LOG_LEVEL=warn\nOTHER_LOG_LEVEL=error\n")
	t.Setenv("CART_LOG_LEVEL", "debug")

	// when
	cfg, err := LoadFrom[testConfig](configFile, envFile, "CART_")

	// then
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "/dotenv/cart.db", cfg.Storage.Path)
	assert.Equal(t, 2*time.Second, cfg.Storage.Timeout)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func Test_LoadFrom_MissingFilesAndInvalid(t *testing.T) {
	// given
	dir := t.TempDir()

	// when
	_, err := LoadFrom[testConfig](filepath.Join(dir, "missing.yaml"), filepath.Join(dir, ".env"), "CART_")

	// then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func Test_Load_ConfigFileOverride(t *testing.T) {
	// given
	dir := t.TempDir()
	configFile := writeFile(t, dir, "cart.yaml", "storage:\n  driver: sqlite\n")
	t.Setenv("CART_CONFIG_FILE", configFile)

	// when
	cfg, err := Load[testConfig]("cart")

	// then
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}
