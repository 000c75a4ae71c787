package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, 5, config.Retry.MaxAttempts)
	assert.Equal(t, 7.0, config.Retry.Multiplier)
	assert.Equal(t, []int{429, 500, 503, 504}, config.Retry.RetryableStatusCodes)
	assert.Equal(t, 1, config.Pipeline.FetchConcurrency)
}

func TestLoadFromFiles_LaterFilesOverride(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
[inventory]
path = "catalog.csv"
name_column = 0
price_column = 1

[report]
format = "xlsx"
`), 0644))
	require.NoError(t, os.WriteFile(override, []byte(`
[report]
format = "pdf"

[retry]
max_attempts = 3
`), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "catalog.csv", config.Inventory.Path)
	assert.Equal(t, 0, config.Inventory.NameColumn)
	assert.Equal(t, "pdf", config.Report.Format)
	assert.Equal(t, 3, config.Retry.MaxAttempts)
	assert.Equal(t, "1s", config.Retry.InitialDelay, "untouched keys keep defaults")
}

func TestLoadFromFiles_EnvOverrides(t *testing.T) {
	t.Setenv("PRICEWATCH_SERVER_PORT", "9090")
	t.Setenv("PRICEWATCH_PROVIDER_API_KEY", "prefixed-key")
	t.Setenv("PRICEWATCH_RETRY_RETRYABLE_STATUS_CODES", "429,503")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "prefixed-key", config.Provider.APIKey)
	assert.Equal(t, []int{429, 503}, config.Retry.RetryableStatusCodes)
}

func TestLoadFromFiles_ProviderKeyFallback(t *testing.T) {
	t.Setenv("PRICEWATCH_PROVIDER_API_KEY", "")
	t.Setenv("SERPAPI_API_KEY", "provider-key")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "provider-key", config.Provider.APIKey)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad schedule", func(c *Config) { c.Scheduler.Schedule = "every day" }},
		{"bad duration", func(c *Config) { c.Retry.InitialDelay = "soon" }},
		{"bad report format", func(c *Config) { c.Report.Format = "docx" }},
		{"same columns", func(c *Config) { c.Inventory.PriceColumn = c.Inventory.NameColumn }},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestValidate_AcceptsSchedule(t *testing.T) {
	config := NewDefaultConfig()
	config.Scheduler.Schedule = "0 6 * * *"
	assert.NoError(t, config.Validate())
}
