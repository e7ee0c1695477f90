package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultPipeline, cfg.Batch.Pipeline)
	assert.Equal(t, 0, cfg.Batch.MaxConcurrency)
	assert.Equal(t, PipelineModeLocal, cfg.Pipeline.Mode)
	assert.Equal(t, StateBackendMemory, cfg.State.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDecodesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[batch]
max_concurrency = 16
namespace = "acme"

[pipeline]
mode = "gateway"
gateway_url = "http://runtime:9000"
timeout_seconds = 5

[messenger]
enabled = true
app_secret = "s"
verify_token = "v"
page_access_token = "p"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Batch.MaxConcurrency)
	assert.Equal(t, "acme", cfg.Batch.Namespace)
	assert.Equal(t, DefaultPipeline, cfg.Batch.Pipeline)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.Timeout())
	assert.Equal(t, DefaultGraphAPIURL, cfg.Messenger.GraphAPIURL)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"unknown pipeline mode":    func(c *Config) { c.Pipeline.Mode = "lambda" },
		"gateway without url":      func(c *Config) { c.Pipeline.Mode = PipelineModeGateway },
		"negative concurrency":     func(c *Config) { c.Batch.MaxConcurrency = -1 },
		"messenger without secret": func(c *Config) { c.Messenger.Enabled = true },
		"telegram without token":   func(c *Config) { c.Telegram.Enabled = true },
		"unknown state backend":    func(c *Config) { c.State.Backend = "redis" },
		"bad pipeline token ttl":   func(c *Config) { c.Auth.PipelineTokenTTL = "soon" },
		"non-positive state ttl":   func(c *Config) { c.State.TTL = "0s" },
		"unknown feishu region":    func(c *Config) { c.Feishu.Region = "mars" },
		"empty default pipeline":   func(c *Config) { c.Batch.Pipeline = "" },
		"unknown log format":       func(c *Config) { c.Log.Format = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load(filepath.Join(t.TempDir(), "none.toml"))
			require.NoError(t, err)
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationsFallBackToDefaults(t *testing.T) {
	t.Parallel()

	ttl, err := AuthConfig{}.PipelineTokenDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, ttl)

	assert.Equal(t, 30*time.Second, AssistantConfig{}.Timeout())
	assert.Equal(t, 120*time.Second, PipelineConfig{}.Timeout())
}
