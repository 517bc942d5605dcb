package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50, cfg.Marketplace.MaxBid)
	assert.Equal(t, "KSh", cfg.Marketplace.Currency)
	assert.Equal(t, "simulated", cfg.Payments.Gateway.Mode)
}

func TestGenerateDefaultMatchesDefault(t *testing.T) {
	cfg, err := FromYAML([]byte(GenerateDefault()))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("marketplace:\n  max_bid: 80\n"))
	require.NoError(t, err)
	assert.Equal(t, 80, cfg.Marketplace.MaxBid)
	assert.Equal(t, "254", cfg.Marketplace.CountryCode)
	assert.Equal(t, 3, cfg.RateLimits.ProfileUpdates.Max)
}

func TestFromTOML(t *testing.T) {
	data := `
[marketplace]
max_bid = 40

[payments.gateway]
mode = "http"
url = "https://pay.example.com/stk"

[[webhooks]]
id = "ops"
url = "https://hooks.example.com/in"
events = ["message.sent"]
`
	cfg, err := FromTOML([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, 40, cfg.Marketplace.MaxBid)
	assert.Equal(t, "http", cfg.Payments.Gateway.Mode)
	require.Len(t, cfg.Webhooks, 1)
	assert.True(t, cfg.Webhooks[0].IsEnabled())
	assert.Equal(t, []string{"message.sent"}, cfg.Webhooks[0].Events)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"zero max bid":      "marketplace:\n  max_bid: -1\n",
		"bad gateway mode":  "payments:\n  gateway:\n    mode: carrier-pigeon\n",
		"http without url":  "payments:\n  gateway:\n    mode: http\n",
		"webhook no url":    "webhooks:\n  - id: a\n",
		"duplicate webhook": "webhooks:\n  - id: a\n    url: http://x/1\n  - id: a\n    url: http://x/2\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadPrefersYAMLThenTOMLThenDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hustle.toml"), []byte("[marketplace]\nmax_bid = 30\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Marketplace.MaxBid)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hustle.yml"), []byte("marketplace:\n  max_bid: 20\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Marketplace.MaxBid)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("HUSTLE_JWT_SECRET", "s3cret")
	t.Setenv("HUSTLE_STORAGE_TYPE", "s3")
	t.Setenv("HUSTLE_S3_BUCKET", "avatars")
	t.Setenv("HUSTLE_GATEWAY_SECRET", "outbound")
	t.Setenv("HUSTLE_CALLBACK_SECRET", "inbound")
	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", env.JWTSecret)
	assert.Equal(t, "avatars", env.S3Bucket)
	assert.Equal(t, "campushustle/", env.S3Prefix)
	assert.Equal(t, "outbound", env.Secret)
	assert.Equal(t, "inbound", env.CallbackSecret)

	t.Setenv("HUSTLE_S3_BUCKET", "")
	_, err = LoadEnv()
	assert.Error(t, err)
}
