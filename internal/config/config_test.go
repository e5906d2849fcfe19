package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://play.daiju.live", cfg.API.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, "https://mail.chatgpt.org.uk", cfg.Mail.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.Mail.PollInterval)
	assert.Equal(t, 50*time.Minute, cfg.Usage.RefreshInterval)
	assert.Equal(t, 1.0, cfg.Claim.MinBalance)
	assert.Equal(t, 4.0, cfg.Claim.UnitPrice)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("WARPPLUS_API_BASE_URL", "https://example.com/")
	t.Setenv("WARPPLUS_MAIL_POLL_INTERVAL", "3s")
	t.Setenv("WARPPLUS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	// 末尾斜杠会被裁掉
	assert.Equal(t, "https://example.com", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.Mail.PollInterval)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidInterval(t *testing.T) {
	t.Setenv("WARPPLUS_MAIL_POLL_INTERVAL", "not-a-duration")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_NonPositiveInterval(t *testing.T) {
	t.Setenv("WARPPLUS_USAGE_REFRESH_INTERVAL", "-5m")

	_, err := Load()
	assert.Error(t, err)
}

func TestConfig_SessionFilePath_Explicit(t *testing.T) {
	cfg := &Config{Session: SessionConfig{FilePath: "/tmp/custom_session.json"}}

	path, err := cfg.SessionFilePath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom_session.json", path)
}
