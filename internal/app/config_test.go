package app

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.RBACViewMaxStaleness)
	assert.Equal(t, RefreshInline, cfg.RBACRefreshMode)
	assert.Equal(t, "*/15 * * * *", cfg.RBACRefreshCron)
	assert.Equal(t, "rbac.permissions.bump", cfg.RBACInvalidationChannel)
	assert.False(t, cfg.ObjectStoreEnabled())
}

func TestConfigValidate(t *testing.T) {
	base := func() Config {
		return Config{SessionSecret: "s", CSRFSecret: "c", RBACRefreshMode: "Queue", RBACViewMaxStaleness: time.Minute}
	}

	cfg := base()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, RefreshQueue, cfg.RBACRefreshMode)

	cfg = base()
	cfg.RBACRefreshMode = "lazy"
	require.ErrorContains(t, cfg.Validate(), "RBAC_REFRESH_MODE")

	cfg = base()
	cfg.RBACViewMaxStaleness = 0
	require.Error(t, cfg.Validate())

	cfg = base()
	cfg.ContractWebhookURL = "https://hooks.example.com/contracts"
	require.ErrorContains(t, cfg.Validate(), "CONTRACT_WEBHOOK_SECRET")

	cfg = base()
	cfg.CSRFSecret = ""
	require.Error(t, cfg.Validate())
}

func TestNewLoggerHonoursFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", slog.Int64("user_id", 7))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"user_id":7`)
}

func TestInTestMode(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
