package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, 30, cfg.NotificationPageSize)
	require.Equal(t, 100, cfg.NotificationMaxPageSize)
	require.Equal(t, "notifications", cfg.RealtimeChannelPrefix)
	require.Equal(t, 24*time.Hour, cfg.SessionTTL)
	require.True(t, cfg.LowStockAlerts)
	require.Equal(t, language.BrazilianPortuguese, cfg.Locale())
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"page size above max": {"NOTIFICATION_PAGE_SIZE", "500"},
		"zero rate limit":     {"RATE_LIMIT_PER_MINUTE", "0"},
		"bad locale":          {"ALERT_LOCALE", "not a locale!"},
		"bad duration":        {"SESSION_TTL", "forever"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "json", AppEnv: "test"}, &buf).Info("hello")
	require.True(t, strings.HasPrefix(buf.String(), "{"))
	require.Contains(t, buf.String(), `"env":"test"`)

	buf.Reset()
	newLogger(nil, &buf).Info("hello")
	require.Contains(t, buf.String(), "msg=hello")
}

func TestTestModeFlag(t *testing.T) {
	t.Setenv(testModeEnv, "1")
	RefreshTestMode()
	require.True(t, InTestMode())

	t.Setenv(testModeEnv, "")
	RefreshTestMode()
	require.False(t, InTestMode())
}
