package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 9877, cfg.ExchangePort)
	assert.Equal(t, 9876, cfg.FeedPort)
	assert.Equal(t, "0.0.0.0:9877", cfg.ExchangeAddr())
	assert.Equal(t, "0.0.0.0:9876", cfg.FeedAddr())
	assert.Zero(t, cfg.TimeLimit)
	assert.Zero(t, cfg.UserLimit)
	assert.True(t, cfg.Started)
	assert.True(t, decimal.RequireFromString("1000").Equal(cfg.StartPrice))
	assert.True(t, decimal.RequireFromString("10000").Equal(cfg.CurrencyStart))
	assert.True(t, decimal.RequireFromString("10").Equal(cfg.AssetStart))
	assert.Equal(t, DefaultAdminSecret, cfg.AdminSecret)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Nil(t, cfg.Whitelist)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("CXGAME_EXCHANGE_PORT", "7000")
	t.Setenv("CXGAME_TIME_LIMIT", "90s")
	t.Setenv("CXGAME_USD_START", "500.50")

	cfg, err := Load([]string{"-exchange-port", "7100", "-started=false", "-crypto-start", "2.5", "-log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, 7100, cfg.ExchangePort)
	assert.Equal(t, 90*time.Second, cfg.TimeLimit)
	assert.False(t, cfg.Started)
	assert.True(t, decimal.RequireFromString("500.50").Equal(cfg.CurrencyStart))
	assert.True(t, decimal.RequireFromString("2.5").Equal(cfg.AssetStart))
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{name: "SamePorts", args: []string{"-feed-port", "9877"}, want: "cannot be the same"},
		{name: "EmptyAdminSecret", args: []string{"-admin-secret", ""}, want: "admin secret"},
		{name: "NegativeBalance", args: []string{"-usd-start", "-1"}, want: "negative"},
		{name: "BadDecimalFlag", args: []string{"-start-price", "abc"}, want: "failed to parse flags"},
		{name: "BadEnv", env: map[string]string{"CXGAME_USER_LIMIT": "many"}, want: "CXGAME_USER_LIMIT"},
		{name: "BadLogLevel", args: []string{"-log-level", "loud"}, want: "invalid log level"},
		{name: "MissingPem", args: []string{"-pem-file", "/does/not/exist.pem"}, want: "pem file"},
		{name: "MissingWhitelist", args: []string{"-whitelist", "/does/not/exist"}, want: "whitelist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Whitelist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whitelist.txt")
	require.NoError(t, os.WriteFile(path, []byte("alice\n\n bob \ncarol\n"), 0o600))

	cfg, err := Load([]string{"-whitelist", path})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, cfg.Whitelist)
}

func TestLoadWhitelist_Empty(t *testing.T) {
	names, err := LoadWhitelist(strings.NewReader("\n\n"))
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestGetEnv(t *testing.T) {
	t.Setenv("CXGAME_TEST_INT", "42")
	t.Setenv("CXGAME_TEST_BOOL", "false")

	n, err := GetEnv("CXGAME_TEST_INT", 1)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	b, err := GetEnv("CXGAME_TEST_BOOL", true)
	require.NoError(t, err)
	assert.False(t, b)

	s, err := GetEnv("CXGAME_TEST_UNSET", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", s)

	_, err = GetEnv("CXGAME_TEST_INT", 1.5)
	assert.Error(t, err)
}
