package app

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/resguarit/pos-system-sub005/testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TERMINAL_KEY_HASH", "$2a$04$abcdefghijklmnopqrstuu")
	// The test-mode import forces FISCAL_MODE=off; drop it to see the default.
	t.Setenv("FISCAL_MODE", "")
	require.NoError(t, os.Unsetenv("FISCAL_MODE"))
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, FiscalModeAsync, cfg.FiscalMode)
	require.Equal(t, 10, cfg.NumberingMaxAttempts)
	require.Equal(t, 10*time.Minute, cfg.StockDedupTTL)
	require.False(t, cfg.AllowNegativeStock)
	require.False(t, cfg.IsProduction())
	require.True(t, InTestMode())

	pool := cfg.PoolOptions()
	require.Equal(t, int32(10), pool.MaxConns)
	require.Equal(t, int32(1), pool.MinConns)
	require.Equal(t, time.Hour, pool.MaxConnLifetime)
	require.Equal(t, 10, cfg.CacheOptions().PoolSize)
	require.Equal(t, "127.0.0.1:6379", cfg.CacheOptions().Addr)
}

func TestLoadConfigRequiresTerminalKey(t *testing.T) {
	t.Setenv("TERMINAL_KEY_HASH", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			TerminalKeyHash:      "hash",
			FiscalMode:           FiscalModeOff,
			LogFormat:            "json",
			LogLevel:             "debug",
			NumberingMaxAttempts: 3,
			RateLimitPerMinute:   60,
			FiscalTimeout:        time.Second,
			PGMaxConns:           4,
			PGMinConns:           1,
		}
	}
	base := valid()
	require.NoError(t, base.Validate())

	cases := map[string]func(*Config){
		"fiscal mode":  func(c *Config) { c.FiscalMode = "maybe" },
		"log format":   func(c *Config) { c.LogFormat = "xml" },
		"log level":    func(c *Config) { c.LogLevel = "chatty" },
		"attempts":     func(c *Config) { c.NumberingMaxAttempts = 0 },
		"rate limit":   func(c *Config) { c.RateLimitPerMinute = 0 },
		"timeout":      func(c *Config) { c.FiscalTimeout = 0 },
		"terminal key": func(c *Config) { c.TerminalKeyHash = "" },
		"max conns":    func(c *Config) { c.PGMaxConns = 0 },
		"min conns":    func(c *Config) { c.PGMinConns = 5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
