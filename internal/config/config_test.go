package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://pro-api.coinmarketcap.com", cfg.CoinMarketCap.BaseURL)
	assert.Equal(t, "https://coinmarketcap.com", cfg.CoinMarketCap.PageURL)
	assert.Equal(t, 100, cfg.Universe.Top)
	assert.Equal(t, 12, cfg.Universe.RefreshHours)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Universe.Watchlist)
}

func TestLoadOverridesFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  port: 9090
universe:
  top: 250
  watchlist: [BTC]
`))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 250, cfg.Universe.Top)
	assert.Equal(t, []string{"BTC"}, cfg.Universe.Watchlist)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7001")
	t.Setenv("COINMARKETCAP_API_KEY", "key-from-env")
	t.Setenv("CMC_TOP", "50")

	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 7001, cfg.Server.Port)
	assert.Equal(t, "key-from-env", cfg.CoinMarketCap.APIKey)
	assert.Equal(t, 50, cfg.Universe.Top)
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := Load(writeConfig(t, ""))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
