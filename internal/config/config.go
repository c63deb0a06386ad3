package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Log           LogConfig           `yaml:"log"`
	Store         StoreConfig         `yaml:"store"`
	CoinMarketCap CoinMarketCapConfig `yaml:"coinmarketcap"`
	LLM           LLMConfig           `yaml:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	Universe      UniverseConfig      `yaml:"universe"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type StoreConfig struct {
	Sqlite SqliteConfig `yaml:"sqlite"`
}

type SqliteConfig struct {
	Path string `yaml:"path"`
}

type CoinMarketCapConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	PageURL   string `yaml:"page_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type LLMConfig struct {
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms"`
}

type EmbeddingConfig struct {
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type UniverseConfig struct {
	Top              int      `yaml:"top"`
	RefreshHours     int      `yaml:"refresh_hours"`
	FreshWindowHours int      `yaml:"fresh_window_hours"`
	PreloadMinutes   int      `yaml:"preload_minutes"`
	Concurrency      int      `yaml:"concurrency"`
	Watchlist        []string `yaml:"watchlist"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
		Store: StoreConfig{
			Sqlite: SqliteConfig{Path: "data/app.db"},
		},
		CoinMarketCap: CoinMarketCapConfig{
			BaseURL:   "https://pro-api.coinmarketcap.com",
			PageURL:   "https://coinmarketcap.com",
			TimeoutMs: 10000,
		},
		LLM: LLMConfig{
			Model:     "gpt-4.1-mini",
			TimeoutMs: 30000,
		},
		Embedding: EmbeddingConfig{
			Model:     "text-embedding-3-small",
			TimeoutMs: 10000,
		},
		Universe: UniverseConfig{
			Top:              100,
			RefreshHours:     12,
			FreshWindowHours: 12,
			PreloadMinutes:   15,
			Concurrency:      10,
			Watchlist:        []string{"BTC", "ETH", "SOL"},
		},
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("COINMARKETCAP_API_KEY"); v != "" {
		cfg.CoinMarketCap.APIKey = v
	}
	if v := os.Getenv("COINMARKETCAP_API_URL"); v != "" {
		cfg.CoinMarketCap.BaseURL = v
	}
	if v := os.Getenv("CMC_TOP"); v != "" {
		top, err := strconv.Atoi(v)
		if err != nil || top <= 0 {
			return fmt.Errorf("invalid CMC_TOP: %q", v)
		}
		cfg.Universe.Top = top
	}
	return nil
}
