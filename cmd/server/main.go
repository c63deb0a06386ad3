package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"token-knowledge/internal/api"
	"token-knowledge/internal/cmc"
	"token-knowledge/internal/config"
	"token-knowledge/internal/llm"
	"token-knowledge/internal/narrative"
	"token-knowledge/internal/report"
	"token-knowledge/internal/resolver"
	"token-knowledge/internal/store"
	"token-knowledge/internal/universe"

	openaiembed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/hertz/pkg/app/server"
)

func main() {
	cfg, err := config.Load("configs/app.yaml")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))

	st, err := store.Open(cfg.Store.Sqlite.Path)
	if err != nil {
		log.Fatalf("store error: %v", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("store close error: %v", err)
		}
	}()

	gen := llm.New(llm.Config{
		Model:      cfg.LLM.Model,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		ByAzure:    cfg.LLM.ByAzure,
		APIVersion: cfg.LLM.APIVersion,
		TimeoutMs:  cfg.LLM.TimeoutMs,
	})

	embedder, err := openaiembed.NewEmbedder(context.Background(), &openaiembed.EmbeddingConfig{
		APIKey:  cfg.Embedding.APIKey,
		Model:   cfg.Embedding.Model,
		BaseURL: cfg.Embedding.BaseURL,
		Timeout: time.Duration(cfg.Embedding.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("embedder error: %v", err)
	}

	market := cmc.New(cmc.Config{
		APIKey:  cfg.CoinMarketCap.APIKey,
		BaseURL: cfg.CoinMarketCap.BaseURL,
		Timeout: time.Duration(cfg.CoinMarketCap.TimeoutMs) * time.Millisecond,
	}, st)

	enricher := narrative.New(narrative.Config{
		PageURL: cfg.CoinMarketCap.PageURL,
		Timeout: time.Duration(cfg.CoinMarketCap.TimeoutMs) * time.Millisecond,
	}, st, gen)

	mentions := resolver.New(st, st, embedder, gen)
	reports := report.NewService(market, enricher, mentions)

	refresher := universe.New(universe.Config{
		Top:             cfg.Universe.Top,
		Interval:        time.Duration(cfg.Universe.RefreshHours) * time.Hour,
		FreshWindow:     time.Duration(cfg.Universe.FreshWindowHours) * time.Hour,
		PreloadInterval: time.Duration(cfg.Universe.PreloadMinutes) * time.Minute,
		Watchlist:       cfg.Universe.Watchlist,
		Concurrency:     cfg.Universe.Concurrency,
	}, market, st, st, embedder)

	refresher.Start(context.Background())
	defer refresher.Stop()

	api.RegisterRoutes(h, reports, refresher)

	log.Printf("server starting on %s (log.level=%s)", addr, cfg.Log.Level)
	if err := h.Run(); err != nil {
		log.Fatalf("server run error: %v", err)
	}
}
