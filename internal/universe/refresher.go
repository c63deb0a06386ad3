package universe

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"golang.org/x/sync/errgroup"

	"token-knowledge/internal/cache"
	"token-knowledge/internal/cmc"
	"token-knowledge/internal/store"
)

// Lister is the slice of the market-data client the refresher needs.
type Lister interface {
	List(ctx context.Context, limit int) ([]cmc.BasicInfo, error)
	Price(ctx context.Context, symbols []string) ([]cmc.Price, error)
	GlobalMetrics(ctx context.Context, refresh bool) (*cmc.GlobalMetrics, error)
	FearAndGreed(ctx context.Context, refresh bool) (*cmc.FearAndGreed, error)
}

type FactStore interface {
	UpsertFact(ctx context.Context, f store.Fact) error
	FactByID(ctx context.Context, id string) (*store.Fact, error)
}

type Config struct {
	// Top is the universe size, the N of the top-N ranked tokens.
	Top int
	// Interval between full universe refreshes.
	Interval time.Duration
	// FreshWindow is how recent the sentinel fact must be for the startup
	// check to skip the initial refresh.
	FreshWindow time.Duration
	// PreloadInterval between hot-data preloads (global metrics, sentiment,
	// watchlist prices).
	PreloadInterval time.Duration
	// Watchlist prices kept warm by the preload.
	Watchlist []string
	// Concurrency bounds the per-token writes of a refresh cycle.
	Concurrency int
}

// Refresher maintains the top-N token snapshot: name/symbol lookup cache
// entries plus one retrievable fact per token, refreshed on a fixed interval
// with a staleness check so restarts inside the window do no redundant work.
type Refresher struct {
	cfg      Config
	market   Lister
	cache    cache.Store
	facts    FactStore
	embedder embedding.Embedder
	stop     chan struct{}
	done     chan struct{}
}

func New(cfg Config, market Lister, cacheStore cache.Store, facts FactStore, embedder embedding.Embedder) *Refresher {
	if cfg.Top <= 0 {
		cfg.Top = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 12 * time.Hour
	}
	if cfg.FreshWindow <= 0 {
		cfg.FreshWindow = cfg.Interval
	}
	if cfg.PreloadInterval <= 0 {
		cfg.PreloadInterval = 15 * time.Minute
	}
	if len(cfg.Watchlist) == 0 {
		cfg.Watchlist = []string{"BTC", "ETH", "SOL"}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	return &Refresher{
		cfg:      cfg,
		market:   market,
		cache:    cacheStore,
		facts:    facts,
		embedder: embedder,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the startup staleness check and launches the two background
// timers. Startup never blocks on a transient API error; refresh failures
// are logged and retried on the next tick.
func (r *Refresher) Start(ctx context.Context) {
	fresh, err := r.snapshotFresh(ctx)
	if err != nil {
		log.Printf("universe freshness check error: %v", err)
	}
	if fresh {
		log.Printf("top %d tokens already known", r.cfg.Top)
	} else if err := r.Refresh(ctx); err != nil {
		log.Printf("universe refresh error: %v", err)
	}

	r.Preload(ctx)

	go r.run(ctx)
}

// Stop terminates the background timers and waits for the loop to exit.
func (r *Refresher) Stop() {
	close(r.stop)
	<-r.done
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)
	refresh := time.NewTicker(r.cfg.Interval)
	defer refresh.Stop()
	preload := time.NewTicker(r.cfg.PreloadInterval)
	defer preload.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ctx.Done():
			return
		case <-refresh.C:
			if err := r.Refresh(ctx); err != nil {
				log.Printf("universe refresh error: %v", err)
			}
		case <-preload.C:
			r.Preload(ctx)
		}
	}
}

func (r *Refresher) sentinelKey() string {
	return fmt.Sprintf("cmc-top-%d", r.cfg.Top)
}

func (r *Refresher) snapshotFresh(ctx context.Context) (bool, error) {
	fact, err := r.facts.FactByID(ctx, store.FactID(r.sentinelKey()))
	if err != nil || fact == nil {
		return false, err
	}
	return time.Since(fact.CreatedAt) < r.cfg.FreshWindow, nil
}

// Refresh fetches the ranked listing, dedupes it by symbol and writes lookup
// cache entries plus a fact per token, replacing last cycle's facts in place.
// Per-token writes run with bounded concurrency to respect rate limits.
func (r *Refresher) Refresh(ctx context.Context) error {
	now := time.Now()

	tokens, err := r.market.List(ctx, r.cfg.Top)
	if err != nil {
		return fmt.Errorf("list top %d tokens: %w", r.cfg.Top, err)
	}
	log.Printf("fetched top %d tokens from coinmarketcap", len(tokens))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, token := range uniqueSymbols(tokens) {
		g.Go(func() error {
			if err := cache.SetJSON(gctx, r.cache, "token-by-name:"+strings.ToLower(token.Name), token, 0); err != nil {
				return err
			}
			if err := cache.SetJSON(gctx, r.cache, "token-by-symbol:"+strings.ToLower(token.Symbol), token, 0); err != nil {
				return err
			}
			body := fmt.Sprintf("%s with symbol %s has rank %d on CoinMarketCap", token.Name, token.Symbol, token.Rank)
			return r.addFact(gctx, store.FactID(strconv.FormatInt(token.ID, 10)), body, now)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	body := fmt.Sprintf("Fetched top %d tokens from CoinMarketCap on %s", r.cfg.Top, now.UTC().Format(time.RFC1123))
	if err := r.addFact(ctx, store.FactID(r.sentinelKey()), body, now); err != nil {
		return err
	}

	log.Printf("top %d tokens updated", r.cfg.Top)
	return nil
}

func (r *Refresher) addFact(ctx context.Context, id, body string, now time.Time) error {
	vectors, err := r.embedder.EmbedStrings(ctx, []string{body})
	if err != nil {
		return fmt.Errorf("embed fact: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("embed fact: empty result")
	}
	if err := r.facts.UpsertFact(ctx, store.Fact{ID: id, Body: body, Embedding: vectors[0], CreatedAt: now}); err != nil {
		return err
	}
	return nil
}

// Preload keeps the most commonly requested data warm regardless of
// per-request caching. Each call fails independently and is only logged.
func (r *Refresher) Preload(ctx context.Context) {
	var g errgroup.Group
	g.Go(func() error {
		if _, err := r.market.GlobalMetrics(ctx, true); err != nil {
			log.Printf("failed to preload global metrics: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := r.market.FearAndGreed(ctx, true); err != nil {
			log.Printf("failed to preload fear and greed index: %v", err)
		}
		return nil
	})
	g.Go(func() error {
		if _, err := r.market.Price(ctx, r.cfg.Watchlist); err != nil {
			log.Printf("failed to preload prices: %v", err)
		}
		return nil
	})
	_ = g.Wait()
}

// uniqueSymbols keeps the first occurrence of each symbol, preserving rank
// order.
func uniqueSymbols(tokens []cmc.BasicInfo) []cmc.BasicInfo {
	seen := make(map[string]bool, len(tokens))
	out := make([]cmc.BasicInfo, 0, len(tokens))
	for _, token := range tokens {
		if seen[token.Symbol] {
			continue
		}
		seen[token.Symbol] = true
		out = append(out, token)
	}
	return out
}
