package cmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"token-knowledge/internal/cache"
)

const (
	nsInfo  = "coinmarketcap:info"
	nsQuote = "coinmarketcap:quote"
	nsAbout = "coinmarketcap:about"

	keyGlobalMetrics = "coinmarketcap:global-metrics"
	keyFearAndGreed  = "coinmarketcap:fear-and-greed"

	// Quotes are time-sensitive; identity info caches until evicted.
	quoteTTL = 15 * time.Minute
)

// AboutNamespace is where narrative summaries are cached, kept here so all
// coinmarketcap cache keys share one prefix scheme.
const AboutNamespace = nsAbout

// APIError is a non-zero status from the CoinMarketCap API, message passed
// through.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coinmarketcap api error %d: %s", e.Code, e.Message)
}

type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client talks to the CoinMarketCap API. Per-symbol lookups run through the
// keyed cache so repeated requests only fetch what is missing.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	cache   cache.Store
}

func New(cfg Config, store cache.Store) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://pro-api.coinmarketcap.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   store,
	}
}

type envelope struct {
	Status struct {
		ErrorCode    json.Number `json:"error_code"`
		ErrorMessage string      `json:"error_message"`
	} `json:"status"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request coinmarketcap: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode coinmarketcap response: %w", err)
	}
	if code, _ := env.Status.ErrorCode.Int64(); code != 0 {
		return &APIError{Code: code, Message: env.Status.ErrorMessage}
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode coinmarketcap data: %w", err)
	}
	return nil
}

// List returns the top limit tokens by rank. Not cached; the caller controls
// how often the listing is refreshed.
func (c *Client) List(ctx context.Context, limit int) ([]BasicInfo, error) {
	params := url.Values{}
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("sort", "cmc_rank")
	params.Set("aux", "")

	var data []BasicInfo
	if err := c.get(ctx, "/v1/cryptocurrency/map", params, &data); err != nil {
		return nil, err
	}
	out := make([]BasicInfo, len(data))
	for i, entry := range data {
		entry.Symbol = strings.ToUpper(entry.Symbol)
		out[i] = entry
	}
	return out, nil
}

type infoWire struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol"`
	Slug         string    `json:"slug"`
	Category     string    `json:"category"`
	Logo         string    `json:"logo"`
	Description  string    `json:"description"`
	DateAdded    string    `json:"date_added"`
	DateLaunched *string   `json:"date_launched"`
	Notice       string    `json:"notice"`
	Tags         []string  `json:"tags"`
	TagNames     []string  `json:"tag-names"`
	TagGroups    []string  `json:"tag-groups"`
	Platform     *Platform `json:"platform"`
	URLs         URLs      `json:"urls"`
}

// mergeTags joins the wire format's parallel arrays into typed tag objects.
func (w infoWire) toInfo() Info {
	tags := make([]Tag, len(w.Tags))
	for i, slug := range w.Tags {
		tag := Tag{Slug: slug}
		if i < len(w.TagNames) {
			tag.Name = w.TagNames[i]
		}
		if i < len(w.TagGroups) {
			tag.Category = w.TagGroups[i]
		}
		tags[i] = tag
	}
	info := Info{
		ID:          w.ID,
		Name:        w.Name,
		Symbol:      strings.ToUpper(w.Symbol),
		Slug:        w.Slug,
		Category:    w.Category,
		Logo:        w.Logo,
		Description: w.Description,
		DateAdded:   w.DateAdded,
		Notice:      w.Notice,
		Tags:        tags,
		Platform:    w.Platform,
		URLs:        w.URLs,
	}
	if w.DateLaunched != nil {
		info.DateLaunched = *w.DateLaunched
	}
	return info
}

// Info returns identity + metadata for the given symbols, fetching only
// symbols missing from the cache.
func (c *Client) Info(ctx context.Context, symbols []string) ([]Info, error) {
	return cache.FetchMany(ctx, c.cache, nsInfo, NormalizeSymbols(symbols),
		func(i Info) string { return i.Symbol }, 0,
		func(ctx context.Context, missing []string) ([]Info, error) {
			params := url.Values{}
			params.Set("symbol", strings.Join(missing, ","))
			params.Set("skip_invalid", "true")
			params.Set("aux", "urls,logo,description,tags,platform,date_added,status")

			var data map[string][]infoWire
			if err := c.get(ctx, "/v2/cryptocurrency/info", params, &data); err != nil {
				return nil, err
			}
			wires := topItems(data)
			out := make([]Info, len(wires))
			for i, w := range wires {
				out[i] = w.toInfo()
			}
			return out, nil
		})
}

// Price returns live quotes for the given symbols. Fresh quotes are cached
// for fifteen minutes.
func (c *Client) Price(ctx context.Context, symbols []string) ([]Price, error) {
	return cache.FetchMany(ctx, c.cache, nsQuote, NormalizeSymbols(symbols),
		func(p Price) string { return p.Symbol }, quoteTTL,
		func(ctx context.Context, missing []string) ([]Price, error) {
			params := url.Values{}
			params.Set("symbol", strings.Join(missing, ","))
			params.Set("convert", "USD")
			params.Set("skip_invalid", "true")
			params.Set("aux", "num_market_pairs,cmc_rank,max_supply,circulating_supply,total_supply,is_active,is_fiat,volume_7d,volume_30d")

			var data map[string][]Price
			if err := c.get(ctx, "/v2/cryptocurrency/quotes/latest", params, &data); err != nil {
				return nil, err
			}
			out := topItems(data)
			for i := range out {
				out[i].Symbol = strings.ToUpper(out[i].Symbol)
			}
			return out, nil
		})
}

// GlobalMetrics returns the cached global snapshot; refresh forces a remote
// call and overwrites it.
func (c *Client) GlobalMetrics(ctx context.Context, refresh bool) (*GlobalMetrics, error) {
	if !refresh {
		cached, err := cache.GetJSON[GlobalMetrics](ctx, c.cache, keyGlobalMetrics)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	params := url.Values{}
	params.Set("convert", "USD")
	var metrics GlobalMetrics
	if err := c.get(ctx, "/v1/global-metrics/quotes/latest", params, &metrics); err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, c.cache, keyGlobalMetrics, metrics, 0); err != nil {
		return nil, err
	}
	return &metrics, nil
}

// FearAndGreed returns the cached sentiment index; refresh forces a remote
// call and overwrites it.
func (c *Client) FearAndGreed(ctx context.Context, refresh bool) (*FearAndGreed, error) {
	if !refresh {
		cached, err := cache.GetJSON[FearAndGreed](ctx, c.cache, keyFearAndGreed)
		if err != nil {
			return nil, err
		}
		if cached != nil {
			return cached, nil
		}
	}

	var data FearAndGreed
	if err := c.get(ctx, "/v3/fear-and-greed/latest", url.Values{}, &data); err != nil {
		return nil, err
	}
	if err := cache.SetJSON(ctx, c.cache, keyFearAndGreed, data, 0); err != nil {
		return nil, err
	}
	return &data, nil
}

// topItems keeps the first entry per symbol; the API nests sibling listings
// under each requested key.
func topItems[T any](data map[string][]T) []T {
	out := make([]T, 0, len(data))
	for _, items := range data {
		if len(items) > 0 {
			out = append(out, items[0])
		}
	}
	return out
}

// NormalizeSymbols uppercases, trims and dedupes while keeping first-seen
// order. Symbols are case-insensitive at ingestion boundaries.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
