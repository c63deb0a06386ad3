package narrative

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"token-knowledge/internal/cache"
	"token-knowledge/internal/cmc"
)

const summarizeInstruction = `Please summarize the following about section into a single paragraph of maximum of 250 words. No header.
Exclude price, volume, supply and marketcap information.
Exclude links to related sources.`

// About is a short narrative summary of a token, cached per symbol with no
// freshness requirement beyond presence.
type About struct {
	ID      int64  `json:"id"`
	Symbol  string `json:"symbol"`
	Slug    string `json:"slug"`
	Content string `json:"content"`
}

// Source identifies where a token's about page lives.
type Source struct {
	ID     int64
	Symbol string
	Slug   string
}

type textGenerator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Enricher fetches a token's descriptive page, reduces it to titled text
// sections and condenses those into one summary paragraph.
type Enricher struct {
	pageURL string
	client  *http.Client
	cache   cache.Store
	gen     textGenerator
}

type Config struct {
	PageURL string
	Timeout time.Duration
}

func New(cfg Config, store cache.Store, gen textGenerator) *Enricher {
	if cfg.PageURL == "" {
		cfg.PageURL = "https://coinmarketcap.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Enricher{
		pageURL: strings.TrimSuffix(cfg.PageURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		cache:   store,
		gen:     gen,
	}
}

// About returns one summary per distinct symbol in infos. Duplicate symbols
// collapse last-write-wins; only symbols missing from the cache hit the
// network and the summarizer.
func (e *Enricher) About(ctx context.Context, infos []Source) ([]About, error) {
	bySymbol := make(map[string]Source, len(infos))
	symbols := make([]string, 0, len(infos))
	for _, info := range infos {
		if _, ok := bySymbol[info.Symbol]; !ok {
			symbols = append(symbols, info.Symbol)
		}
		bySymbol[info.Symbol] = info
	}

	return cache.FetchMany(ctx, e.cache, cmc.AboutNamespace, symbols,
		func(a About) string { return a.Symbol }, 0,
		func(ctx context.Context, missing []string) ([]About, error) {
			out := make([]About, len(missing))
			g, ctx := errgroup.WithContext(ctx)
			for i, symbol := range missing {
				g.Go(func() error {
					info := bySymbol[symbol]
					sections, err := e.aboutSections(ctx, info.Slug)
					if err != nil {
						return err
					}
					summary, err := e.summarize(ctx, sections)
					if err != nil {
						return err
					}
					out[i] = About{ID: info.ID, Symbol: info.Symbol, Slug: info.Slug, Content: summary}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return nil, err
			}
			return out, nil
		})
}

// aboutSections pulls the token page and flattens the about section into
// "## title" blocks followed by their paragraph text.
func (e *Enricher) aboutSections(ctx context.Context, slug string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.pageURL+"/currencies/"+slug, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch about page for %s: %w", slug, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch about page for %s: status %d", slug, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("parse about page for %s: %w", slug, err)
	}

	var parts []string
	doc.Find("#section-coin-about section").Each(func(_ int, section *goquery.Selection) {
		title := strings.TrimSpace(section.Find("h3").First().Text())
		var paragraphs []string
		section.Find("p").Each(func(_ int, p *goquery.Selection) {
			text := strings.TrimSpace(p.Text())
			if text != "" {
				paragraphs = append(paragraphs, text)
			}
		})
		if title == "" && len(paragraphs) == 0 {
			return
		}
		parts = append(parts, "## "+title+"\n\n"+strings.Join(paragraphs, "\n\n"))
	})

	return strings.Join(parts, "\n\n"), nil
}

func (e *Enricher) summarize(ctx context.Context, content string) (string, error) {
	return e.gen.Generate(ctx, summarizeInstruction, "# About\n\n"+content)
}
