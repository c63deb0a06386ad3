package report

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"token-knowledge/internal/cmc"
	"token-knowledge/internal/narrative"
	"token-knowledge/internal/resolver"
)

const globalReportApology = "I failed to get global market metrics"

// MarketData is the slice of the market-data client the report service needs.
type MarketData interface {
	Info(ctx context.Context, symbols []string) ([]cmc.Info, error)
	Price(ctx context.Context, symbols []string) ([]cmc.Price, error)
	GlobalMetrics(ctx context.Context, refresh bool) (*cmc.GlobalMetrics, error)
	FearAndGreed(ctx context.Context, refresh bool) (*cmc.FearAndGreed, error)
}

type Narrator interface {
	About(ctx context.Context, infos []narrative.Source) ([]narrative.About, error)
}

type MentionSource interface {
	Mentions(ctx context.Context, message string) ([]resolver.Mention, error)
	Resolve(ctx context.Context, mentions []resolver.Mention) ([]resolver.Mention, error)
}

// Service aggregates market data and narrative summaries for the tokens a
// message discusses and renders them as text reports. Every internal failure
// degrades to a substituted message; the report is always a string.
type Service struct {
	market   MarketData
	narrator Narrator
	mentions MentionSource
}

func NewService(market MarketData, narrator Narrator, mentions MentionSource) *Service {
	return &Service{market: market, narrator: narrator, mentions: mentions}
}

// Report renders the global market section followed by one section per token
// mentioned in the message.
func (s *Service) Report(ctx context.Context, message string) string {
	parts := []string{s.GlobalReport(ctx)}
	parts = append(parts, s.TokenReports(ctx, message)...)
	return strings.Join(parts, "\n\n")
}

// GlobalReport renders market-wide metrics, the sentiment index and the
// majors. Any failure substitutes a fixed apology line.
func (s *Service) GlobalReport(ctx context.Context) string {
	var (
		metrics   *cmc.GlobalMetrics
		fearGreed *cmc.FearAndGreed
		prices    []cmc.Price
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		metrics, err = s.market.GlobalMetrics(gctx, false)
		return err
	})
	g.Go(func() (err error) {
		fearGreed, err = s.market.FearAndGreed(gctx, false)
		return err
	})
	g.Go(func() (err error) {
		prices, err = s.market.Price(gctx, []string{"BTC", "ETH", "SOL"})
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("failed to get global market metrics: %v", err)
		return globalReportApology
	}

	quote, ok := metrics.Quote["USD"]
	if !ok {
		log.Printf("failed to get global market metrics: no USD quote")
		return globalReportApology
	}

	lines := []string{
		"## Global Market Metrics",
		fmt.Sprintf("Market Cap: %s (%s 24h)",
			formatCurrency("$", &quote.TotalMarketCap),
			formatUpDown(&quote.TotalMarketCapYesterdayChange)),
		fmt.Sprintf("24h Volume: %s (%s 24h)",
			formatCurrency("$", &quote.TotalVolume24h),
			formatUpDown(&quote.TotalVolume24hYesterdayChange)),
	}

	if q := usdQuote(prices, "BTC"); q != nil {
		lines = append(lines, fmt.Sprintf(
			"BTC Price: %s (%s 24h | %s 7d | %s 30d) | BTC Dominance: %.2f%% (%s 24h)",
			formatCurrency("$", &q.Price),
			formatUpDown(q.PercentChange24h), formatUpDown(q.PercentChange7d), formatUpDown(q.PercentChange30d),
			metrics.BTCDominance, formatUpDown(&metrics.BTCDominance24hChange)))
	} else {
		lines = append(lines, "BTC: N/A")
	}
	if q := usdQuote(prices, "ETH"); q != nil {
		lines = append(lines, fmt.Sprintf(
			"ETH Price: %s (%s 24h | %s 7d | %s 30d) | ETH Dominance: %.2f%% (%s 24h)",
			formatCurrency("$", &q.Price),
			formatUpDown(q.PercentChange24h), formatUpDown(q.PercentChange7d), formatUpDown(q.PercentChange30d),
			metrics.ETHDominance, formatUpDown(&metrics.ETHDominance24hChange)))
	} else {
		lines = append(lines, "ETH: N/A")
	}
	if q := usdQuote(prices, "SOL"); q != nil {
		lines = append(lines, fmt.Sprintf(
			"SOL Price: %s (%s 24h | %s 7d | %s 30d)",
			formatCurrency("$", &q.Price),
			formatUpDown(q.PercentChange24h), formatUpDown(q.PercentChange7d), formatUpDown(q.PercentChange30d)))
	} else {
		lines = append(lines, "SOL: N/A")
	}

	if fearGreed != nil {
		lines = append(lines, fmt.Sprintf("Fear & Greed: %d (%s)", fearGreed.Value, fearGreed.Classification))
	} else {
		lines = append(lines, "Fear & Greed: N/A")
	}

	return strings.Join(lines, "\n")
}

// TokenReports extracts and resolves the message's token mentions, fetches
// their data and renders one report per token. A single token's failure
// never aborts the batch.
func (s *Service) TokenReports(ctx context.Context, message string) []string {
	mentions, err := s.mentions.Mentions(ctx, message)
	if err == nil {
		mentions, err = s.mentions.Resolve(ctx, mentions)
	}
	if err != nil {
		log.Printf("failed to get tokens from context: %v", err)
		return nil
	}
	if len(mentions) == 0 {
		return nil
	}

	order, merged, err := s.fetchTokenInfo(ctx, mentions)
	if err != nil {
		log.Printf("failed to fetch token info: %v", err)
		return []string{"I failed to gather token information"}
	}

	reports := make([]string, 0, len(order))
	for _, key := range order {
		record := merged[key]
		text, err := generateReport(record)
		if err != nil {
			title := record.title()
			log.Printf("failed to generate report for %s: %v", title, err)
			text = "I failed to generate a report for " + title
		}
		reports = append(reports, text)
	}
	return reports
}

// mergedToken joins the three independently fetched shapes for one token.
// info/price/about stay nil when the corresponding fetch had no match.
type mergedToken struct {
	mention resolver.Mention
	info    *cmc.Info
	price   *cmc.Price
	about   *narrative.About
}

func (m *mergedToken) title() string {
	if m.info != nil {
		if m.info.Symbol != "" {
			return fmt.Sprintf("%s (%s)", m.info.Name, m.info.Symbol)
		}
		return m.info.Name
	}
	return m.mention.Title()
}

// fetchTokenInfo fans out to the market-data and narrative fetches and merges
// the results by symbol. The result map is seeded with every mention, so a
// symbol the upstream API does not recognize still yields an entry carrying
// only the bare mention.
func (s *Service) fetchTokenInfo(ctx context.Context, mentions []resolver.Mention) ([]string, map[string]*mergedToken, error) {
	var symbols []string
	for _, mention := range mentions {
		if mention.Symbol != "" {
			symbols = append(symbols, mention.Symbol)
		}
	}
	symbols = cmc.NormalizeSymbols(symbols)

	var (
		infos  []cmc.Info
		prices []cmc.Price
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		infos, err = s.market.Info(gctx, symbols)
		return err
	})
	g.Go(func() (err error) {
		prices, err = s.market.Price(gctx, symbols)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sources := make([]narrative.Source, len(infos))
	for i, info := range infos {
		sources[i] = narrative.Source{ID: info.ID, Symbol: info.Symbol, Slug: info.Slug}
	}
	abouts, err := s.narrator.About(ctx, sources)
	if err != nil {
		return nil, nil, err
	}

	var order []string
	merged := make(map[string]*mergedToken, len(mentions))
	for _, mention := range mentions {
		key := mention.Symbol
		if key == "" {
			key = mention.Name
		}
		if _, ok := merged[key]; ok {
			continue
		}
		order = append(order, key)
		merged[key] = &mergedToken{mention: mention}
	}
	for i := range infos {
		if record, ok := merged[infos[i].Symbol]; ok {
			record.info = &infos[i]
		}
	}
	for i := range prices {
		if record, ok := merged[prices[i].Symbol]; ok {
			record.price = &prices[i]
		}
	}
	for i := range abouts {
		if record, ok := merged[abouts[i].Symbol]; ok {
			record.about = &abouts[i]
		}
	}

	return order, merged, nil
}

func generateReport(record *mergedToken) (string, error) {
	title := record.title()

	if record.info == nil {
		log.Printf("not enough info to generate token report for %s", title)
		return "I don't have any information on " + title, nil
	}
	info := record.info

	log.Printf("generating token report for %s", title)

	lines := []string{"## About " + title}

	if price := record.price; price != nil {
		currency, quote, err := primaryQuote(price)
		if err != nil {
			return "", err
		}

		marketCap := quote.MarketCap
		if marketCap == 0 && currency == "$" && price.SelfReportedMarketCap != nil {
			marketCap = *price.SelfReportedMarketCap
		}

		lines = append(lines,
			fmt.Sprintf("Rank: %d", price.Rank),
			fmt.Sprintf("Price: %s (%s 24h | %s 7d | %s 30d)",
				formatCurrency(currency, &quote.Price),
				formatUpDown(quote.PercentChange24h), formatUpDown(quote.PercentChange7d), formatUpDown(quote.PercentChange30d)),
			fmt.Sprintf("Market Cap: %s", formatCurrency(currency, &marketCap)),
			fmt.Sprintf("Volume: %s %s 24h | %s %s 7d | %s %s 30d",
				currency, formatWhole(quote.Volume24h),
				currency, formatWhole(quote.Volume7d),
				currency, formatWhole(quote.Volume30d)),
		)
	}

	if info.DateLaunched != "" {
		lines = append(lines, "Launched: "+formatDate(info.DateLaunched), "")
	}

	if record.about != nil {
		lines = append(lines, record.about.Content, "")
	}

	if len(info.URLs.Website) > 0 {
		lines = append(lines, fmt.Sprintf("* [Website](%s)", info.URLs.Website[0]))
	}
	if len(info.URLs.Twitter) > 0 {
		lines = append(lines, fmt.Sprintf("* [Twitter](%s)", info.URLs.Twitter[0]))
	}
	if len(info.URLs.Reddit) > 0 {
		lines = append(lines, fmt.Sprintf("* [Reddit](%s)", info.URLs.Reddit[0]))
	}
	for _, chat := range info.URLs.Chat {
		if strings.HasPrefix(chat, "https://t.me/") {
			lines = append(lines, fmt.Sprintf("* [Telegram](%s)", chat))
			break
		}
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}

// primaryQuote picks the record's quote currency, preferring USD (rendered
// with its symbol) over whatever else the response carries.
func primaryQuote(price *cmc.Price) (string, cmc.Quote, error) {
	if len(price.Quote) == 0 {
		return "", cmc.Quote{}, fmt.Errorf("price record for %s has no quotes", price.Symbol)
	}
	if quote, ok := price.Quote["USD"]; ok {
		return "$", quote, nil
	}
	currencies := make([]string, 0, len(price.Quote))
	for currency := range price.Quote {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)
	return currencies[0], price.Quote[currencies[0]], nil
}

func usdQuote(prices []cmc.Price, symbol string) *cmc.Quote {
	for i := range prices {
		if prices[i].Symbol == symbol {
			if quote, ok := prices[i].Quote["USD"]; ok {
				return &quote
			}
		}
	}
	return nil
}
