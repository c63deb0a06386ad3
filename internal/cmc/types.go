package cmc

// BasicInfo is the identity projection of the ranked token listing.
type BasicInfo struct {
	ID     int64  `json:"id"`
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
	Slug   string `json:"slug"`
}

type Platform struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	Slug         string `json:"slug"`
	TokenAddress string `json:"token_address"`
}

// Tag is the typed form of the wire format's parallel tags/tag-names/tag-groups
// arrays, merged index-wise at the API boundary.
type Tag struct {
	Slug     string `json:"slug"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type URLs struct {
	Website      []string `json:"website"`
	Twitter      []string `json:"twitter"`
	MessageBoard []string `json:"message_board"`
	Chat         []string `json:"chat"`
	Facebook     []string `json:"facebook"`
	Explorer     []string `json:"explorer"`
	Reddit       []string `json:"reddit"`
	TechnicalDoc []string `json:"technical_doc"`
	SourceCode   []string `json:"source_code"`
	Announcement []string `json:"announcement"`
}

// Info is the identity + metadata record for a token.
type Info struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Symbol       string    `json:"symbol"`
	Slug         string    `json:"slug"`
	Category     string    `json:"category"`
	Logo         string    `json:"logo"`
	Description  string    `json:"description"`
	DateAdded    string    `json:"date_added"`
	DateLaunched string    `json:"date_launched"`
	Notice       string    `json:"notice"`
	Tags         []Tag     `json:"tags"`
	Platform     *Platform `json:"platform"`
	URLs         URLs      `json:"urls"`
}

// Quote is the per-currency numeric snapshot of a price record. Percent
// changes are pointers: the API omits them for thin markets and "absent" has
// to stay distinguishable from zero.
type Quote struct {
	Price            float64  `json:"price"`
	Volume24h        float64  `json:"volume_24h"`
	Volume7d         float64  `json:"volume_7d"`
	Volume30d        float64  `json:"volume_30d"`
	MarketCap        float64  `json:"market_cap"`
	PercentChange1h  *float64 `json:"percent_change_1h"`
	PercentChange24h *float64 `json:"percent_change_24h"`
	PercentChange7d  *float64 `json:"percent_change_7d"`
	PercentChange30d *float64 `json:"percent_change_30d"`
	LastUpdated      string   `json:"last_updated"`
}

// Price wraps identity fields plus live quotes keyed by currency.
type Price struct {
	ID                    int64            `json:"id"`
	Name                  string           `json:"name"`
	Symbol                string           `json:"symbol"`
	Slug                  string           `json:"slug"`
	Rank                  int              `json:"cmc_rank"`
	NumMarketPairs        int              `json:"num_market_pairs"`
	CirculatingSupply     float64          `json:"circulating_supply"`
	TotalSupply           float64          `json:"total_supply"`
	MaxSupply             float64          `json:"max_supply"`
	SelfReportedMarketCap *float64         `json:"self_reported_market_cap"`
	Platform              *Platform        `json:"platform"`
	LastUpdated           string           `json:"last_updated"`
	Quote                 map[string]Quote `json:"quote"`
}

type GlobalQuote struct {
	TotalMarketCap                float64 `json:"total_market_cap"`
	TotalMarketCapYesterdayChange float64 `json:"total_market_cap_yesterday_percentage_change"`
	TotalVolume24h                float64 `json:"total_volume_24h"`
	TotalVolume24hYesterdayChange float64 `json:"total_volume_24h_yesterday_percentage_change"`
	AltcoinVolume24h              float64 `json:"altcoin_volume_24h"`
	AltcoinMarketCap              float64 `json:"altcoin_market_cap"`
	StablecoinVolume24h           float64 `json:"stablecoin_volume_24h"`
	StablecoinMarketCap           float64 `json:"stablecoin_market_cap"`
	DefiVolume24h                 float64 `json:"defi_volume_24h"`
	DefiMarketCap                 float64 `json:"defi_market_cap"`
	LastUpdated                   string  `json:"last_updated"`
}

// GlobalMetrics is a whole-snapshot record, not keyed by token.
type GlobalMetrics struct {
	BTCDominance          float64                `json:"btc_dominance"`
	ETHDominance          float64                `json:"eth_dominance"`
	BTCDominance24hChange float64                `json:"btc_dominance_24h_percentage_change"`
	ETHDominance24hChange float64                `json:"eth_dominance_24h_percentage_change"`
	ActiveCryptos         int                    `json:"active_cryptocurrencies"`
	TotalCryptos          int                    `json:"total_cryptocurrencies"`
	ActiveExchanges       int                    `json:"active_exchanges"`
	LastUpdated           string                 `json:"last_updated"`
	Quote                 map[string]GlobalQuote `json:"quote"`
}

type FearAndGreed struct {
	Value          int    `json:"value"`
	Classification string `json:"value_classification"`
}
