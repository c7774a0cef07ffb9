package price

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"crypto-price-alerts/internal/types"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type CoinpaprikaConfig struct {
	APIKey       string
	Currency     string
	UniverseSize int
}

// Coinpaprika serves the same universe as CoinGecko from the coinpaprika
// tickers listing, ranked by market cap.
type Coinpaprika struct {
	cfg  CoinpaprikaConfig
	list func(*coinpaprika.TickersOptions) ([]*coinpaprika.Ticker, error)
	now  func() time.Time
}

func NewCoinpaprika(cfg CoinpaprikaConfig, httpClient *http.Client) (*Coinpaprika, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Provider: "coinpaprika", Field: "API_PRO_KEY"}
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.UniverseSize = universeSize(cfg.UniverseSize)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	client := coinpaprika.NewClient(httpClient, coinpaprika.WithAPIKey(cfg.APIKey))
	return &Coinpaprika{cfg: cfg, list: client.Tickers.List, now: time.Now}, nil
}

func (c *Coinpaprika) Fetch(ctx context.Context) (types.PriceSnapshot, error) {
	// the client has no context support, honour cancellation before the call
	if err := ctx.Err(); err != nil {
		return types.PriceSnapshot{}, newFetchError("coinpaprika", err)
	}

	quote := strings.ToUpper(c.cfg.Currency)
	tickers, err := c.list(&coinpaprika.TickersOptions{Quotes: quote})
	if err != nil {
		return types.PriceSnapshot{}, newFetchError("coinpaprika", err)
	}

	quotes := quotesFromTickers(tickers, quote, c.cfg.UniverseSize)
	log.Debugf("coinpaprika: fetched %d quotes out of %d tickers", len(quotes), len(tickers))
	return types.NewPriceSnapshot(quotes, c.now()), nil
}

// quotesFromTickers orders tickers by rank (unranked last, ties by id) and
// keeps the first limit entries that carry a price in the requested quote.
func quotesFromTickers(tickers []*coinpaprika.Ticker, quote string, limit int) []types.PriceQuote {
	ranked := make([]*coinpaprika.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if t == nil || t.ID == nil {
			continue
		}
		q, ok := t.Quotes[quote]
		if !ok || q.Price == nil {
			continue
		}
		ranked = append(ranked, t)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := rankOf(ranked[i]), rankOf(ranked[j])
		if ri != rj {
			return ri < rj
		}
		return *ranked[i].ID < *ranked[j].ID
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	quotes := make([]types.PriceQuote, 0, len(ranked))
	for _, t := range ranked {
		q := t.Quotes[quote]
		pq := types.PriceQuote{
			AssetID:      *t.ID,
			CurrentPrice: decimal.NewFromFloat(*q.Price),
		}
		if t.Name != nil {
			pq.DisplayName = *t.Name
		}
		if t.Symbol != nil {
			pq.Symbol = strings.ToLower(*t.Symbol)
		}
		if q.PercentChange24h != nil {
			pq.Change24hPercent = decimal.NewFromFloat(*q.PercentChange24h)
		}
		quotes = append(quotes, pq)
	}
	return quotes
}

func rankOf(t *coinpaprika.Ticker) int64 {
	if t.Rank == nil || *t.Rank <= 0 {
		return 1<<62 - 1
	}
	return int64(*t.Rank)
}
