package price

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crypto-price-alerts/internal/types"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const coinGeckoKeyHeader = "x-cg-demo-api-key"

type CoinGeckoConfig struct {
	Endpoint     string
	APIKey       string
	Currency     string
	UniverseSize int
}

// CoinGecko reads the top of the coins/markets listing ordered by market cap.
type CoinGecko struct {
	cfg        CoinGeckoConfig
	httpClient *http.Client
	now        func() time.Time
}

type coinGeckoMarket struct {
	ID                       string              `json:"id"`
	Name                     string              `json:"name"`
	Symbol                   string              `json:"symbol"`
	CurrentPrice             decimal.NullDecimal `json:"current_price"`
	PriceChangePercentage24h decimal.NullDecimal `json:"price_change_percentage_24h"`
}

// NewCoinGecko validates the endpoint and key up front so that a missing
// credential stops the process instead of failing every poll.
func NewCoinGecko(cfg CoinGeckoConfig, httpClient *http.Client) (*CoinGecko, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, &ConfigError{Provider: "coingecko", Field: "COINGECKO_API_URL"}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &ConfigError{Provider: "coingecko", Field: "COINGECKO_API_KEY"}
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, &ConfigError{Provider: "coingecko", Field: "COINGECKO_API_URL (invalid url)"}
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	cfg.UniverseSize = universeSize(cfg.UniverseSize)
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &CoinGecko{cfg: cfg, httpClient: httpClient, now: time.Now}, nil
}

func (c *CoinGecko) Fetch(ctx context.Context) (types.PriceSnapshot, error) {
	endpoint, err := url.Parse(c.cfg.Endpoint)
	if err != nil {
		return types.PriceSnapshot{}, newFetchError("coingecko", err)
	}
	q := endpoint.Query()
	q.Set("vs_currency", c.cfg.Currency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(c.cfg.UniverseSize))
	q.Set("page", "1")
	q.Set("sparkline", "false")
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return types.PriceSnapshot{}, newFetchError("coingecko", errors.Wrap(err, "create request"))
	}
	req.Header.Set(coinGeckoKeyHeader, c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return types.PriceSnapshot{}, newFetchError("coingecko", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.PriceSnapshot{}, newFetchError("coingecko",
			errors.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var markets []coinGeckoMarket
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return types.PriceSnapshot{}, newFetchError("coingecko", errors.Wrap(err, "decode markets"))
	}

	quotes := make([]types.PriceQuote, 0, len(markets))
	for _, m := range markets {
		if m.ID == "" || !m.CurrentPrice.Valid {
			log.Debugf("coingecko: skipping market without id or price: %q", m.ID)
			continue
		}
		quotes = append(quotes, types.PriceQuote{
			AssetID:          m.ID,
			DisplayName:      m.Name,
			Symbol:           m.Symbol,
			CurrentPrice:     m.CurrentPrice.Decimal,
			Change24hPercent: m.PriceChangePercentage24h.Decimal,
		})
	}

	log.Debugf("coingecko: fetched %d quotes", len(quotes))
	return types.NewPriceSnapshot(quotes, c.now()), nil
}
