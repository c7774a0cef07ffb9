package price

import (
	"context"
	"net/http"
	"strings"

	"crypto-price-alerts/internal/types"
)

const (
	ProviderCoinGecko   = "coingecko"
	ProviderCoinpaprika = "coinpaprika"

	DefaultUniverseSize = 100
	// MaxUniverseSize is the largest page the providers hand out in one call
	MaxUniverseSize = 250
)

// Source fetches a snapshot of the tracked asset universe. Implementations
// are synchronous and never retry on their own.
type Source interface {
	Fetch(ctx context.Context) (types.PriceSnapshot, error)
}

func universeSize(n int) int {
	if n <= 0 {
		return DefaultUniverseSize
	}
	if n > MaxUniverseSize {
		return MaxUniverseSize
	}
	return n
}

// SourceConfig carries the settings of every provider, only the selected
// provider's fields are read.
type SourceConfig struct {
	Provider        string
	CoinGeckoURL    string
	CoinGeckoAPIKey string
	CoinpaprikaKey  string
	Currency        string
	UniverseSize    int
}

// NewSource builds the configured provider. An empty provider means CoinGecko.
func NewSource(cfg SourceConfig, httpClient *http.Client) (Source, error) {
	switch provider := strings.ToLower(strings.TrimSpace(cfg.Provider)); provider {
	case ProviderCoinGecko, "":
		return NewCoinGecko(CoinGeckoConfig{
			Endpoint:     cfg.CoinGeckoURL,
			APIKey:       cfg.CoinGeckoAPIKey,
			Currency:     cfg.Currency,
			UniverseSize: cfg.UniverseSize,
		}, httpClient)
	case ProviderCoinpaprika:
		return NewCoinpaprika(CoinpaprikaConfig{
			APIKey:       cfg.CoinpaprikaKey,
			Currency:     cfg.Currency,
			UniverseSize: cfg.UniverseSize,
		}, httpClient)
	default:
		return nil, &ConfigError{Provider: provider, Field: "PRICE_PROVIDER"}
	}
}
