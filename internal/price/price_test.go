package price

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"crypto-price-alerts/internal/types"

	"github.com/coinpaprika/coinpaprika-api-go-client/v2/coinpaprika"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const marketsBody = `[
	{"id":"bitcoin","name":"Bitcoin","symbol":"btc","current_price":50000,"price_change_percentage_24h":2.5,"market_cap":1},
	{"id":"ethereum","name":"Ethereum","symbol":"eth","current_price":3000.12,"price_change_percentage_24h":null},
	{"id":"ghost","name":"Ghost","symbol":"gst","current_price":null},
	{"id":"bitcoin","name":"Bitcoin dup","symbol":"btc","current_price":1}
]`

func TestNewCoinGeckoRequiresConfig(t *testing.T) {
	_, err := NewCoinGecko(CoinGeckoConfig{APIKey: "k"}, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))

	_, err = NewCoinGecko(CoinGeckoConfig{Endpoint: "https://example.com/markets"}, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "COINGECKO_API_KEY")
}

func TestCoinGeckoFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "usd", q.Get("vs_currency"))
		assert.Equal(t, "market_cap_desc", q.Get("order"))
		assert.Equal(t, "100", q.Get("per_page"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "false", q.Get("sparkline"))
		assert.Equal(t, "secret", r.Header.Get("x-cg-demo-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(marketsBody))
	}))
	defer srv.Close()

	src, err := NewCoinGecko(CoinGeckoConfig{Endpoint: srv.URL + "/coins/markets", APIKey: "secret"}, srv.Client())
	require.NoError(t, err)

	snapshot, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snapshot.Len())

	quotes := snapshot.Quotes()
	assert.Equal(t, "bitcoin", quotes[0].AssetID)
	assert.Equal(t, "ethereum", quotes[1].AssetID)

	btc, ok := snapshot.Lookup("bitcoin")
	require.True(t, ok)
	assert.Equal(t, "Bitcoin", btc.DisplayName)
	assert.True(t, btc.CurrentPrice.Equal(decimal.NewFromInt(50000)))
	assert.True(t, btc.Change24hPercent.Equal(decimal.RequireFromString("2.5")))

	eth, ok := snapshot.Lookup("ethereum")
	require.True(t, ok)
	assert.True(t, eth.Change24hPercent.IsZero())

	_, ok = snapshot.Lookup("ghost")
	assert.False(t, ok)
}

func TestCoinGeckoFetchCapsUniverse(t *testing.T) {
	var perPage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perPage = r.URL.Query().Get("per_page")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	src, err := NewCoinGecko(CoinGeckoConfig{Endpoint: srv.URL, APIKey: "k", UniverseSize: 5000}, srv.Client())
	require.NoError(t, err)
	_, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "250", perPage)
}

func TestCoinGeckoFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/limited":
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"status":"rate limited"}`))
		default:
			_, _ = w.Write([]byte(`{not json`))
		}
	}))
	defer srv.Close()

	for _, path := range []string{"/limited", "/garbage"} {
		src, err := NewCoinGecko(CoinGeckoConfig{Endpoint: srv.URL + path, APIKey: "k"}, srv.Client())
		require.NoError(t, err)

		_, err = src.Fetch(context.Background())
		require.Error(t, err, path)
		assert.True(t, IsFetchError(err), path)
		assert.False(t, IsConfigError(err), path)
	}
}

func TestCoinGeckoFetchUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	src, err := NewCoinGecko(CoinGeckoConfig{Endpoint: url, APIKey: "k"}, nil)
	require.NoError(t, err)

	_, err = src.Fetch(context.Background())
	require.Error(t, err)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.NotNil(t, errors.Cause(err))
}

func TestNewCoinpaprikaRequiresKey(t *testing.T) {
	_, err := NewCoinpaprika(CoinpaprikaConfig{}, nil)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func tickersFromJSON(t *testing.T, raw string) []*coinpaprika.Ticker {
	t.Helper()
	var tickers []*coinpaprika.Ticker
	require.NoError(t, json.Unmarshal([]byte(raw), &tickers))
	return tickers
}

const tickersBody = `[
	{"id":"eth-ethereum","name":"Ethereum","symbol":"ETH","rank":2,"quotes":{"USD":{"price":3000,"percent_change_24h":-1.5}}},
	{"id":"btc-bitcoin","name":"Bitcoin","symbol":"BTC","rank":1,"quotes":{"USD":{"price":50000,"percent_change_24h":2}}},
	{"id":"zzz-unranked","name":"Unranked","symbol":"ZZZ","rank":0,"quotes":{"USD":{"price":1}}},
	{"id":"noquote-coin","name":"No quote","symbol":"NQ","rank":3,"quotes":{}},
	{"id":"usdt-tether","name":"Tether","symbol":"USDT","rank":3,"quotes":{"USD":{"price":1.0001}}}
]`

func TestQuotesFromTickers(t *testing.T) {
	quotes := quotesFromTickers(tickersFromJSON(t, tickersBody), "USD", 3)
	require.Len(t, quotes, 3)
	assert.Equal(t, "btc-bitcoin", quotes[0].AssetID)
	assert.Equal(t, "btc", quotes[0].Symbol)
	assert.Equal(t, "eth-ethereum", quotes[1].AssetID)
	assert.True(t, quotes[1].Change24hPercent.Equal(decimal.RequireFromString("-1.5")))
	assert.Equal(t, "usdt-tether", quotes[2].AssetID)

	all := quotesFromTickers(tickersFromJSON(t, tickersBody), "USD", 100)
	require.Len(t, all, 4)
	assert.Equal(t, "zzz-unranked", all[3].AssetID)
}

func TestCoinpaprikaFetch(t *testing.T) {
	var gotQuotes string
	src := &Coinpaprika{
		cfg: CoinpaprikaConfig{APIKey: "k", Currency: "usd", UniverseSize: 2},
		list: func(opts *coinpaprika.TickersOptions) ([]*coinpaprika.Ticker, error) {
			gotQuotes = opts.Quotes
			return tickersFromJSON(t, tickersBody), nil
		},
		now: time.Now,
	}

	snapshot, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "USD", gotQuotes)
	assert.Equal(t, 2, snapshot.Len())

	src.list = func(*coinpaprika.TickersOptions) ([]*coinpaprika.Ticker, error) {
		return nil, errors.New("boom")
	}
	_, err = src.Fetch(context.Background())
	assert.True(t, IsFetchError(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Fetch(ctx)
	assert.True(t, IsFetchError(err))
}

type fakeSource struct {
	mu       sync.Mutex
	calls    int
	snapshot types.PriceSnapshot
	err      error
}

func (f *fakeSource) Fetch(context.Context) (types.PriceSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.snapshot, f.err
}

type memCache struct {
	snapshot *types.PriceSnapshot
	ttl      time.Duration
}

func (m *memCache) Put(_ context.Context, s types.PriceSnapshot, ttl time.Duration) {
	m.snapshot = &s
	m.ttl = ttl
}

func (m *memCache) Get(context.Context) (types.PriceSnapshot, bool) {
	if m.snapshot == nil {
		return types.PriceSnapshot{}, false
	}
	return *m.snapshot, true
}

func testSnapshot() types.PriceSnapshot {
	return types.NewPriceSnapshot([]types.PriceQuote{
		{AssetID: "bitcoin", DisplayName: "Bitcoin", CurrentPrice: decimal.NewFromInt(50000)},
	}, time.Now())
}

func TestServiceLatestUsesCacheFirst(t *testing.T) {
	src := &fakeSource{snapshot: testSnapshot()}
	cache := &memCache{}
	svc := NewService(src, cache, time.Minute)

	s, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, src.calls)
	assert.Equal(t, time.Minute, cache.ttl)

	_, err = svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls, "fresh cache must not hit the provider")
}

func TestServiceWithoutCacheAlwaysFetches(t *testing.T) {
	src := &fakeSource{snapshot: testSnapshot()}
	svc := NewService(src, nil, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := svc.Latest(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 3, src.calls)
}

func TestServiceRefreshFailureLeavesCacheUntouched(t *testing.T) {
	src := &fakeSource{err: newFetchError("fake", errors.New("down"))}
	cache := &memCache{}
	svc := NewService(src, cache, time.Minute)

	_, err := svc.Latest(context.Background())
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
	assert.Nil(t, cache.snapshot)
}

func TestNewSourceSelectsProvider(t *testing.T) {
	cases := []struct {
		name     string
		cfg      SourceConfig
		wantType Source
		wantErr  string
	}{
		{"default is coingecko", SourceConfig{CoinGeckoURL: "https://example.com/markets", CoinGeckoAPIKey: "k"}, &CoinGecko{}, ""},
		{"coingecko", SourceConfig{Provider: "CoinGecko", CoinGeckoURL: "https://example.com/markets", CoinGeckoAPIKey: "k"}, &CoinGecko{}, ""},
		{"coinpaprika", SourceConfig{Provider: "coinpaprika", CoinpaprikaKey: "k"}, &Coinpaprika{}, ""},
		{"coingecko without key", SourceConfig{Provider: "coingecko", CoinGeckoURL: "https://example.com/markets"}, nil, "COINGECKO_API_KEY"},
		{"coinpaprika without key", SourceConfig{Provider: "coinpaprika"}, nil, "API_PRO_KEY"},
		{"unknown provider", SourceConfig{Provider: "binance", CoinpaprikaKey: "k"}, nil, "PRICE_PROVIDER"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src, err := NewSource(tc.cfg, nil)
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.True(t, IsConfigError(err))
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tc.wantType, src)
		})
	}
}
