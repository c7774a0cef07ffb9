package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crypto-price-alerts/config"
	"crypto-price-alerts/internal/alert"
	"crypto-price-alerts/internal/api"
	"crypto-price-alerts/internal/auth"
	"crypto-price-alerts/internal/cache"
	"crypto-price-alerts/internal/database"
	"crypto-price-alerts/internal/metrics"
	"crypto-price-alerts/internal/monitor"
	"crypto-price-alerts/internal/notify"
	"crypto-price-alerts/internal/price"
	"crypto-price-alerts/internal/realtime"
	"crypto-price-alerts/internal/telegram"
	"crypto-price-alerts/lib/translation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const metricsSaveInterval = 5 * time.Minute

func init() {
	config.InitConfig()
	setupLogging()

	// the frontend reads prices as plain JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	translation.Configure("locales", config.GetString("lang"))

	source, err := newPriceSource()
	if err != nil {
		log.Fatalf("Failed to configure price source: %v", err)
	}

	store, err := database.Open(ctx, config.GetString("db_driver"), config.GetString("db_dsn"))
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	var priceCache price.Cache
	redisCache := newRedisCache()
	if redisCache != nil {
		priceCache = redisCache
	}
	prices := price.NewService(source, priceCache, config.GetDuration("cache_ttl"))

	monitorMetrics := metrics.New(prometheus.DefaultRegisterer)
	monitorMetrics.LoadFrom(ctx, store)

	hub := realtime.NewHub(monitorMetrics.RealtimeClients)
	dispatcher := alert.NewDispatcher(store, hub, monitorMetrics, newSinks()...)

	priceMonitor, err := monitor.NewMonitor(prices, store, dispatcher, hub, monitorMetrics, monitor.Config{
		Interval:     config.GetDuration("poll_interval"),
		CycleTimeout: config.GetDuration("cycle_timeout"),
	})
	if err != nil {
		log.Fatalf("Failed to create price monitor: %v", err)
	}
	if err := priceMonitor.Start(); err != nil {
		log.Fatalf("Failed to start price monitor: %v", err)
	}

	server := api.NewServer(prices, hub, auth.NewVerifier(config.GetString("auth_jwt_secret")), config.GetString("frontend_url"))
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.GetInt("port")),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := newMetricsAndHealthServer(config.GetInt("metrics_port"), store, redisCache)

	go serve("API", apiServer)
	go serve("metrics and health", metricsServer)

	go func() {
		ticker := time.NewTicker(metricsSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				monitorMetrics.SaveTo(ctx, store)
			}
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down...")

	priceMonitor.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hub.Close()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	monitorMetrics.SaveTo(shutdownCtx, store)
	if redisCache != nil {
		_ = redisCache.Close()
	}
	log.Info("Metrics saved, shutting down...")
}

func setupLogging() {
	log.SetLevel(log.InfoLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	if strings.EqualFold(config.GetString("log_format"), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}
	log.Debug("Starting crypto price alerts...")
}

func newPriceSource() (price.Source, error) {
	return price.NewSource(price.SourceConfig{
		Provider:        config.GetString("price_provider"),
		CoinGeckoURL:    config.GetString("coingecko_api_url"),
		CoinGeckoAPIKey: config.GetString("coingecko_api_key"),
		CoinpaprikaKey:  config.GetString("api_pro_key"),
		Currency:        config.GetString("vs_currency"),
		UniverseSize:    config.GetInt("price_universe_size"),
	}, nil)
}

// newRedisCache returns nil when REDIS_URL is unset; the service then fetches
// on every read.
func newRedisCache() *cache.RedisCache {
	url := config.GetString("redis_url")
	if url == "" {
		log.Info("REDIS_URL not set, price cache is disabled")
		return nil
	}
	client, err := cache.NewClient(url)
	if err != nil {
		log.Warnf("Price cache is disabled: %v", err)
		return nil
	}
	return cache.NewRedisCache(client)
}

func newSinks() []alert.Sink {
	sinks := []alert.Sink{
		notify.NewEmailSink(notify.NewMailer(notify.SMTPConfig{
			Host:     config.GetString("smtp_host"),
			Port:     config.GetInt("smtp_port"),
			Username: config.GetString("email_user"),
			Password: config.GetString("email_pass"),
			From:     config.GetString("email_from"),
		})),
	}

	token := config.GetString("telegram_bot_token")
	if token == "" {
		log.Info("TELEGRAM_BOT_TOKEN not set, telegram notifications are disabled")
		return sinks
	}
	bot, err := telegram.NewBot(telegram.BotConfig{Token: token, Debug: config.GetBool("debug")})
	if err != nil {
		log.Errorf("Telegram notifications are disabled: %v", err)
		return sinks
	}
	return append(sinks, telegram.NewAlertSink(bot))
}

func serve(name string, server *http.Server) {
	log.Infof("Launching %s endpoint on %s", name, server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start %s server: %v", name, err)
	}
}

func newMetricsAndHealthServer(port int, store *database.Store, redisCache *cache.RedisCache) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "database: %v\n", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK\nredis: %s\n", redisCache.Ping(r.Context()))
	})

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
