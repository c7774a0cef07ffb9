package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		// a missing .env is fine, real deployments set the environment directly
		_ = godotenv.Load()

		viper.AutomaticEnv()

		viper.BindEnv("port", "PORT")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("log_format", "LOG_FORMAT")
		viper.BindEnv("lang", "LANG")
		viper.BindEnv("frontend_url", "FRONTEND_URL")

		viper.BindEnv("price_provider", "PRICE_PROVIDER")
		viper.BindEnv("coingecko_api_url", "COINGECKO_API_URL")
		viper.BindEnv("coingecko_api_key", "COINGECKO_API_KEY")
		viper.BindEnv("api_pro_key", "API_PRO_KEY")
		viper.BindEnv("vs_currency", "VS_CURRENCY")
		viper.BindEnv("price_universe_size", "PRICE_UNIVERSE_SIZE")

		viper.BindEnv("poll_interval", "POLL_INTERVAL")
		viper.BindEnv("cycle_timeout", "CYCLE_TIMEOUT")
		viper.BindEnv("cache_ttl", "CACHE_TTL")
		viper.BindEnv("redis_url", "REDIS_URL")

		viper.BindEnv("db_driver", "DB_DRIVER")
		viper.BindEnv("db_dsn", "DB_DSN")

		viper.BindEnv("smtp_host", "SMTP_HOST")
		viper.BindEnv("smtp_port", "SMTP_PORT")
		viper.BindEnv("email_user", "EMAIL_USER")
		viper.BindEnv("email_pass", "EMAIL_PASS")
		viper.BindEnv("email_from", "EMAIL_FROM")

		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("auth_jwt_secret", "AUTH_JWT_SECRET")

		viper.SetDefault("port", 5000)
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("debug", false)
		viper.SetDefault("log_format", "text")
		viper.SetDefault("lang", "en")
		viper.SetDefault("frontend_url", "http://localhost:5173")
		viper.SetDefault("price_provider", "coingecko")
		viper.SetDefault("vs_currency", "usd")
		viper.SetDefault("price_universe_size", 100)
		viper.SetDefault("poll_interval", 30*time.Second)
		viper.SetDefault("cycle_timeout", 25*time.Second)
		viper.SetDefault("cache_ttl", 60*time.Second)
		viper.SetDefault("db_driver", "sqlite")
		viper.SetDefault("db_dsn", "/app/data/alerts.db")
		viper.SetDefault("smtp_port", 587)
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

// GetDuration expects Go duration strings such as "30s" or "1m".
func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
