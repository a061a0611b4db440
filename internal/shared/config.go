package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	PaymentBase string
	PaymentKey  string
	PaymentRPS  int
	HoldWindow  time.Duration
	HoldFee     float64
	Workers     int
	MonthsAhead int
	CacheTTL    time.Duration
	MaxSyncAge  time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/staybook?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisDB:     atoi("REDIS_DB", 0),
		RedisPass:   env("REDIS_PASSWORD", ""),
		PaymentBase: env("PAYMENT_BASE_URL", "https://api.payments.example.com"),
		PaymentKey:  env("PAYMENT_API_KEY", ""),
		PaymentRPS:  atoi("PAYMENT_RPS", 5),
		HoldWindow:  time.Duration(atoi("HOLD_WINDOW_MINUTES", 30)) * time.Minute,
		HoldFee:     atof("HOLD_FEE", 50),
		Workers:     atoi("REGEN_WORKERS", 8),
		MonthsAhead: atoi("REGEN_MONTHS_AHEAD", 12),
		CacheTTL:    time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,
		MaxSyncAge:  time.Duration(atoi("MAX_SYNC_AGE_MINUTES", 60)) * time.Minute,
	}
	if c.PaymentKey == "" {
		log.Warn().Msg("PAYMENT_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
