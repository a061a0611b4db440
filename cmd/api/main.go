package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "staybook/internal/adapters/http_server"
	"staybook/internal/adapters/observability"
	"staybook/internal/adapters/payments"
	redisad "staybook/internal/adapters/redis"
	"staybook/internal/app"
	"staybook/internal/shared"
	mysqlrepo "staybook/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	locker := redisad.NewLocker(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	verifier, err := payments.New(cfg.PaymentBase, cfg.PaymentKey, cfg.PaymentRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize payments client")
	}

	pricing := app.NewPricingService(repo)
	calendar := app.NewCalendarService(repo, cache, cfg.CacheTTL)
	availability := app.NewAvailabilityService(pricing, repo, repo, repo, cfg.MaxSyncAge)
	coupons := app.NewCouponService(repo)
	bookings := app.NewBookingService(repo, repo, availability, coupons, locker, verifier, cfg.HoldWindow, cfg.HoldFee)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Calendar:     calendar,
		Availability: availability,
		Coupons:      coupons,
		Bookings:     bookings,
	})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
