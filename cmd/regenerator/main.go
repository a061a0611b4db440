package main

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"staybook/internal/adapters/observability"
	redisad "staybook/internal/adapters/redis"
	"staybook/internal/app"
	"staybook/internal/shared"
	mysqlrepo "staybook/internal/storage/mysql"
)

// Rebuilds every property's price calendar and purges long-expired holds. Run
// it from cron after bulk pricing edits or on a nightly schedule.
func main() {
	ctx := context.Background()
	cfg := shared.Load()

	// initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Int("workers", cfg.Workers).
		Int("months_ahead", cfg.MonthsAhead).
		Msg("regenerator starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	calendar := app.NewCalendarService(repo, cache, cfg.CacheTTL)

	ids, err := repo.ListPropertyIDs(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list property ids failed")
	}

	sem := semaphore.NewWeighted(int64(cfg.Workers))
	var wg sync.WaitGroup

	for _, id := range ids {
		id := id

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, int64(1)); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(propertyID int64) {
			defer wg.Done()
			defer sem.Release(int64(1))

			if _, err := calendar.Regenerate(ctx, propertyID, cfg.MonthsAhead); err != nil {
				log.Warn().Int64("id", propertyID).Err(err).Msg("regenerate failed")
				return
			}
			observability.ObserveCalendarBuild("scheduled")
			log.Info().Int64("id", propertyID).Msg("regenerate ok")
		}(id)
	}

	wg.Wait()

	// Holds expired for more than a day are noise in the ledger.
	if n, err := repo.PurgeExpiredHolds(ctx, time.Now().UTC().Add(-24*time.Hour)); err != nil {
		log.Warn().Err(err).Msg("purge expired holds failed")
	} else if n > 0 {
		log.Info().Int64("purged", n).Msg("expired holds purged")
	}

	log.Info().Msg("regeneration completed")
}
