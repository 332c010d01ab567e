package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/KiritoRJ/assistenciatecnica/internal/cache"
	"github.com/KiritoRJ/assistenciatecnica/internal/config"
	"github.com/KiritoRJ/assistenciatecnica/internal/httpapi"
	"github.com/KiritoRJ/assistenciatecnica/internal/logging"
	"github.com/KiritoRJ/assistenciatecnica/internal/service"
	"github.com/KiritoRJ/assistenciatecnica/internal/store"
	"github.com/KiritoRJ/assistenciatecnica/internal/store/memory"
	pgstore "github.com/KiritoRJ/assistenciatecnica/internal/store/postgres"
	"github.com/KiritoRJ/assistenciatecnica/internal/tenant"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logging.Init(os.Stdout, cfg.LogLevel, cfg.LogPretty)

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
				log.Fatal().Err(err).Msg("database migration failed")
			}
			log.Info().Msg("migrations applied")
		}
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info().Msg("repository: in-memory")
	}

	bucketCache := cache.BucketCache(cache.NoopBucketCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisBucketCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, using noop cache")
		} else {
			bucketCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info().Msg("cache: redis")
		}
	} else {
		log.Info().Msg("cache: noop")
	}

	directory := tenant.NewDirectory(repo, cfg.SuperUsername, cfg.SuperPasswordHash)
	svc := service.New(repo, directory, bucketCache, time.Duration(cfg.SyncCacheTTLSeconds)*time.Second)
	tokens := httpapi.NewTokenManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute)
	api := httpapi.New(svc, directory, tokens, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// Bucket pushes can carry photos.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Address()).Msg("sync server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Error().Err(err).Msg("close error")
		}
	}

	log.Info().Msg("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SuperUsername == "" {
		return fmt.Errorf("SUPER_USERNAME must not be empty")
	}
	if cfg.SuperPasswordHash == "" {
		return fmt.Errorf("SUPER_PASSWORD_HASH must be set")
	}
	if !tenant.IsPasswordHash(cfg.SuperPasswordHash) {
		return fmt.Errorf("SUPER_PASSWORD_HASH must be a bcrypt hash, not a plain password")
	}
	return nil
}
