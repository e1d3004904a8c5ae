package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/blob"
	"github.com/dkezh/casket/internal/bucket"
	"github.com/dkezh/casket/internal/cache"
	"github.com/dkezh/casket/internal/config"
	"github.com/dkezh/casket/internal/file"
	"github.com/dkezh/casket/internal/notify"
	"github.com/dkezh/casket/internal/server"
	"github.com/dkezh/casket/internal/shorturl"
	"github.com/dkezh/casket/internal/storage"
	"github.com/dkezh/casket/internal/sweeper"
	"github.com/dkezh/casket/internal/token"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 15 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("CASKET_LOG_PRETTY") == "true" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := storage.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := storage.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("ensure schema")
	}

	rdb, err := storage.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}
	defer rdb.Close()

	var notifier notify.Notifier = notify.Nop{}
	if cfg.AMQP.Enabled {
		conn, channel, err := storage.NewAMQPChannel(cfg.AMQP)
		if err != nil {
			log.Fatal().Err(err).Msg("connect rabbitmq")
		}
		defer conn.Close()
		defer channel.Close()
		notifier = notify.NewAMQPNotifier(channel, cfg.AMQP.Exchange)
	}

	blobs, err := blob.NewStore(cfg.Blob.DataDir)
	if err != nil {
		log.Fatal().Err(err).Msg("open blob store")
	}

	metaCache := cache.New(cache.NewRedisBackend(rdb))

	bucketRepo := bucket.NewRepository(pool)
	buckets := bucket.NewService(bucketRepo, blobs, metaCache, notifier)
	files := file.NewService(file.NewRepository(pool), blobs, buckets, metaCache, notifier)
	tokens := token.NewService(token.NewRepository(pool), metaCache)
	shortURLs := shorturl.NewService(shorturl.NewRepository(pool), buckets, metaCache)

	sw := sweeper.New(bucketRepo, blobs, metaCache, notifier, cfg.Sweeper.Interval, cfg.Sweeper.InitialDelay)
	go sw.Run(ctx)

	router := server.NewRouter(server.Dependencies{
		Config:    cfg,
		Verifier:  auth.NewVerifier(cfg.Auth),
		Buckets:   buckets,
		Files:     files,
		Tokens:    tokens,
		ShortURLs: shortURLs,
		Pool:      pool,
		Redis:     rdb,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("casket api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown")
	}
}
