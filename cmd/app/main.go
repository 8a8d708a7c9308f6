package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/lazydoc/internal/config"
	"github.com/local/lazydoc/internal/httpapi"
	logpkg "github.com/local/lazydoc/internal/logger"
	"github.com/local/lazydoc/internal/metrics"
	"github.com/local/lazydoc/internal/statuscheck"
	"github.com/local/lazydoc/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Geometry cache (optional)
	var cache *store.GeometryStore
	if cfg.Cache.Enabled {
		gs, err := store.NewGeometryStore(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer gs.Close()
		cache = gs
	}

	var pinger statuscheck.RedisPinger
	if cache != nil {
		pinger = cache
	}
	checker := statuscheck.New(statuscheck.Options{
		Redis:    pinger,
		S3Bucket: os.Getenv("AWS_S3_BUCKET"),
	})

	api := httpapi.New(cfg, cache, checker)
	mux := http.NewServeMux()
	api.RegisterRoutes(mux)

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(ctx)
	api.Shutdown()
	log.Info().Msg("shutdown complete")
}
