package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/danilovkiri/dk-go-balance-tracker/internal/api/rest"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/config"
	"github.com/danilovkiri/dk-go-balance-tracker/internal/logger"
)

func main() {
	wg := &sync.WaitGroup{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// get configuration
	cfg, err := config.NewConfiguration()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("configuration failed")
	}
	if err = cfg.ParseFlags(); err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("configuration failed")
	}
	log := logger.InitLog(cfg.LogConfig.Level)

	// initialize server
	server, err := rest.InitServer(ctx, cfg, log, wg)
	if err != nil {
		log.Fatal().Err(err).Msg("server initialization failed")
	}

	// set a listener for graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		log.Info().Msg("server shutdown attempted")
		ctxTO, cancelTO := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelTO()
		if err := server.Shutdown(ctxTO); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
		cancel()
	}()

	// start up the server
	log.Info().Msgf("server start attempted on %s", cfg.ServerConfig.ServerAddress)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("server failed")
		cancel()
	}
	wg.Wait()
	log.Info().Msg("server shutdown succeeded")
}
