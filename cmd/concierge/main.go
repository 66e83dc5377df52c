// Command concierge runs the coordination assistant server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/app"
	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "")
		log.Fatal().Err(err).Msg("configuration error")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("container build failed")
	}
	defer container.Close()
	container.Start(ctx)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           app.NewServer(container),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Bool("mock_mode", cfg.MockMode).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
	_ = os.Stdout.Sync()
}
