// Command reprocess re-scans stored conversations for latent events
// using the same orchestrator contract as the live webhook path.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ivanintech/concierge/internal/app"
	"github.com/ivanintech/concierge/internal/config"
	"github.com/ivanintech/concierge/internal/logging"
)

func main() {
	all := flag.Bool("all", false, "re-scan every conversation, not only unprocessed ones")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall batch deadline")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Setup("info", "")
		log.Fatal().Err(err).Msg("configuration error")
	}
	logging.Setup(cfg.LogLevel, cfg.LogPath)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	container, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("container build failed")
	}
	defer container.Close()

	if err := container.Processor.Reprocess(ctx, *all); err != nil {
		log.Fatal().Err(err).Msg("reprocess failed")
	}
	log.Info().Msg("reprocess complete")
}
