package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/diskwatch/diskwatch/internal/config"
	"github.com/diskwatch/diskwatch/internal/logging"
	"github.com/diskwatch/diskwatch/internal/metrics"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run periodic scan cycles until interrupted",
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runMonitor())
	},
}

func runMonitor() int {
	cfg, err := loadSettings()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return exitInternal
	}
	defer logging.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mon, tracker := buildMonitor(cfg)

	startMetricsServer(ctx, cfg.Monitor.MetricsListen)

	// Live config reload only touches the dedup window; transport and
	// device settings take effect on the next restart.
	if configFile != "" {
		watcher, err := config.NewWatcher(configFile, func(updated *config.Settings) {
			tracker.SetCooldown(updated.Cooldown())
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config watcher unavailable, continuing without live reload")
		} else if err := watcher.Start(); err != nil {
			log.Warn().Err(err).Msg("Failed to start config watcher")
		} else {
			defer watcher.Stop()
		}
	}

	interval := cfg.ScanInterval()
	log.Info().Dur("interval", interval).Msg("Starting monitor loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := mon.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			log.Error().Err(err).Msg("Scan cycle failed, will retry next interval")
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Info().Msg("Shutting down monitor loop")
			return exitOK
		}
	}

	return exitOK
}

func startMetricsServer(ctx context.Context, addr string) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Msg("Metrics server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}
