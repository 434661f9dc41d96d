package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/diskwatch/diskwatch/internal/alerting"
	"github.com/diskwatch/diskwatch/internal/config"
	"github.com/diskwatch/diskwatch/internal/logging"
	"github.com/diskwatch/diskwatch/internal/logscan"
	"github.com/diskwatch/diskwatch/internal/monitor"
	"github.com/diskwatch/diskwatch/internal/notify"
	"github.com/diskwatch/diskwatch/internal/smart"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Exit status classes, so automation can branch on the outcome:
// health findings are distinct from transport failures and internal errors.
const (
	exitOK        = 0
	exitFindings  = 1
	exitInternal  = 2
	exitTransport = 3
)

var configFile string

var rootCmd = &cobra.Command{
	Use:     "diskwatch",
	Short:   "diskwatch - disk health monitoring and repair",
	Long:    `diskwatch scans local disks with smartctl, correlates kernel log error signals, alerts by email, and offers an operator-confirmed filesystem repair workflow.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runScan())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to configuration file")
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(repairCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("diskwatch %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitInternal)
	}
}

func loadSettings() (*config.Settings, error) {
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "diskwatch",
	})

	var (
		cfg *config.Settings
		err error
	)
	if configFile != "" {
		cfg, err = config.LoadFile(configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "diskwatch",
		FilePath:  cfg.LogFile,
	})
	return cfg, nil
}

// buildMonitor assembles a monitor and its alert tracker from settings.
func buildMonitor(cfg *config.Settings) (*monitor.Monitor, *alerting.Tracker) {
	collector := smart.NewCollector(cfg.CommandTimeout(), cfg.Devices.Include, cfg.Devices.Exclude)
	source := logscan.NewSource(cfg.Logs.File, cfg.CommandTimeout())

	tracker := alerting.NewTracker(cfg.Cooldown())

	var dispatcher *alerting.Dispatcher
	if cfg.Email.Enabled {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown-host"
		}
		composer := alerting.NewComposer(hostname)
		mailer := notify.NewSMTPMailer(cfg.Email)
		dispatcher = alerting.NewDispatcher(tracker, composer, mailer)
	} else {
		log.Warn().Msg("Email alerting is disabled, findings will only be logged")
	}

	var diag monitor.Diagnostic = collector
	return monitor.New(diag, source, dispatcher, cfg.LogWindow()), tracker
}

func runScan() int {
	cfg, err := loadSettings()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return exitInternal
	}
	defer logging.Shutdown()

	mon, _ := buildMonitor(cfg)

	summary, err := mon.RunCycle(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("Scan cycle failed")
		return exitInternal
	}

	for _, a := range summary.Assessments {
		log.Info().
			Str("device", a.Device).
			Str("severity", a.Severity.String()).
			Bool("smartPassed", a.Smart.Passed).
			Int("logEvents", len(a.Errors)).
			Msg("Device assessment")
	}

	switch {
	case summary.TransportFailed:
		return exitTransport
	case summary.Findings():
		return exitFindings
	default:
		return exitOK
	}
}
