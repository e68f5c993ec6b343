package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
	"github.com/ternarybob/banner"

	"github.com/ternarybob/fiberforge/internal/gbconfig"
	"github.com/ternarybob/fiberforge/internal/gbdiag"
	"github.com/ternarybob/fiberforge/internal/gbjob"
	"github.com/ternarybob/fiberforge/internal/gbledger"
	"github.com/ternarybob/fiberforge/internal/gbmaintenance"
	"github.com/ternarybob/fiberforge/internal/gbresource"
)

var configFile = flag.String("config", "forgekit.toml", "configuration file path")

func main() {
	flag.Parse()

	cfg, err := gbconfig.LoadFromFile(*configFile)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Str("config_file", *configFile).Msg("failed to load configuration")
		os.Exit(1)
	}

	logger := arbor.NewLogger().
		WithConsoleWriter(models.WriterConfiguration{
			Type:             models.LogWriterTypeConsole,
			TimeFormat:       "15:04:05",
			TextOutput:       cfg.Logging.Format != "json",
			DisableTimestamp: false,
		}).
		WithLevelFromString(cfg.Logging.Level)

	printBanner(cfg)

	jobSystem, err := gbjob.NewSystem(cfg.Job.ThreadCount, cfg.Job.PinThreads)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start job system")
	}
	defer jobSystem.Close()
	logger.Info().Int("threads", jobSystem.GetThreadCount()).Msg("job system started")

	var resourceOpts []gbresource.SystemOption
	var ledgerStore *gbledger.Store
	if cfg.Ledger.Enabled {
		ledgerStore, err = gbledger.Open(gbledger.Config{
			Path:           cfg.Ledger.Path,
			ResetOnStartup: cfg.Ledger.ResetOnStartup,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.Ledger.Path).Msg("failed to open resource ID ledger")
		}
		defer ledgerStore.Close()
		resourceOpts = append(resourceOpts, gbresource.WithIDSeedStore(ledgerStore))
		logger.Info().Str("path", cfg.Ledger.Path).Msg("resource ID ledger enabled")
	}
	resourceSystem := gbresource.NewSystem(resourceOpts...)

	maintenanceSvc := gbmaintenance.NewService(jobSystem, resourceSystem)
	if cfg.Maintenance.Enabled {
		if err := maintenanceSvc.Start(cfg.Maintenance.Schedule); err != nil {
			logger.Fatal().Err(err).Msg("failed to start maintenance sweep")
		}
		defer maintenanceSvc.Stop()
		logger.Info().Str("schedule", cfg.Maintenance.Schedule).Msg("maintenance sweep scheduled")
	}

	var diagServer *diagHTTPServer
	if cfg.Diagnostics.Enabled {
		snapshotRate, err := time.ParseDuration(cfg.Diagnostics.SnapshotRate)
		if err != nil {
			logger.Fatal().Err(err).Str("snapshot_rate", cfg.Diagnostics.SnapshotRate).Msg("invalid diagnostics snapshot_rate")
		}

		diag := gbdiag.NewHandler(func() gbdiag.Snapshot {
			live, visible := resourceSystem.Stats()
			pending, waiting := jobSystem.Stats()
			return gbdiag.Snapshot{
				Timestamp:        time.Now(),
				ThreadCount:      jobSystem.GetThreadCount(),
				FiberCount:       jobSystem.GetFiberCount(),
				PendingJobs:      pending,
				WaitingFibers:    waiting,
				ResourcesLive:    live,
				ResourcesVisible: visible,
			}
		})
		diag.StartBroadcaster(snapshotRate)
		defer diag.Stop()

		diagServer = startDiagServer(cfg.Diagnostics.Host, cfg.Diagnostics.Port, diag, logger)
		defer diagServer.Shutdown()
		logger.Info().
			Str("host", cfg.Diagnostics.Host).
			Int("port", cfg.Diagnostics.Port).
			Msg("diagnostics websocket listening")
	}

	logger.Info().Msg("forgekit-demo ready - press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received, shutting down")
}

func printBanner(cfg *gbconfig.Config) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(60)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("FIBERFORGE")
	b.PrintCenteredText("fiber-backed job scheduler & resource registry")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Threads", fmt.Sprintf("%d", cfg.Job.ThreadCount), 14)
	b.PrintKeyValue("Ledger", fmt.Sprintf("%t", cfg.Ledger.Enabled), 14)
	b.PrintKeyValue("Diagnostics", fmt.Sprintf("%t", cfg.Diagnostics.Enabled), 14)
	b.PrintKeyValue("Maintenance", fmt.Sprintf("%t", cfg.Maintenance.Enabled), 14)
	b.PrintBottomLine()
	fmt.Printf("\n")
}
