package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/modoterra/gatewatch/internal/buildinfo"
	"github.com/modoterra/gatewatch/pkg/activity"
	"github.com/modoterra/gatewatch/pkg/config"
	"github.com/modoterra/gatewatch/pkg/daemon"
	"github.com/modoterra/gatewatch/pkg/telemetry"
	"github.com/modoterra/gatewatch/pkg/transport/web"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "gatewatchd",
	Short:        "Tail and classify OpenClaw gateway telemetry",
	Long:         "gatewatchd tails the OpenClaw gateway's daily log, keeps a deduplicated feed of classified events, and merges agent activity from the gateway, session snapshots, and a local journal.",
	SilenceUsage: true,
	RunE:         run,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(buildinfo.String("gatewatchd"))
	},
}

func init() {
	config.RegisterFlags(rootCmd.Flags())
	config.RegisterDaemonFlags(rootCmd.Flags())
	rootCmd.AddCommand(versionCmd)
}

func run(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Resolve(v)
	if err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	if cfg.FilePath != "" {
		logger.Info("config loaded", "path", cfg.FilePath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	agents := func() ([]string, error) { return config.KnownAgents(cfg.OpenClawDir) }
	agentIDs := func() []string {
		ids, err := agents()
		if err != nil {
			logger.Warn("known agents unavailable", "dir", cfg.OpenClawDir, "err", err)
		}
		return ids
	}

	poller := telemetry.NewPoller(cfg.LogDir, telemetry.NewBuffer(telemetry.Capacity), logger)
	journal := activity.NewJournal(cfg.Journal, logger)
	aggregator := activity.NewAggregator(logger,
		journal,
		activity.NewGatewaySource(cfg.LogDir, cfg.Activity.Window, agentIDs, logger),
		activity.NewSessionSource(cfg.OpenClawDir, cfg.Activity.SessionMaxAge, logger),
	)

	d := daemon.New(daemon.Options{
		Socket:   cfg.Socket,
		Poller:   poller,
		Activity: aggregator,
		Journal:  journal,
		Agents:   agents,
		Window:   cfg.Poll.Window,
	}, logger)
	defer d.Shutdown()

	hub := web.NewHub()
	d.Subscribe(hub.Publish)

	pollLoop := daemon.NewPollLoop(d, cfg.Poll.Interval, logger)
	if cfg.Poll.Watch {
		w := daemon.NewWatcher(cfg.LogDir, cfg.Poll.Rate, logger)
		pollLoop.SetTrigger(w.C())
		go func() {
			if err := w.Run(ctx); err != nil {
				logger.Warn("log watcher disabled, polling on interval only", "err", err)
			}
		}()
	}
	go pollLoop.Run(ctx)

	errCh := make(chan error, 2)
	go func() { errCh <- d.Run(ctx) }()
	if cfg.Listen != "" {
		srv := web.New(d, hub, cfg.Listen, logger)
		go func() { errCh <- srv.Run(ctx) }()
	}

	logger.Info("starting gatewatchd",
		"version", buildinfo.Version,
		"instance", d.Instance(),
		"log_dir", cfg.LogDir,
		"socket", cfg.Socket,
		"listen", cfg.Listen,
	)
	notify(logger, sddaemon.SdNotifyReady)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("daemon error", "err", runErr)
		}
		stop()
	}
	notify(logger, sddaemon.SdNotifyStopping)
	return runErr
}

// notify reports state to systemd when running under a Type=notify unit.
func notify(logger *slog.Logger, state string) {
	if _, err := sddaemon.SdNotify(false, state); err != nil {
		logger.Debug("sd_notify failed", "state", state, "err", err)
	}
}
