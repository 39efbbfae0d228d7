package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/usercoord/internal/adapters/memory"
	"github.com/bft-labs/usercoord/internal/adapters/sim"
	"github.com/bft-labs/usercoord/internal/cliconfig"
	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/pkg/log"
	"github.com/bft-labs/usercoord/pkg/usercoord"
	"github.com/bft-labs/usercoord/plugins/configwatcher"
)

const helpDescription = `
Coordinate user switching, creation and removal on a multi-user head unit
with an external vehicle coordinator.

The daemon runs the coordination service against an in-process session
manager and a simulated coordinator. It seeds drivers, brings up the boot
user, restarts background users and serves Prometheus metrics.

Configuration is read from the config file, then USERCOORD_* environment
variables, then flags. coordinator_timeout and max_running_users are
reloaded when the config file changes.
`

var exampleUsage = strings.TrimSpace(`
  usercoord --state-dir /var/lib/usercoord --max-running-users 4
  usercoord --config $HOME/.usercoord/config.toml --log-level debug
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:          "usercoord",
		Short:        "Multi-user coordination service for vehicle head units",
		Long:         strings.TrimSpace(helpDescription),
		Example:      exampleUsage,
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// USERCOORD_* override the file but not explicit flags.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := log.NewConsoleAdapter(os.Stderr, cfg.Level())
			logger.Info("configuration", log.Any("config", cfg), log.String("config_file", cfgFile))

			return run(cfg, cfgFile, logger)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.usercoord/config.toml)")
	root.Flags().StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "directory for persisted state (empty keeps state in memory)")
	root.Flags().IntVar(&cfg.MaxRunningUsers, "max-running-users", cfg.MaxRunningUsers, "maximum number of running users, system user included")
	root.Flags().DurationVar(&cfg.CoordinatorTimeout, "coordinator-timeout", cfg.CoordinatorTimeout, "default timeout of coordinator round trips")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "maximum time to wait for workers on shutdown")
	root.Flags().BoolVar(&cfg.Headless, "headless", cfg.Headless, "run without a display; the system user cannot be switched to")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address of the Prometheus metrics endpoint (empty disables it)")
	root.Flags().DurationVar(&cfg.SimLatency, "sim-latency", cfg.SimLatency, "answer latency of the simulated coordinator")
	root.Flags().IntVar(&cfg.SimDrivers, "sim-drivers", cfg.SimDrivers, "drivers to create at boot when none exist")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg cliconfig.Config, cfgFile string, logger *log.ZerologAdapter) error {
	users := memory.NewIdentityStore()
	sessions := memory.NewSessionManager(domain.SystemUser)
	coord := sim.New(
		sim.WithLatency(cfg.SimLatency),
		sim.WithLogger(logger.With("sim")),
	)

	opts := []usercoord.Option{
		usercoord.WithLogger(logger),
		usercoord.WithIdentityStore(users),
		usercoord.WithSessionManager(sessions),
		usercoord.WithCoordinator(coord),
		usercoord.WithStateHandler(func(prev, cur usercoord.State, reason string) {
			logger.Debug("service state", log.Stringer("from", prev), log.Stringer("to", cur), log.String("reason", reason))
		}),
	}
	if cfgFile != "" {
		opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{Path: cfgFile}))
	}

	svc, err := usercoord.New(usercoord.Config{
		StateDir:           cfg.StateDir,
		MaxRunningUsers:    cfg.MaxRunningUsers,
		CoordinatorTimeout: cfg.CoordinatorTimeout,
		Headless:           cfg.Headless,
		ShutdownTimeout:    cfg.ShutdownTimeout,
	}, opts...)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}
	sessions.SetEventSink(svc.OnLifecycleEvent)
	coord.SetSwitchHandler(svc.HandleCoordinatorSwitch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	events := usercoord.NewListenerFunc(func(e usercoord.LifecycleEvent) {
		logger.Info("user lifecycle", log.Stringer("type", e.Type), log.Int("from", int(e.From)), log.Int("to", int(e.To)))
	})
	if err := svc.AddListener(events); err != nil {
		logger.Warn("failed to add lifecycle listener", log.Err(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	var srv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics server listening", log.String("addr", cfg.MetricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	drivers, err := seedDrivers(ctx, svc, cfg.SimDrivers, logger)
	if err != nil {
		logger.Error("failed to seed drivers", log.Err(err))
	}
	if id := bootInitialUser(ctx, svc, drivers, logger); id != usercoord.NullUser {
		logger.Info("initial user in foreground", log.Int("user", int(id)))
	}
	svc.StartBackgroundUsers()

	select {
	case <-sigCh:
		logger.Info("received signal, stopping...")
	case <-gctx.Done():
		logger.Error("auxiliary server failed, stopping...")
	}

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	stopErr := svc.Stop()
	cancel()

	if err := g.Wait(); err != nil {
		return err
	}
	if stopErr != nil {
		return fmt.Errorf("stop service: %w", stopErr)
	}
	return nil
}
