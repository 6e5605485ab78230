package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/lumencore/lumencore/internal/metrics"
	"github.com/lumencore/lumencore/pkg/logging"
)

func runCmd() *cobra.Command {
	var (
		verbose, debug, trace bool
		cfg                    Config
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the control core and block until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case trace:
				logging.SetVerbosity(logging.LogLevelTrace)
			case debug:
				logging.SetVerbosity(logging.LogLevelDebug)
			case verbose:
				logging.SetVerbosity(logging.LogLevelInfo)
			}
			return runCore(cfg)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "v", "v", false, "Enable verbose logging (info level)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&trace, "trace", false, "Enable trace logging")
	cmd.Flags().StringVar(&cfg.ShowPath, "show", "show.cbor", "Path to the show file (CBOR container of per-plugin state)")
	cmd.Flags().StringVar(&cfg.LibraryCachePath, "library-cache", "fixtures.db", "Path to the fixture library SQLite cache (':memory:' to disable)")
	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", ":7319", "Address the websocket RPC + metrics HTTP server listens on")
	cmd.Flags().StringVar(&cfg.MetricsNamespace, "metrics-namespace", "lumencore", "Prometheus metric namespace")
	cmd.Flags().BoolVar(&cfg.EnableE131, "e131", false, "Enable the E1.31/sACN output controller")
	cmd.Flags().StringVar(&cfg.E131SourceName, "e131-source-name", "lumencore", "sACN source name advertised in outgoing packets")
	cmd.Flags().StringVar(&cfg.OpenDMXPort, "opendmx-port", "", "Serial port for a USB OpenDMX interface, e.g. /dev/ttyUSB0 (empty disables it)")

	return cmd
}

// runCore composes the process (buildCore), loads the show file, starts
// every background loop and the HTTP transport, then blocks until an OS
// signal requests shutdown — the same flag-parse → components → background
// loops → await-shutdown shape as the teacher's cmd/mindpalace/main.go,
// generalized from a single hardcoded assistant process to the configurable
// lighting core spec.md §2 describes.
func runCore(cfg Config) error {
	logging.Info("lumencore starting")

	core, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer core.Shutdown()

	if err := core.LoadShow(); err != nil {
		return err
	}

	if err := core.Fabric.Shutdown.SpawnBlocker("render-loop", core.Loop.Run); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", core.WebSocket)
	mux.Handle("/metrics", metrics.Handler(core.MetricsRegistry))
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

	// The HTTP server runs outside the blocker/finisher pair deliberately:
	// a blocker would deadlock shutdown, since Shutdown only runs finishers
	// (which is what stops ListenAndServe) after every blocker returns.
	go func() {
		logging.Info("lumencore: listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("lumencore: http server: %v", err)
		}
	}()

	core.Fabric.Shutdown.RegisterFinisherVolatile(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			logging.Error("lumencore: http server shutdown: %v", err)
		}
	})
	core.Fabric.Shutdown.RegisterFinisherVolatile(func() {
		if err := core.SaveShow(); err != nil {
			logging.Error("lumencore: saving show on shutdown: %v", err)
		}
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logging.Info("lumencore: shutdown requested")
	core.Fabric.Shutdown.Shutdown()
	return nil
}
