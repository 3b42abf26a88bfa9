package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/synadia-labs/workload-probe/internal/config"
	"github.com/synadia-labs/workload-probe/internal/logger"
	"github.com/synadia-labs/workload-probe/internal/service"
)

// set with -ldflags "-X main.version=..."
var version = "0.1.0"

var configFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "probe",
		Short: "Run commands and read or write files on this host over HTTP",
		Long: `probe exposes unauthenticated command execution and filesystem access
over HTTP, and optionally NATS, for exercising container escape and
filesystem access scenarios in controlled test environments.

Never run it anywhere it can be reached by untrusted clients.`,
		SilenceUsage: true,
		RunE:         runServe,
	}

	root.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (default ./probe.yaml if present)")
	root.PersistentFlags().String("host", config.DefaultHost, "address to bind the HTTP server to")
	root.PersistentFlags().Int("port", config.DefaultPort, "port to bind the HTTP server to")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP server (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "mcp",
			Short: "Serve exec, read_file and write_file as MCP tools over stdio",
			RunE:  runMCP,
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)

	return root
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	log := logger.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	probe := service.NewProbe(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.NATS.Enabled() {
		nc, err := service.ConnectNATS(cfg.NATS)
		if err != nil {
			return err
		}
		defer nc.Close()

		svc, err := service.StartNATSMicro(nc, probe, version, log)
		if err != nil {
			return err
		}
		defer svc.Stop()
	}

	srv := service.NewHTTPServer(cfg, probe, log)

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("stopped")
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	// stdout carries the protocol
	log := logger.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	probe := service.NewProbe(cfg, log)

	return server.ServeStdio(service.NewMCPServer(probe, version))
}
