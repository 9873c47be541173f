package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datawise/datawise/internal/config"
	"github.com/datawise/datawise/internal/engine"
	"github.com/datawise/datawise/internal/events"
	"github.com/datawise/datawise/internal/httpapi"
	"github.com/datawise/datawise/internal/service"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var listen, socket string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve commands and the event stream over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if socket != "" {
				cfg.Server.Socket = socket
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "TCP address to listen on (overrides server.listen)")
	cmd.Flags().StringVar(&socket, "socket", "", "Unix domain socket path (overrides server.listen)")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}

	sink := newLogSink(cfg.Log)
	sink.install()
	defer sink.close()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			sink.reopen()
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := engine.Open(ctx, cfg.EngineOptions())
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			slog.Warn("engine close failed", slog.Any("err", err))
		}
	}()

	hub := events.NewHub(cfg.Events.Capacity)
	defer hub.Close()

	dispatcher := service.NewDispatcher(m, hub, cfg.ColumnarOptions())
	handler := httpapi.NewHandler(dispatcher)

	var server *httpapi.Server
	if cfg.Server.Socket != "" {
		server, err = httpapi.NewUnixServer(ctx, handler, cfg.Server.Socket)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "server started", slog.String("transport", "unix"), slog.String("socket", server.Addr()))
	} else {
		server, err = httpapi.NewServer(ctx, handler, cfg.Server.Listen)
		if err != nil {
			return err
		}
		slog.InfoContext(ctx, "server started", slog.String("transport", "tcp"), slog.String("addr", server.Addr()))
	}
	slog.InfoContext(ctx, "engine ready",
		slog.String("driver", m.Driver()),
		slog.Int("event_capacity", hub.Capacity()))

	<-ctx.Done()
	slog.Info("shutting down")

	// Closing the hub ends every open event stream so Shutdown can drain.
	hub.Close()
	if err := server.Shutdown(); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}
