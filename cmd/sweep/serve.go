package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/nsfw-sweep/internal/certs"
	"github.com/Veraticus/nsfw-sweep/internal/common"
	"github.com/Veraticus/nsfw-sweep/internal/config"
	"github.com/Veraticus/nsfw-sweep/internal/events"
	"github.com/Veraticus/nsfw-sweep/internal/server"
)

func serveCmd() *cobra.Command {
	var initialDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose scanning and deletion over HTTP",
		Long: `Run an HTTP API around a single scan session.

  GET    /health              liveness
  GET    /status              session state and last summary
  GET    /results             ordered results
  POST   /scans               {"directory": "..."}; 409 while a scan runs
  DELETE /results/:filename   delete a listed file`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), initialDir)
		},
	}

	cmd.Flags().String("host", "", "listen host (default: 127.0.0.1)")
	cmd.Flags().Int("port", 0, "listen port (default: 8089)")
	cmd.Flags().Bool("tls", false, "serve HTTPS with a self-signed certificate")
	cmd.Flags().StringVar(&initialDir, "scan", "", "start scanning this directory on startup")

	_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.tls", cmd.Flags().Lookup("tls"))

	return cmd
}

func runServe(ctx context.Context, initialDir string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		if err := a.shutdown(); err != nil {
			slog.Warn("Failed to close resources", "error", err)
		}
	}()

	ch, err := a.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	go logEvents(ch)

	if initialDir != "" {
		dir, err := config.ScanDirectory(initialDir)
		if err != nil {
			return err
		}
		if err := a.session.Start(ctx, dir); err != nil {
			return err
		}
	}

	if viper.GetString("logging.level") != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	var tlsConfig *tls.Config
	if viper.GetBool("server.tls") {
		store := certs.NewStore(config.CertDir(), viper.GetString("server.host"))
		if tlsConfig, err = store.TLSConfig(); err != nil {
			return fmt.Errorf("failed to prepare TLS certificate: %w", err)
		}
		slog.Info("Serving HTTPS", "certificate", store.CertFile())
	}

	handler := server.NewHandler(ctx, a.session, slog.Default())
	return server.Serve(ctx, config.ServerAddr(), handler, tlsConfig, slog.Default())
}

func logEvents(ch <-chan events.Event) {
	for ev := range ch {
		switch ev.Type {
		case events.ScanStarted:
			common.LogInfo("Scan started", common.Fields{"scan_id": ev.ScanID, "directory": ev.Directory})
		case events.ScanFinished:
			common.LogInfo("Scan finished", common.Fields{"scan_id": ev.ScanID, "classified": ev.Total})
		case events.ItemFailed:
			common.LogError(errors.New(ev.Error), "Image failed", common.Fields{"filename": ev.Filename})
		default:
			common.LogDebug("Scan event", common.Fields{
				"type":       ev.Type,
				"filename":   ev.Filename,
				"confidence": ev.Confidence,
			})
		}
	}
}
