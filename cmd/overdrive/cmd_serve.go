// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/overdrive/services/cso/telemetry"
	"github.com/AleutianAI/overdrive/services/graph/api"
	"github.com/AleutianAI/overdrive/services/graph/model"
	"github.com/AleutianAI/overdrive/services/graph/session"
)

const shutdownTimeout = 10 * time.Second

var (
	serveAddr     string
	serveScript   string
	serveAutosave time.Duration
	serveDebug    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose a session over HTTP",
	Long: `Start an HTTP server over one editing session. With --store the session
is restored on start and saved on shutdown.

Examples:
  overdrive serve --addr :8080
  overdrive serve --store ./data --autosave 30s
  overdrive serve --script chain.yaml`,
	Args: cobra.NoArgs,
	RunE: serve,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveScript, "script", "", "Script to replay before serving")
	serveCmd.Flags().DurationVar(&serveAutosave, "autosave", 0, "Save to --store at this interval (0 disables)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable gin debug mode")
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	e, err := newEnv()
	if err != nil {
		return err
	}
	defer e.close()
	logger := e.logger.Slog()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()
	metrics, err := telemetry.NewDispatchMetrics(otel.Meter("overdrive.dispatch"))
	if err != nil {
		return err
	}

	lib := model.NewLibrary()
	var script *Script
	if serveScript != "" {
		if script, err = LoadScript(serveScript); err != nil {
			return err
		}
		if err := script.InstallAssets(lib); err != nil {
			return err
		}
	}
	s, err := e.newSession(ctx, lib, true, session.Config{
		TracerProvider: otel.GetTracerProvider(),
		Metrics:        metrics,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	if script != nil {
		cmds, err := script.Commands()
		if err != nil {
			return err
		}
		steps := Replay(ctx, s, cmds, false)
		report, err := buildReport(ctx, serveScript, s, steps)
		if err != nil {
			return err
		}
		printReport(e.printer, report)
	}

	srv := &http.Server{
		Addr:              serveAddr,
		Handler:           api.NewRouter(api.NewHandlers(s, logger)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("serving", slog.String("address", serveAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if serveAutosave > 0 && e.store != nil {
		g.Go(func() error {
			return autosave(gctx, s, serveAutosave, logger)
		})
	}

	err = g.Wait()
	if e.store != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if serr := s.Save(sctx); serr != nil {
			logger.Error("final save failed", slog.String("error", serr.Error()))
		}
	}
	return err
}

// autosave saves s every interval until ctx is done. Save failures are
// logged and retried on the next tick.
func autosave(ctx context.Context, s *session.Session, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Save(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("autosave failed", slog.String("error", err.Error()))
			}
		}
	}
}
