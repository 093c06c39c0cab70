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
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Anaphory/contact-zones/pkg/logging"
	"github.com/Anaphory/contact-zones/services/sampler"
	"github.com/Anaphory/contact-zones/services/sampler/config"
	"github.com/Anaphory/contact-zones/services/sampler/mcmc"
)

func newLogger() *logging.Logger {
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(logLevel),
		Service: "contactzones",
		JSON:    jsonLogs,
	})
}

func runSampler(cmd *cobra.Command, args []string) error {
	log := newLogger()
	defer log.Close()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("configuration rejected", slog.String("path", configPath), slog.Any("error", err))
		return err
	}
	if resultsDir != "" {
		cfg.Results.Path = resultsDir
	}
	if cmd.Flags().Changed("seed") {
		cfg.MCMC.Seed = seed
	}

	model, err := sampler.Build(&cfg)
	if err != nil {
		log.Error("model assembly failed", slog.Any("error", err))
		return err
	}
	log.Info("model assembled",
		slog.Int("languages", model.Table.NLanguages()),
		slog.Int("features", model.Table.NFeatures()),
		slog.Int("families", model.Sites.NFamilies()),
		slog.Int("areas", model.NAreas),
	)

	var metrics *mcmc.Metrics
	if metricsAddr != "" {
		metrics, err = mcmc.NewMetrics(nil)
		if err != nil {
			return err
		}
		srv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info("metrics server listening", slog.String("addr", metricsAddr))
	}

	sink, err := mcmc.NewFileSink(cfg.Results.Path)
	if err != nil {
		return err
	}

	smp, err := mcmc.NewSampler(model, &cfg, sink, mcmc.SamplerOptions{
		Logger:  log,
		Metrics: metrics,
		Tracing: tracing,
	})
	if err != nil {
		sink.Close()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := smp.Run(ctx)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		log.Error("sampling failed", slog.Any("error", runErr))
		return runErr
	}

	log.Info("sampling finished",
		slog.String("run_id", sink.RunID()),
		slog.String("results", cfg.Results.Path),
	)
	return nil
}
