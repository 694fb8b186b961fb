// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0

// Command quotagate runs the reverse-proxy rate-limit gateway: it
// loads a configuration document, builds the admission pipeline, and
// serves the HTTP front door until asked to stop.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quotagate/gateway/internal/admission"
	"github.com/quotagate/gateway/internal/config"
	"github.com/quotagate/gateway/internal/forwarder"
	"github.com/quotagate/gateway/internal/frontdoor"
	"github.com/quotagate/gateway/internal/quota"
	"github.com/quotagate/gateway/internal/routeindex"
)

type flags struct {
	configPath        string
	logLevel          slog.Level
	trustForwardedFor bool
}

func parseAndValidateFlags(args []string) (flags, error) {
	var (
		f    flags
		errs []error
		fs   = flag.NewFlagSet("quotagate", flag.ContinueOnError)
	)

	fs.StringVar(&f.configPath, "configPath", "config.json",
		"path to the local configuration file, used when CONFIG_SETTING is unset")
	logLevelPtr := fs.String("logLevel", "info",
		"log level: one of 'debug', 'info', 'warn', or 'error'")
	fs.BoolVar(&f.trustForwardedFor, "trustForwardedFor", false,
		"honor the first X-Forwarded-For entry as the client address for IP-fallback subjects")

	if err := fs.Parse(args); err != nil {
		return flags{}, fmt.Errorf("failed to parse flags: %w", err)
	}
	if err := f.logLevel.UnmarshalText([]byte(*logLevelPtr)); err != nil {
		errs = append(errs, fmt.Errorf("failed to unmarshal log level: %w", err))
	}
	return f, errors.Join(errs...)
}

func main() {
	f, err := parseAndValidateFlags(os.Args[1:])
	if err != nil {
		log.Fatalf("failed to parse and validate flags: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: f.logLevel}))

	ctx, cancel := context.WithCancel(context.Background())
	signalsChan := make(chan os.Signal, 1)
	signal.Notify(signalsChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalsChan
		cancel()
	}()

	source := config.Source{
		Inline:   os.Getenv("CONFIG_SETTING"),
		FilePath: f.configPath,
		URL:      os.Getenv("CONFIG_URL"),
	}
	doc, err := source.Load(ctx)
	if err != nil {
		logger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if port := os.Getenv("PORT"); port != "" {
		var p uint16
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			doc.Port = p
		}
	}
	if proxy := os.Getenv("PROXY_URL"); proxy != "" {
		doc.Proxy = proxy
	}

	upstream, err := url.Parse(doc.Proxy)
	if err != nil {
		logger.Error("invalid upstream proxy URL", slog.String("proxy", doc.Proxy), slog.String("error", err.Error()))
		os.Exit(1)
	}

	index, err := routeindex.Build(doc)
	if err != nil {
		logger.Error("failed to build route index", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pipeline := &admission.Pipeline{
		Index:             index,
		Registry:          quota.NewRegistry(),
		Global:            doc.GlobalLimiter,
		TrustForwardedFor: f.trustForwardedFor,
	}
	fwd := forwarder.New(upstream, time.Duration(doc.Timeout)*time.Second, logger)

	handler := &frontdoor.Handler{Pipeline: pipeline, Forwarder: fwd, Logger: logger}

	addr := fmt.Sprintf(":%d", doc.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during graceful shutdown", slog.String("error", err.Error()))
		}
	}()

	logger.Info("starting quotagate", slog.String("address", addr), slog.String("upstream", upstream.String()))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
