// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/novatechflow/kafgate/pkg/capture"
	"github.com/novatechflow/kafgate/pkg/discovery"
	"github.com/novatechflow/kafgate/pkg/filter"
	"github.com/novatechflow/kafgate/pkg/filter/builtin"
	"github.com/novatechflow/kafgate/pkg/protocol"
	"github.com/novatechflow/kafgate/pkg/proxy"
)

const (
	defaultProxyAddr   = ":9092"
	defaultFilterChain = "clamp,rewrite,audit"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(os.Getenv("KAFGATE_LOG_LEVEL"))

	addr := envOrDefault("KAFGATE_ADDR", defaultProxyAddr)
	adminAddr := strings.TrimSpace(os.Getenv("KAFGATE_ADMIN_ADDR"))
	advertisedHost := strings.TrimSpace(os.Getenv("KAFGATE_ADVERTISED_HOST"))
	advertisedPort := envPort("KAFGATE_ADVERTISED_PORT", portFromAddr(addr, 9092))
	dialTimeout := time.Duration(envInt("KAFGATE_DIAL_TIMEOUT_MS", 5000)) * time.Millisecond

	registry, err := buildRegistry(ctx, logger)
	if err != nil {
		logger.Error("upstream registry init failed", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	filterNames := splitCSV(envOrDefault("KAFGATE_FILTERS", defaultFilterChain))
	if advertisedHost == "" {
		logger.Warn("KAFGATE_ADVERTISED_HOST not set; metadata rewrites will keep upstream addresses")
		// Only the default chain degrades silently; an explicit KAFGATE_FILTERS
		// mentioning rewrite still fails chain validation below.
		if os.Getenv("KAFGATE_FILTERS") == "" {
			filterNames = dropName(filterNames, "rewrite")
		}
	}

	sink, err := buildCaptureSink(ctx, logger)
	if err != nil {
		logger.Error("capture sink init failed", "error", err)
		os.Exit(1)
	}
	if sink != nil {
		defer func() {
			closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer closeCancel()
			if err := sink.Close(closeCtx); err != nil {
				logger.Warn("capture sink close", "error", err)
			}
		}()
	}

	deniedAPIs, err := parseDeniedAPIs(os.Getenv("KAFGATE_DENY_APIS"))
	if err != nil {
		logger.Error("invalid KAFGATE_DENY_APIS", "error", err)
		os.Exit(1)
	}

	filterCfg := builtin.Config{
		Log:            logger,
		AdvertisedHost: advertisedHost,
		AdvertisedPort: advertisedPort,
		DeniedAPIs:     deniedAPIs,
		ProduceDelay:   time.Duration(envInt("KAFGATE_PRODUCE_DELAY_MS", 0)) * time.Millisecond,
		Sink:           sink,
	}
	newChain := func() (*filter.Chain, error) {
		filters, err := builtin.Build(filterNames, filterCfg)
		if err != nil {
			return nil, err
		}
		return filter.NewChain(filters...)
	}
	// Configuration errors must surface at startup, not on the first
	// accepted connection.
	if _, err := newChain(); err != nil {
		logger.Error("filter chain configuration invalid", "filters", strings.Join(filterNames, ","), "error", err)
		os.Exit(1)
	}
	logger.Info("filter chain configured", "filters", strings.Join(filterNames, ","))

	if adminAddr != "" {
		startAdminServer(ctx, logger, adminAddr, registry)
	}

	server := &proxy.Server{
		Addr:        addr,
		Registry:    registry,
		NewChain:    newChain,
		Logger:      logger,
		DialTimeout: dialTimeout,
	}
	if err := server.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("proxy server error", "error", err)
		os.Exit(1)
	}
	server.Wait()
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func buildRegistry(ctx context.Context, logger *slog.Logger) (discovery.Registry, error) {
	if endpoints := splitCSV(os.Getenv("KAFGATE_ETCD_ENDPOINTS")); len(endpoints) > 0 {
		return discovery.NewEtcdRegistry(ctx, logger, discovery.EtcdConfig{
			Endpoints: endpoints,
			Username:  os.Getenv("KAFGATE_ETCD_USERNAME"),
			Password:  os.Getenv("KAFGATE_ETCD_PASSWORD"),
			Prefix:    strings.TrimSpace(os.Getenv("KAFGATE_ETCD_PREFIX")),
		})
	}
	upstreams := splitCSV(os.Getenv("KAFGATE_UPSTREAMS"))
	if len(upstreams) == 0 {
		return nil, errors.New("set KAFGATE_UPSTREAMS or KAFGATE_ETCD_ENDPOINTS")
	}
	return discovery.NewStatic(upstreams)
}

func buildCaptureSink(ctx context.Context, logger *slog.Logger) (*capture.Sink, error) {
	bucket := strings.TrimSpace(os.Getenv("KAFGATE_CAPTURE_BUCKET"))
	if bucket == "" {
		return nil, nil
	}
	store, err := capture.NewS3Store(ctx, capture.S3Config{
		Bucket:          bucket,
		Region:          envOrDefault("KAFGATE_CAPTURE_REGION", "us-east-1"),
		Endpoint:        os.Getenv("KAFGATE_CAPTURE_ENDPOINT"),
		ForcePathStyle:  os.Getenv("KAFGATE_CAPTURE_ENDPOINT") != "",
		AccessKeyID:     os.Getenv("KAFGATE_CAPTURE_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("KAFGATE_CAPTURE_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	return capture.NewSink(ctx, logger, store, capture.SinkConfig{})
}

func parseDeniedAPIs(raw string) ([]int16, error) {
	names := splitCSV(raw)
	keys := make([]int16, 0, len(names))
	for _, name := range names {
		key, ok := protocol.ParseAPIKeyName(name)
		if !ok {
			return nil, fmt.Errorf("unknown api key name %q", name)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func startAdminServer(ctx context.Context, logger *slog.Logger, addr string, registry discovery.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		pickCtx, pickCancel := context.WithTimeout(r.Context(), time.Second)
		defer pickCancel()
		if _, err := registry.Pick(pickCtx); err != nil {
			http.Error(w, "no upstream brokers available", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("admin server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("admin server error", "error", err)
		}
	}()
}

func envOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envPort(key string, fallback int) int32 {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return int32(fallback)
	}
	parsed, err := strconv.ParseInt(val, 10, 32)
	if err != nil || parsed <= 0 {
		return int32(fallback)
	}
	return int32(parsed)
}

func envInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func portFromAddr(addr string, fallback int) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fallback
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fallback
	}
	return port
}

func dropName(names []string, drop string) []string {
	out := names[:0]
	for _, name := range names {
		if name != drop {
			out = append(out, name)
		}
	}
	return out
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val != "" {
			out = append(out, val)
		}
	}
	return out
}
