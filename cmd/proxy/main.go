package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverbend/ttsproxy/internal/backend"
	"github.com/riverbend/ttsproxy/internal/cache"
	"github.com/riverbend/ttsproxy/internal/config"
	"github.com/riverbend/ttsproxy/internal/dispatcher"
	"github.com/riverbend/ttsproxy/internal/httpclient"
	"github.com/riverbend/ttsproxy/internal/llmproxy"
	"github.com/riverbend/ttsproxy/internal/server"
	"github.com/riverbend/ttsproxy/internal/trace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	backends := make([]*backend.Backend, len(cfg.TTSBackends))
	for i, b := range cfg.TTSBackends {
		backends[i] = &backend.Backend{URL: b.URL, Token: b.Token, MaxConcurrent: cfg.BackendMaxConcurrent}
	}
	pool := backend.NewPool(backends)

	ttsClient := httpclient.NewPooled(cfg.BackendMaxConcurrent*len(backends), cfg.RequestTimeout)
	disp := dispatcher.New(pool, ttsClient, cfg.RetryCount, cfg.TTSRequestTemplateJSON)
	c := cache.New(disp, cfg.CacheMaxSize, cfg.CacheTTL)
	defer c.Close()

	llmClient := httpclient.NewStreaming(cfg.BackendMaxConcurrent, 30*time.Second)
	llm := llmproxy.New(cfg.NewAPIBaseURL, cfg.NewAPIAPIKey, llmClient)

	var traceStore *trace.Store
	if cfg.TracePostgresURL != "" {
		traceStore, err = trace.Open(cfg.TracePostgresURL)
		if err != nil {
			slog.Error("trace store open failed", "error", err)
			traceStore = nil
		} else {
			slog.Info("tracing enabled", "postgres", cfg.TracePostgresURL)
		}
	}

	mux := http.NewServeMux()
	server.RegisterRoutes(mux, server.Deps{
		Cfg:        cfg,
		Pool:       pool,
		Dispatcher: disp,
		Cache:      c,
		LLM:        llm,
		TraceStore: traceStore,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: mux}

	shutdownDone := make(chan struct{})
	go func() {
		awaitShutdown(srv, traceStore)
		close(shutdownDone)
	}()

	slog.Info("proxy starting", "addr", addr, "backends", len(backends))

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
	<-shutdownDone

	slog.Info("proxy stopped")
}

// awaitShutdown blocks until SIGINT/SIGTERM, then drains in-flight requests
// and closes the trace store before the process exits.
func awaitShutdown(srv *http.Server, traceStore *trace.Store) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if traceStore != nil {
		if err := traceStore.Close(); err != nil {
			slog.Warn("trace store close", "error", err)
		}
	}

	srv.Shutdown(ctx)
}
