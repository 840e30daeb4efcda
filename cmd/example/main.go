// Package main runs an echo server on top of the streamhttp codec.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/albertbausili/streamhttp/pkg/streamhttp"
)

// echoReply mirrors the decoded request back to the client.
type echoReply struct {
	Method   string              `json:"method"`
	URI      string              `json:"uri"`
	Headers  map[string][]string `json:"headers"`
	Body     string              `json:"body"`
	Protocol string              `json:"protocol"`
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	config := streamhttp.DefaultConfig()
	if addr := os.Getenv("EXAMPLE_ADDR"); addr != "" {
		config.Addr = addr
	}
	config.Logger = logger

	server := streamhttp.New(config)
	handler := streamhttp.Chain(
		streamhttp.Recovery(),
		streamhttp.RequestID(),
		streamhttp.Logger(),
		streamhttp.Prometheus(),
		streamhttp.Tracing(),
		streamhttp.Compress(),
	)(streamhttp.HandlerFunc(echo))

	metricsAddr := os.Getenv("EXAMPLE_METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metrics := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()

	if err := server.ListenAndServe(handler); err != nil {
		logger.Fatal("server failed to start", zap.Error(err))
	}
	logger.Info("listening",
		zap.String("addr", config.Addr),
		zap.String("metrics_addr", metricsAddr),
		zap.Uint32("max_connections", config.MaxConnections))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := metrics.Shutdown(ctx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}
}

func echo(ctx *streamhttp.Context) error {
	headers := make(map[string][]string, ctx.Header().Len())
	for _, f := range ctx.Header().Fields() {
		headers[f.Name] = f.Values
	}

	err := ctx.JSON(200, echoReply{
		Method:   ctx.Method(),
		URI:      ctx.Target(),
		Headers:  headers,
		Body:     string(ctx.BodyBytes()),
		Protocol: "HTTP/" + ctx.Proto(),
	})
	if errors.Is(err, streamhttp.ErrJSONEncoding) {
		return ctx.Plain(500, "Internal Server Error")
	}
	return err
}
