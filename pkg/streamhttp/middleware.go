package streamhttp

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoggerConfig defines the configuration options for the Logger middleware.
type LoggerConfig struct {
	// Logger receives one entry per request (defaults to zap.L())
	Logger *zap.Logger
	// SkipPaths lists paths to skip logging (e.g., health checks)
	SkipPaths []string
	// CustomFields allows adding custom fields to each log entry
	CustomFields func(ctx *Context) []zap.Field
}

// DefaultLoggerConfig returns a LoggerConfig with sensible defaults.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Logger: zap.L(),
	}
}

// Logger returns a middleware that logs HTTP requests through the global zap logger.
func Logger() Middleware {
	return LoggerWithConfig(DefaultLoggerConfig())
}

// LoggerWithConfig returns a middleware that logs HTTP requests with custom configuration.
func LoggerWithConfig(config LoggerConfig) Middleware {
	if config.Logger == nil {
		config.Logger = zap.L()
	}
	skipMap := make(map[string]bool, len(config.SkipPaths))
	for _, path := range config.SkipPaths {
		skipMap[path] = true
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			if skipMap[ctx.Path()] {
				return next.ServeHTTP1(ctx)
			}

			start := time.Now()
			err := next.ServeHTTP1(ctx)

			fields := []zap.Field{
				zap.String("method", ctx.Method()),
				zap.String("path", ctx.Path()),
				zap.String("proto", "HTTP/"+ctx.Proto()),
				zap.Int("status", ctx.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.Int("bytes_in", len(ctx.BodyBytes())),
				zap.Int("bytes_out", ctx.bodyLen()),
			}
			if reqID, ok := ctx.Get("request-id"); ok {
				fields = append(fields, zap.Any("request_id", reqID))
			}
			if config.CustomFields != nil {
				fields = append(fields, config.CustomFields(ctx)...)
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
				config.Logger.Warn("request", fields...)
			} else {
				config.Logger.Info("request", fields...)
			}
			return err
		})
	}
}

// Recovery returns a middleware that recovers from panics.
// It catches panics during request handling and answers 500 Internal Server Error.
func Recovery() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					ctx.raw = nil
					ctx.responseHeaders = Headers{}
					_ = ctx.Plain(500, "Internal Server Error")
					err = nil
				}
			}()

			return next.ServeHTTP1(ctx)
		})
	}
}

// RequestID returns a middleware that adds a unique request ID to each request.
// An X-Request-ID sent by the client is reused. The ID is stored in the
// context under "request-id" and echoed in the response headers.
func RequestID() Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			requestID := ctx.Header().Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx.Set("request-id", requestID)
			ctx.SetHeader("X-Request-ID", requestID)

			return next.ServeHTTP1(ctx)
		})
	}
}

// CompressConfig holds configuration for the Compress middleware.
type CompressConfig struct {
	// Level specifies the compression level (1-9 for gzip, 0-11 for brotli)
	Level int
	// MinSize specifies the minimum response size to compress (default: 1024 bytes)
	MinSize int
	// ExcludedTypes lists content types to skip compression
	ExcludedTypes []string
}

// DefaultCompressConfig returns a CompressConfig with sensible defaults.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Level:   6,
		MinSize: 1024,
		ExcludedTypes: []string{
			"image/",
			"video/",
			"audio/",
			"application/zip",
			"application/gzip",
		},
	}
}

// Compress returns a middleware that compresses response bodies with brotli or gzip.
func Compress() Middleware {
	return CompressWithConfig(DefaultCompressConfig())
}

// CompressWithConfig returns a middleware that compresses response bodies with custom configuration.
func CompressWithConfig(config CompressConfig) Middleware {
	if config.MinSize == 0 {
		config.MinSize = 1024
	}
	if config.Level == 0 {
		config.Level = 6
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			acceptEncoding := ctx.Header().Line("Accept-Encoding")
			supportsBrotli := strings.Contains(acceptEncoding, "br")
			supportsGzip := strings.Contains(acceptEncoding, "gzip")

			err := next.ServeHTTP1(ctx)
			if err != nil || (!supportsBrotli && !supportsGzip) || ctx.raw != nil {
				return err
			}

			body := ctx.responseBody.Bytes()
			if len(body) < config.MinSize || ctx.responseHeaders.Has("Content-Encoding") {
				return nil
			}
			contentType := ctx.responseHeaders.Get("Content-Type")
			for _, excluded := range config.ExcludedTypes {
				if strings.HasPrefix(contentType, excluded) {
					return nil
				}
			}

			var compressed bytes.Buffer
			encoding, cerr := compress(&compressed, body, supportsBrotli, config.Level)
			if cerr != nil {
				// keep the uncompressed body
				return nil
			}
			if compressed.Len() == 0 || compressed.Len() >= len(body) {
				return nil
			}

			ctx.SetHeader("Content-Encoding", encoding)
			ctx.AddHeader("Vary", "Accept-Encoding")
			ctx.responseBody.Reset()
			_, werr := ctx.responseBody.Write(compressed.Bytes())
			return werr
		})
	}
}

func compress(dst *bytes.Buffer, body []byte, useBrotli bool, level int) (string, error) {
	if useBrotli {
		w := brotli.NewWriterLevel(dst, level)
		if _, err := w.Write(body); err != nil {
			_ = w.Close()
			return "", err
		}
		return "br", w.Close()
	}

	if level > gzip.BestCompression {
		level = gzip.BestCompression
	}
	w, err := gzip.NewWriterLevel(dst, level)
	if err != nil {
		return "", fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", err
	}
	return "gzip", w.Close()
}
