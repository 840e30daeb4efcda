// Package streamhttp provides an HTTP/1.1 server built on an incremental,
// event-driven request codec.
package streamhttp

import (
	"fmt"

	"go.uber.org/zap"
)

// Config holds the server configuration options.
type Config struct {
	Addr                string      // Server address to bind to
	Multicore           bool        // Enable multicore mode for better performance
	NumEventLoop        int         // Number of event loops (0 for auto-detect)
	ReusePort           bool        // Enable SO_REUSEPORT for load balancing
	MaxConnections      uint32      // Maximum concurrent connections (0 for unlimited)
	MaxRequestLineBytes int         // Cap on the request line, CRLF included
	MaxHeaderBytes      int         // Cap on the header section, terminator included
	MaxBodyBytes        int         // Cap on a decoded request body
	RearmKeepAlive      bool        // Reset kept-alive connections for their next request
	Methods             []string    // Methods allowed in addition to the defaults
	ServerName          string      // Value of the Server response header ("" to omit)
	Logger              *zap.Logger // Logger for server events
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Addr:                ":8080",
		Multicore:           true,
		NumEventLoop:        0,
		ReusePort:           true,
		MaxConnections:      10000,
		MaxRequestLineBytes: 8192,
		MaxHeaderBytes:      16384,
		MaxBodyBytes:        2 << 20,
		RearmKeepAlive:      true,
		ServerName:          "streamhttp",
		Logger:              zap.NewNop(),
	}
}

// Validate checks and normalizes the configuration values.
func (c *Config) Validate() error {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxRequestLineBytes < 0 || c.MaxHeaderBytes < 0 || c.MaxBodyBytes < 0 {
		return fmt.Errorf("streamhttp: size limits must not be negative")
	}
	if c.MaxRequestLineBytes == 0 {
		c.MaxRequestLineBytes = 8192
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = 16384
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 2 << 20
	}
	if c.NumEventLoop < 0 {
		return fmt.Errorf("streamhttp: NumEventLoop must not be negative, got %d", c.NumEventLoop)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return nil
}
