// Package transport hosts the HTTP/1.1 codec on a gnet event loop.
package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"

	"github.com/albertbausili/streamhttp/internal/codec"
	"github.com/albertbausili/streamhttp/internal/message"
)

// Handler answers a completed request. The returned value is anything the
// codec encoder accepts: a *message.Response, or a string or []byte already
// in wire format.
type Handler interface {
	Handle(ctx context.Context, req *message.Request) any
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *message.Request) any

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *message.Request) any {
	return f(ctx, req)
}

// Config defines the runtime options.
type Config struct {
	Addr           string
	Multicore      bool
	NumEventLoop   int
	ReusePort      bool
	MaxConnections uint32
	// RearmKeepAlive resets a kept-alive connection to the request-line phase
	// after each response.
	RearmKeepAlive bool
	Protocol       *codec.Protocol
	Logger         *zap.Logger
}

var serviceUnavailable = []byte("HTTP/1.1 503 Service Unavailable\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Length: 19\r\n" +
	"Connection: close\r\n" +
	"\r\n" +
	"Service Unavailable")

// Server implements gnet.EventHandler around a codec.Protocol.
type Server struct {
	gnet.BuiltinEventEngine

	handler Handler
	proto   *codec.Protocol
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	addr           string
	multicore      bool
	numEventLoop   int
	reusePort      bool
	maxConnections uint32
	rearm          bool

	nextID atomic.Uint64
	active atomic.Int64

	engine   gnet.Engine
	booted   chan struct{}
	bootOnce sync.Once
	stopped  atomic.Bool
}

// NewServer creates a server. A nil Protocol gets the codec defaults.
func NewServer(handler Handler, config Config) *Server {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	if config.Protocol == nil {
		config.Protocol = codec.New(codec.WithLogger(config.Logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		handler:        handler,
		proto:          config.Protocol,
		logger:         config.Logger,
		ctx:            ctx,
		cancel:         cancel,
		addr:           config.Addr,
		multicore:      config.Multicore,
		numEventLoop:   config.NumEventLoop,
		reusePort:      config.ReusePort,
		maxConnections: config.MaxConnections,
		rearm:          config.RearmKeepAlive,
		booted:         make(chan struct{}),
	}
}

// Start runs the event loop in the background and returns once it is
// accepting connections.
func (s *Server) Start() error {
	options := []gnet.Option{
		gnet.WithMulticore(s.multicore),
		gnet.WithReusePort(s.reusePort),
		gnet.WithTCPNoDelay(gnet.TCPNoDelay),
		gnet.WithTCPKeepAlive(time.Minute * 30),
		gnet.WithLogger(s.logger.Named("gnet").Sugar()),
		gnet.WithLockOSThread(false),
		gnet.WithReadBufferCap(1024 << 10),
		gnet.WithWriteBufferCap(1024 << 10),
		gnet.WithLoadBalancing(gnet.RoundRobin),
		gnet.WithNumEventLoop(runtime.NumCPU()),
	}
	if s.numEventLoop > 0 {
		options = append(options, gnet.WithNumEventLoop(s.numEventLoop))
	}

	s.logger.Info("starting server",
		zap.String("addr", s.addr),
		zap.Bool("multicore", s.multicore))

	errCh := make(chan error, 1)
	go func() {
		errCh <- gnet.Run(s, "tcp://"+s.addr, options...)
	}()

	select {
	case <-s.booted:
		return nil
	case err := <-errCh:
		if err == nil {
			err = errors.New("engine stopped before boot")
		}
		return fmt.Errorf("transport: listen on %s: %w", s.addr, err)
	}
}

// Stop shuts the engine down. It is a no-op before Start succeeds.
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.booted:
	default:
		return nil
	}
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	s.logger.Info("initiating graceful shutdown")
	if err := s.engine.Stop(ctx); err != nil {
		s.logger.Error("stopping gnet engine", zap.Error(err))
		return err
	}
	s.logger.Info("server shutdown complete")
	return nil
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int64 {
	return s.active.Load()
}

// Protocol returns the codec the server drives.
func (s *Server) Protocol() *codec.Protocol {
	return s.proto
}

// OnBoot is called when the server is ready to accept connections.
func (s *Server) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.bootOnce.Do(func() { close(s.booted) })
	s.logger.Info("server is listening", zap.String("addr", s.addr))
	return gnet.None
}

// OnOpen is called when a new connection is opened.
func (s *Server) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if s.maxConnections > 0 && s.active.Load() >= int64(s.maxConnections) {
		s.logger.Warn("connection rejected: too many connections",
			zap.String("remote", remoteAddr(c)),
			zap.Uint32("max", s.maxConnections))
		return serviceUnavailable, gnet.Close
	}

	s.active.Add(1)
	connectionsActive.Inc()
	a := &connAdapter{id: s.nextID.Add(1), w: c}
	c.SetContext(a)
	s.logger.Debug("connection opened", zap.Uint64("conn", a.id), zap.String("remote", remoteAddr(c)))
	return nil, gnet.None
}

// OnClose is called when a connection is closed.
func (s *Server) OnClose(c gnet.Conn, err error) gnet.Action {
	a, ok := c.Context().(*connAdapter)
	if !ok {
		// rejected in OnOpen
		return gnet.None
	}
	c.SetContext(nil)
	s.proto.Forget(a)
	s.active.Add(-1)
	connectionsActive.Dec()

	if err != nil {
		s.logger.Debug("connection closed with error", zap.Uint64("conn", a.id), zap.Error(err))
	} else {
		s.logger.Debug("connection closed", zap.Uint64("conn", a.id), zap.Int("served", a.served))
	}
	return gnet.None
}

// OnTraffic is called when data is received on a connection.
func (s *Server) OnTraffic(c gnet.Conn) gnet.Action {
	a, ok := c.Context().(*connAdapter)
	if !ok {
		s.logger.Warn("traffic on connection without context", zap.String("remote", remoteAddr(c)))
		return gnet.Close
	}
	return s.serve(a)
}

func remoteAddr(c gnet.Conn) string {
	if addr := c.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
