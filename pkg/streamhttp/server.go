package streamhttp

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/albertbausili/streamhttp/internal/codec"
	"github.com/albertbausili/streamhttp/internal/date"
	"github.com/albertbausili/streamhttp/internal/message"
	"github.com/albertbausili/streamhttp/internal/transport"
)

// HTTPError is a handler error that carries the status to answer with.
type HTTPError struct {
	Code    int
	Message string
}

// NewHTTPError returns an HTTPError. An empty message uses the status text.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{Code: code, Message: message}
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return message.StatusText(e.Code)
	}
	return e.Message
}

// Server represents an HTTP/1.1 server instance.
type Server struct {
	config    Config
	handler   Handler
	methods   *codec.Methods
	protocol  *codec.Protocol
	dates     *date.Cache
	stopDates func()
	transport *transport.Server
}

// New creates a new Server with the provided configuration.
func New(config Config) *Server {
	if err := config.Validate(); err != nil {
		panic(err)
	}

	methods := codec.DefaultMethods()
	for _, m := range config.Methods {
		methods.Add(m)
	}

	return &Server{
		config:  config,
		methods: methods,
		protocol: codec.New(
			codec.WithMethods(methods),
			codec.WithLogger(config.Logger.Named("codec")),
			codec.WithLimits(codec.Limits{
				MaxRequestLine: config.MaxRequestLineBytes,
				MaxHeaders:     config.MaxHeaderBytes,
				MaxBody:        config.MaxBodyBytes,
			}),
		),
		dates: date.New(),
	}
}

// NewWithDefaults creates a new Server with default configuration.
func NewWithDefaults() *Server {
	return New(DefaultConfig())
}

// Handler sets the request handler and returns the server for method chaining.
func (s *Server) Handler(handler Handler) *Server {
	s.handler = handler
	return s
}

// AddAllowedMethod extends the set of accepted request methods. The method is
// upper-cased; adding a known method is a no-op. Safe to call while serving.
func (s *Server) AddAllowedMethod(method string) {
	s.methods.Add(method)
}

// AllowedMethods returns the accepted request methods in insertion order.
func (s *Server) AllowedMethods() []string {
	return s.methods.List()
}

// ListenAndServe sets the handler and starts the server.
func (s *Server) ListenAndServe(handler Handler) error {
	s.handler = handler
	return s.Start()
}

// Start begins accepting connections. It returns once the listener is up.
func (s *Server) Start() error {
	if s.handler == nil {
		return fmt.Errorf("handler not set")
	}
	if s.transport != nil {
		return fmt.Errorf("server already started")
	}

	s.stopDates = s.dates.Start(0)
	s.transport = transport.NewServer(transport.HandlerFunc(s.handle), transport.Config{
		Addr:           s.config.Addr,
		Multicore:      s.config.Multicore,
		NumEventLoop:   s.config.NumEventLoop,
		ReusePort:      s.config.ReusePort,
		MaxConnections: s.config.MaxConnections,
		RearmKeepAlive: s.config.RearmKeepAlive,
		Protocol:       s.protocol,
		Logger:         s.config.Logger,
	})
	if err := s.transport.Start(); err != nil {
		s.stopDates()
		s.transport = nil
		return err
	}
	return nil
}

// Stop shuts the server down, closing every open connection.
func (s *Server) Stop(ctx context.Context) error {
	if s.transport == nil {
		return nil
	}
	s.stopDates()
	return s.transport.Stop(ctx)
}

// ActiveConnections returns the number of open connections.
func (s *Server) ActiveConnections() int64 {
	if s.transport == nil {
		return 0
	}
	return s.transport.ActiveConnections()
}

// handle runs the handler chain for one completed request.
func (s *Server) handle(ctx context.Context, req *Request) any {
	c := newContext(ctx, req)
	if err := s.handler.ServeHTTP1(c); err != nil {
		s.handleError(c, err)
	}
	if c.raw != nil {
		return c.raw
	}

	c.SetHeader("Date", s.dates.Value())
	if s.config.ServerName != "" && !c.responseHeaders.Has("Server") {
		c.SetHeader("Server", s.config.ServerName)
	}
	return c.response()
}

func (s *Server) handleError(c *Context, err error) {
	var he *HTTPError
	switch {
	case errors.As(err, &he):
		_ = c.Plain(he.Code, he.Error())
	case !c.Written():
		s.config.Logger.Error("handler error",
			zap.String("method", c.Method()),
			zap.String("target", c.Target()),
			zap.Error(err))
		_ = c.Plain(500, message.StatusText(500))
	default:
		s.config.Logger.Warn("handler error after response was written",
			zap.String("method", c.Method()),
			zap.String("target", c.Target()),
			zap.Error(err))
	}
}
