package codec

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/albertbausili/streamhttp/internal/message"
)

// minFrame is the smallest buffer worth sizing; even a bare CRLF needs two bytes.
const minFrame = 2

// Conn is the hosting runtime's view of one connection.
type Conn interface {
	// ID is stable for the connection's lifetime and unique among live connections.
	ID() uint64
	Send(b []byte) error
	Close() error
}

// Decoded is the outcome of one Decode call.
type Decoded struct {
	// Request is the message as built so far.
	Request *message.Request
	// Phase is the phase the decoded frame completed.
	Phase Phase
}

// Complete reports whether the request is ready for the application: its
// body frame was decoded, or its headers were decoded and it declares no body.
func (d Decoded) Complete() bool {
	switch d.Phase {
	case PhaseBody:
		return true
	case PhaseHeaders:
		return d.Request != nil && !expectsBody(d.Request)
	}
	return false
}

// Protocol drives the per-connection phase state machine.
// A Protocol is safe for use by many connections at once, but calls for any
// one connection must not overlap.
type Protocol struct {
	store    *Store
	methods  *Methods
	limits   Limits
	logger   *zap.Logger
	handlers [3]phaseHandler
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithMethods shares an allow-list with the protocol.
func WithMethods(m *Methods) Option {
	return func(p *Protocol) {
		if m != nil {
			p.methods = m
		}
	}
}

// WithStore shares a context store with the protocol.
func WithStore(s *Store) Option {
	return func(p *Protocol) {
		if s != nil {
			p.store = s
		}
	}
}

// WithLimits overrides the per-phase size caps. Zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(p *Protocol) {
		p.limits = l.normalize()
	}
}

// WithLogger sets the logger used for protocol failures.
func WithLogger(l *zap.Logger) Option {
	return func(p *Protocol) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Protocol with the default allow-list, limits and a private store.
func New(opts ...Option) *Protocol {
	p := &Protocol{
		store:   NewStore(),
		methods: DefaultMethods(),
		limits:  DefaultLimits(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.handlers = [3]phaseHandler{
		PhaseRequestLine: &requestLineHandler{methods: p.methods, maxLen: p.limits.MaxRequestLine},
		PhaseHeaders:     &headersHandler{maxLen: p.limits.MaxHeaders},
		PhaseBody:        &bodyHandler{maxLen: p.limits.MaxBody},
	}
	return p
}

// Methods returns the allow-list consulted by the request-line handler.
func (p *Protocol) Methods() *Methods {
	return p.methods
}

// Store returns the context store.
func (p *Protocol) Store() *Store {
	return p.store
}

// Limits returns the effective size caps.
func (p *Protocol) Limits() Limits {
	return p.limits
}

// Size reports how many leading bytes of buf form the next frame for conn.
// It returns 0 with a nil error when more data is needed. On error the
// connection has already been torn down.
func (p *Protocol) Size(buf []byte, conn Conn) (int, error) {
	if len(buf) < minFrame {
		return 0, nil
	}
	ctx := p.store.GetOrCreate(conn.ID())
	n, err := p.handlers[ctx.Phase].size(buf, ctx)
	if err != nil {
		return 0, p.fail(conn, ctx, err)
	}
	return n, nil
}

// Decode consumes exactly one frame previously sized by Size. On error the
// connection has already been torn down.
func (p *Protocol) Decode(frame []byte, conn Conn) (Decoded, error) {
	ctx, ok := p.store.Lookup(conn.ID())
	if !ok {
		return Decoded{}, p.fail(conn, nil, missingContext("decode called before size"))
	}

	phase := ctx.Phase
	req, err := p.handlers[phase].decode(frame, ctx)
	if err != nil {
		return Decoded{}, p.fail(conn, ctx, err)
	}
	if phase == PhaseHeaders {
		ctx.ShouldClose = req.Proto == "1.0" || ctx.closeIntent
	}
	return Decoded{Request: req, Phase: phase}, nil
}

// Phase returns the current phase of conn, if it has a context.
func (p *Protocol) Phase(conn Conn) (Phase, bool) {
	ctx, ok := p.store.Lookup(conn.ID())
	if !ok {
		return 0, false
	}
	return ctx.Phase, true
}

// ShouldClose reports whether the next response on conn closes it.
func (p *Protocol) ShouldClose(conn Conn) bool {
	ctx, ok := p.store.Lookup(conn.ID())
	return ok && ctx.ShouldClose
}

// Reset re-arms conn for a new request. The codec never does this on its own.
func (p *Protocol) Reset(conn Conn) {
	if ctx, ok := p.store.Lookup(conn.ID()); ok {
		*ctx = Context{}
	}
}

// Forget drops the context of a connection the runtime has closed.
func (p *Protocol) Forget(conn Conn) {
	p.store.Remove(conn.ID())
}

// fail reports cause, answers with an error response when the failure
// happened in the body phase, and tears the connection down.
func (p *Protocol) fail(conn Conn, ctx *Context, cause error) error {
	e := asError(cause)
	phase := PhaseRequestLine
	if ctx != nil {
		phase = ctx.Phase
	}
	p.logger.Warn("protocol error",
		zap.Uint64("conn", conn.ID()),
		zap.Stringer("phase", phase),
		zap.Stringer("kind", e.Kind),
		zap.Int("code", e.Code),
		zap.Int("status", e.Status),
		zap.Error(cause))

	if ctx != nil && phase == PhaseBody {
		if err := conn.Send(errorResponse(e.Status, e.Error())); err != nil {
			p.logger.Debug("send error response", zap.Uint64("conn", conn.ID()), zap.Error(err))
		}
	}
	p.closeConnection(conn)
	return e
}

func (p *Protocol) closeConnection(conn Conn) {
	p.store.Remove(conn.ID())
	if err := conn.Close(); err != nil {
		p.logger.Debug("close connection", zap.Uint64("conn", conn.ID()), zap.Error(err))
	}
}

// errorResponse builds the plain-text response sent for body-phase failures.
func errorResponse(status int, msg string) []byte {
	if status == 0 {
		status = 500
	}
	buf := make([]byte, 0, 96+len(msg))
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(status), 10)
	buf = append(buf, ' ')
	buf = append(buf, message.StatusText(status)...)
	buf = append(buf, "\r\nConnection: close\r\nContent-Type: text/plain\r\nContent-Length: "...)
	buf = strconv.AppendInt(buf, int64(len(msg)), 10)
	buf = append(buf, "\r\n\r\n"...)
	buf = append(buf, msg...)
	return buf
}
