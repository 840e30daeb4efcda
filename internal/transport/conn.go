package transport

import (
	"bytes"
	"errors"
	"strings"

	"github.com/panjf2000/gnet/v2"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/albertbausili/streamhttp/internal/codec"
	"github.com/albertbausili/streamhttp/internal/message"
)

var errConnClosed = errors.New("transport: connection closed")

// h2PrefaceLine is the request line of an HTTP/2 prior-knowledge preface.
var h2PrefaceLine = []byte(http2.ClientPreface[:strings.Index(http2.ClientPreface, "\r\n")])

// wire is the part of gnet.Conn the traffic loop uses.
type wire interface {
	Peek(n int) ([]byte, error)
	Discard(n int) (int, error)
	Write(b []byte) (int, error)
}

// connAdapter is the codec's view of one gnet connection. It lives on the
// connection's event loop only.
type connAdapter struct {
	id     uint64
	w      wire
	closed bool
	served int
	// answered is set once a request has been responded to while the
	// codec is left in the body phase; later frames are consumed silently.
	answered bool
}

func (a *connAdapter) ID() uint64 { return a.id }

func (a *connAdapter) Send(b []byte) error {
	if a.closed {
		return errConnClosed
	}
	_, err := a.w.Write(b)
	return err
}

// Close marks the connection; the event loop closes it when the current
// callback returns.
func (a *connAdapter) Close() error {
	a.closed = true
	return nil
}

// serve runs every complete frame buffered on a through the codec.
func (s *Server) serve(a *connAdapter) gnet.Action {
	for !a.closed {
		buf, err := a.w.Peek(-1)
		if err != nil {
			s.logger.Debug("peek", zap.Uint64("conn", a.id), zap.Error(err))
			return gnet.Close
		}

		if a.served == 0 && bytes.HasPrefix(buf, h2PrefaceLine) {
			s.logger.Info("rejecting HTTP/2 prior-knowledge connection", zap.Uint64("conn", a.id))
			protocolErrors.WithLabelValues("http2_preface").Inc()
			s.proto.Forget(a)
			return gnet.Close
		}

		n, err := s.proto.Size(buf, a)
		if err != nil {
			protocolErrors.WithLabelValues(codec.KindOf(err).String()).Inc()
			return gnet.Close
		}
		if n == 0 {
			return gnet.None
		}

		d, err := s.proto.Decode(buf[:n], a)
		if _, derr := a.w.Discard(n); derr != nil {
			s.logger.Debug("discard", zap.Uint64("conn", a.id), zap.Error(derr))
			return gnet.Close
		}
		if err != nil {
			protocolErrors.WithLabelValues(codec.KindOf(err).String()).Inc()
			return gnet.Close
		}
		framesTotal.WithLabelValues(d.Phase.String()).Inc()

		if !d.Complete() {
			continue
		}
		if a.answered {
			s.logger.Debug("dropping frame after answered request",
				zap.Uint64("conn", a.id), zap.Int("bytes", n))
			continue
		}
		s.respond(a, d.Request)
	}
	return gnet.Close
}

// respond hands a completed request to the application and writes the
// encoded answer.
func (s *Server) respond(a *connAdapter, req *message.Request) {
	a.served++
	if req.Body != nil {
		requestBodyBytes.Observe(float64(req.Body.Len()))
	}

	out, err := s.proto.Encode(s.invoke(a, req), a)
	if err != nil {
		protocolErrors.WithLabelValues(codec.KindOf(err).String()).Inc()
		return
	}
	if len(out) > 0 {
		if err := a.Send(out); err != nil {
			s.logger.Debug("write response", zap.Uint64("conn", a.id), zap.Error(err))
			a.closed = true
			return
		}
	}
	if a.closed {
		return
	}
	if s.rearm {
		s.proto.Reset(a)
	} else {
		a.answered = true
	}
}

func (s *Server) invoke(a *connAdapter, req *message.Request) (res any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic",
				zap.Uint64("conn", a.id),
				zap.String("method", req.Method),
				zap.String("target", req.Target),
				zap.Any("panic", r))
			res = internalServerError()
		}
	}()
	if s.handler == nil {
		return internalServerError()
	}
	return s.handler.Handle(s.ctx, req)
}

func internalServerError() *message.Response {
	return message.NewResponse(500,
		message.NewHeaders([2]string{"Content-Type", "text/plain"}),
		[]byte(message.StatusText(500)), "1.1")
}
