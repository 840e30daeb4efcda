package codec

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/albertbausili/streamhttp/internal/message"
)

// Encode serializes v for conn. v is a *message.Response, or a string or
// []byte already in wire format which is passed through untouched.
//
// When the connection must close after this response, Encode sends the bytes
// itself, tears the connection down and returns an empty result. Otherwise
// it returns the bytes for the runtime to write.
func (p *Protocol) Encode(v any, conn Conn) ([]byte, error) {
	ctx, _ := p.store.Lookup(conn.ID())
	shouldClose := ctx != nil && ctx.ShouldClose

	var out []byte
	switch r := v.(type) {
	case *message.Response:
		if r == nil {
			return nil, p.fail(conn, ctx, invalidResponse("invalid response type: nil *message.Response"))
		}
		b, err := encodeResponse(r, shouldClose)
		if err != nil {
			return nil, p.fail(conn, ctx, err)
		}
		out = b
	case string:
		out = []byte(r)
	case []byte:
		out = r
	default:
		return nil, p.fail(conn, ctx, invalidResponse(
			"invalid response type: expected *message.Response or string, got %T", v))
	}

	if shouldClose {
		if err := conn.Send(out); err != nil {
			p.logger.Debug("send final response", zap.Uint64("conn", conn.ID()), zap.Error(err))
		}
		p.closeConnection(conn)
		return nil, nil
	}
	return out, nil
}

// encodeResponse applies the Content-Length and Connection rules and
// serializes the status line, headers and body.
func encodeResponse(r *message.Response, shouldClose bool) ([]byte, error) {
	resp := r.WithHeader("Content-Length", strconv.Itoa(len(r.Body)))
	switch {
	case shouldClose:
		resp = resp.WithHeader("Connection", "close")
	case resp.Proto == "1.0":
		resp = resp.WithHeader("Connection", "keep-alive")
	}

	proto := resp.Proto
	if proto == "" {
		proto = "1.1"
	}

	expected := 32 + len(resp.Body)
	for _, f := range resp.Header.Fields() {
		if !message.ValidName(f.Name) {
			return nil, invalidResponse("invalid header name %q", f.Name)
		}
		expected += len(f.Name) + 4
		for _, v := range f.Values {
			expected += len(v) + 2
		}
	}

	buf := make([]byte, 0, expected)
	buf = append(buf, "HTTP/"...)
	buf = append(buf, proto...)
	buf = append(buf, ' ')
	buf = strconv.AppendInt(buf, int64(resp.Status), 10)
	buf = append(buf, ' ')
	buf = append(buf, resp.ReasonPhrase()...)
	buf = append(buf, crlf...)

	for _, f := range resp.Header.Fields() {
		buf = append(buf, f.Name...)
		buf = append(buf, ": "...)
		for i, v := range f.Values {
			if i > 0 {
				buf = append(buf, ", "...)
			}
			buf = append(buf, v...)
		}
		buf = append(buf, crlf...)
	}
	buf = append(buf, crlf...)
	buf = append(buf, resp.Body...)
	return buf, nil
}
