package codec

import (
	"strconv"
	"strings"

	"github.com/albertbausili/streamhttp/internal/message"
)

type bodyHandler struct {
	maxLen int
}

// skipsBody reports whether method never carries a request body.
func skipsBody(method string) bool {
	switch method {
	case "GET", "HEAD", "DELETE", "OPTIONS":
		return true
	}
	return false
}

// expectsBody reports whether req declares a body frame. An unparsable
// Content-Length counts as a body so that sizing reports the error.
func expectsBody(req *message.Request) bool {
	if skipsBody(req.Method) {
		return false
	}
	if isChunked(req) {
		return true
	}
	n, err := contentLength(req)
	return err != nil || n > 0
}

func isChunked(req *message.Request) bool {
	return strings.EqualFold(req.Header.Line("Transfer-Encoding"), "chunked")
}

// contentLength returns the declared body length, 0 when absent. Repeated
// Content-Length values must agree.
func contentLength(req *message.Request) (int64, error) {
	values := req.Header.Values("Content-Length")
	if len(values) == 0 {
		return 0, nil
	}
	var n int64 = -1
	for _, v := range values {
		cl, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || cl < 0 {
			return 0, malformed(400, "invalid Content-Length %q", v)
		}
		if n != -1 && cl != n {
			return 0, malformed(400, "conflicting Content-Length values")
		}
		n = cl
	}
	return n, nil
}

func (h *bodyHandler) size(buf []byte, ctx *Context) (int, error) {
	req := ctx.Request
	if req == nil {
		return 0, missingContext("no request in context")
	}
	if skipsBody(req.Method) {
		return len(buf), nil
	}

	declared, err := contentLength(req)
	if err != nil {
		return 0, err
	}
	if declared > 0 {
		if declared > int64(h.maxLen) {
			return 0, tooLarge(413, "request body exceeds %d bytes", h.maxLen)
		}
		if int64(len(buf)) < declared {
			return 0, nil
		}
		return int(declared), nil
	}

	if isChunked(req) {
		return scanChunks(buf, h.maxLen)
	}
	return len(buf), nil
}

func (h *bodyHandler) decode(frame []byte, ctx *Context) (*message.Request, error) {
	req := ctx.Request
	if req == nil {
		return nil, missingContext("no request in context")
	}
	if skipsBody(req.Method) {
		return req, nil
	}

	var body []byte
	if isChunked(req) {
		decoded, err := decodeChunks(frame)
		if err != nil {
			return nil, err
		}
		body = decoded
	} else {
		// frame aliases the runtime's read buffer
		body = append([]byte(nil), frame...)
	}

	req = req.WithBody(message.NewBody(body))
	ctx.Request = req
	return req, nil
}
