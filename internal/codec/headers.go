package codec

import (
	"bytes"

	"github.com/albertbausili/streamhttp/internal/message"
)

type headersHandler struct {
	maxLen int
}

func (h *headersHandler) size(buf []byte, _ *Context) (int, error) {
	// a bare CRLF is an empty header section
	if bytes.HasPrefix(buf, crlf) {
		return len(crlf), nil
	}
	pos := bytes.Index(buf, crlfCRLF)
	if pos == -1 && len(buf) < h.maxLen {
		return 0, nil
	}
	if pos == -1 || pos+len(crlfCRLF) > h.maxLen {
		return 0, tooLarge(431, "request headers too large")
	}
	return pos + len(crlfCRLF), nil
}

// decode is tolerant: blank lines and lines without a colon are skipped.
func (h *headersHandler) decode(frame []byte, ctx *Context) (*message.Request, error) {
	req := ctx.Request
	if req == nil {
		return nil, missingContext("no request found in context")
	}

	var headers message.Headers
	for _, line := range bytes.Split(bytes.TrimRight(frame, "\r\n"), crlf) {
		if len(line) == 0 {
			continue
		}
		colon := bytes.IndexByte(line, ':')
		if colon == -1 {
			continue
		}
		name := trimOWS(line[:colon])
		if !message.ValidName(string(name)) {
			continue
		}
		value := trimOWS(line[colon+1:])
		headers.Add(string(name), string(value))

		if asciiEqualFold(name, "connection") && asciiEqualFold(value, "close") {
			ctx.closeIntent = true
		}
	}

	req = req.WithHeaders(headers)
	ctx.Request = req
	ctx.Phase = PhaseBody
	return req, nil
}
