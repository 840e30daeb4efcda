package codec

import (
	"bytes"
	"strings"

	"github.com/albertbausili/streamhttp/internal/message"
)

var bHTTP = []byte("HTTP/")

type requestLineHandler struct {
	methods *Methods
	maxLen  int
}

func (h *requestLineHandler) size(buf []byte, _ *Context) (int, error) {
	pos := bytes.Index(buf, crlf)
	if pos == -1 && len(buf) < h.maxLen {
		return 0, nil
	}
	// a line ending past the cap is rejected like one that never ends
	if pos == -1 || pos+len(crlf) > h.maxLen {
		return 0, &Error{
			Kind:   KindSizeLimit,
			Code:   CodeRequestTooLong,
			Status: 414,
			Msg:    "request line too long",
		}
	}
	return pos + len(crlf), nil
}

func (h *requestLineHandler) decode(frame []byte, ctx *Context) (*message.Request, error) {
	pos := bytes.Index(frame, crlf)
	if pos == -1 {
		return nil, malformed(CodeMissingCRLF, "no CRLF found in buffer")
	}
	line := frame[:pos]

	method, target, proto, ok := splitRequestLine(line)
	if !ok {
		return nil, malformed(CodeInvalidRequestLine, "invalid request line: %s", line)
	}

	method = strings.ToUpper(method)
	if !h.methods.Allowed(method) {
		return nil, &Error{
			Kind:   KindUnsupportedMethod,
			Code:   CodeUnsupportedMethod,
			Status: 501,
			Msg:    "unsupported HTTP method: " + method,
		}
	}

	uri, err := message.ParseURI(target)
	if err != nil {
		e := malformed(CodeInvalidRequestLine, "invalid request target")
		e.Err = err
		return nil, e
	}

	req := message.NewRequest(method, uri, target, proto)
	ctx.Request = req
	ctx.Phase = PhaseHeaders
	return req, nil
}

// splitRequestLine matches METHOD SP TARGET SP HTTP/d.d where METHOD is ASCII
// letters and the separators are runs of SP or HTAB. TARGET is everything
// between the separators and may itself contain blanks.
func splitRequestLine(line []byte) (method, target, proto string, ok bool) {
	i := 0
	for i < len(line) && isAlpha(line[i]) {
		i++
	}
	if i == 0 || i == len(line) || !isBlank(line[i]) {
		return "", "", "", false
	}
	method = string(line[:i])

	const versionLen = len("HTTP/d.d")
	if len(line) < i+versionLen+2 {
		return "", "", "", false
	}
	version := line[len(line)-versionLen:]
	if !asciiEqualFold(version[:len(bHTTP)], "HTTP/") {
		return "", "", "", false
	}
	v := version[len(bHTTP):]
	if !isDigit(v[0]) || v[1] != '.' || !isDigit(v[2]) {
		return "", "", "", false
	}

	rest := line[i : len(line)-versionLen]
	if !isBlank(rest[len(rest)-1]) {
		return "", "", "", false
	}
	mid := trimBlank(rest)
	if len(mid) == 0 {
		return "", "", "", false
	}
	return method, string(mid), string(v), true
}
