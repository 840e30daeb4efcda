package codec

import "github.com/albertbausili/streamhttp/internal/message"

// phaseHandler is implemented once per Phase.
//
// size reports how many leading bytes of buf form the next complete frame:
// 0 means more data is needed. decode consumes exactly one such frame,
// updates ctx and returns the message built so far.
type phaseHandler interface {
	size(buf []byte, ctx *Context) (int, error)
	decode(frame []byte, ctx *Context) (*message.Request, error)
}

// Limits bounds how much a single connection may buffer per phase.
type Limits struct {
	MaxRequestLine int
	MaxHeaders     int
	MaxBody        int
}

// DefaultLimits returns 8 KiB for the request line, 16 KiB for the header
// section and 2 MiB for the body.
func DefaultLimits() Limits {
	return Limits{
		MaxRequestLine: 8192,
		MaxHeaders:     16384,
		MaxBody:        2 << 20,
	}
}

func (l Limits) normalize() Limits {
	d := DefaultLimits()
	if l.MaxRequestLine <= 0 {
		l.MaxRequestLine = d.MaxRequestLine
	}
	if l.MaxHeaders <= 0 {
		l.MaxHeaders = d.MaxHeaders
	}
	if l.MaxBody <= 0 {
		l.MaxBody = d.MaxBody
	}
	return l
}
