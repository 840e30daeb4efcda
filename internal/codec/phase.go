// Package codec implements an incremental HTTP/1.1 request codec for event
// driven servers. The hosting runtime asks Size how many buffered bytes form
// the next frame, hands exactly that many bytes to Decode, and serializes
// responses with Encode.
package codec

// Phase is a connection's position within one HTTP message.
type Phase uint8

const (
	PhaseRequestLine Phase = iota
	PhaseHeaders
	PhaseBody
)

func (p Phase) String() string {
	switch p {
	case PhaseRequestLine:
		return "request_line"
	case PhaseHeaders:
		return "headers"
	case PhaseBody:
		return "body"
	default:
		return "unknown"
	}
}

// Label returns a human readable phase name.
func (p Phase) Label() string {
	switch p {
	case PhaseRequestLine:
		return "Request Line"
	case PhaseHeaders:
		return "Headers"
	case PhaseBody:
		return "Body"
	default:
		return "Unknown"
	}
}
