package message

import (
	"fmt"
	"net/url"
	"strings"
)

// Request is an HTTP/1.x request as assembled by the codec.
// Values are never mutated once handed out; the With* methods return copies.
type Request struct {
	Method string
	// Target is the request-target exactly as it appeared on the wire.
	Target string
	URI    *url.URL
	// Proto is the protocol version without the "HTTP/" prefix, e.g. "1.1".
	Proto  string
	Header Headers
	Body   *Body
}

// NewRequest returns a request with no headers and an empty body.
func NewRequest(method string, uri *url.URL, target, proto string) *Request {
	return &Request{
		Method: method,
		Target: target,
		URI:    uri,
		Proto:  proto,
		Body:   NewBody(nil),
	}
}

func (r *Request) clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	return &c
}

// WithHeader returns a copy of r with name set to value, replacing prior values.
func (r *Request) WithHeader(name, value string) *Request {
	c := r.clone()
	c.Header.Set(name, value)
	return c
}

// WithAddedHeader returns a copy of r with value appended to name.
func (r *Request) WithAddedHeader(name, value string) *Request {
	c := r.clone()
	c.Header.Add(name, value)
	return c
}

// WithHeaders returns a copy of r with every field of h appended.
func (r *Request) WithHeaders(h Headers) *Request {
	c := r.clone()
	for _, f := range h.Fields() {
		for _, v := range f.Values {
			c.Header.Add(f.Name, v)
		}
	}
	return c
}

// WithBody returns a copy of r carrying body.
func (r *Request) WithBody(body *Body) *Request {
	c := r.clone()
	c.Body = body
	return c
}

// Path returns the URI path, or "" when no URI was parsed.
func (r *Request) Path() string {
	if r.URI == nil {
		return ""
	}
	return r.URI.Path
}

// Query returns the raw query string.
func (r *Request) Query() string {
	if r.URI == nil {
		return ""
	}
	return r.URI.RawQuery
}

// ParseURI parses a request-target in origin, absolute, authority or
// asterisk form.
func ParseURI(target string) (*url.URL, error) {
	if target == "" {
		return nil, fmt.Errorf("empty request target")
	}
	// authority-form, as sent with CONNECT; ParseRequestURI would read
	// "host:port" as scheme and opaque.
	if target != "*" && !strings.HasPrefix(target, "/") && !strings.Contains(target, "://") {
		au, err := url.Parse("//" + target)
		if err != nil {
			return nil, fmt.Errorf("invalid request target %q: %w", target, err)
		}
		if au.Host == "" || au.Path != "" || au.RawQuery != "" || au.User != nil {
			return nil, fmt.Errorf("invalid authority-form target %q", target)
		}
		return au, nil
	}
	u, err := url.ParseRequestURI(target)
	if err == nil {
		return u, nil
	}
	return nil, fmt.Errorf("invalid request target %q: %w", target, err)
}
