package message

// Response is an HTTP/1.x response value handed to the encoder.
type Response struct {
	Status int
	// Reason overrides StatusText(Status) when non-empty.
	Reason string
	Proto  string
	Header Headers
	Body   []byte
}

// NewResponse builds a response. An empty proto means "1.1".
func NewResponse(status int, header Headers, body []byte, proto string) *Response {
	if proto == "" {
		proto = "1.1"
	}
	return &Response{
		Status: status,
		Proto:  proto,
		Header: header.Clone(),
		Body:   body,
	}
}

// ReasonPhrase returns the reason phrase written on the status line.
func (r *Response) ReasonPhrase() string {
	if r.Reason != "" {
		return r.Reason
	}
	return StatusText(r.Status)
}

func (r *Response) clone() *Response {
	c := *r
	c.Header = r.Header.Clone()
	return &c
}

// WithHeader returns a copy of r with name set to value.
func (r *Response) WithHeader(name, value string) *Response {
	c := r.clone()
	c.Header.Set(name, value)
	return c
}

// WithoutHeader returns a copy of r with name removed.
func (r *Response) WithoutHeader(name string) *Response {
	c := r.clone()
	c.Header.Del(name)
	return c
}

// WithStatus returns a copy of r with a new status and reason.
func (r *Response) WithStatus(status int, reason string) *Response {
	c := r.clone()
	c.Status = status
	c.Reason = reason
	return c
}

// WithBody returns a copy of r carrying body.
func (r *Response) WithBody(body []byte) *Response {
	c := r.clone()
	c.Body = body
	return c
}
