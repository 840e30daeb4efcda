package streamhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/albertbausili/streamhttp/internal/message"
)

// ErrJSONEncoding is returned by Context.JSON when the value cannot be encoded.
var ErrJSONEncoding = errors.New("streamhttp: JSON encoding failed")

// Request is a decoded HTTP/1.1 request.
type Request = message.Request

// Response is an HTTP/1.1 response value.
type Response = message.Response

// Headers is an ordered, case-insensitive header multimap.
type Headers = message.Headers

// Context represents one request and the response being built for it.
type Context struct {
	req             *Request
	ctx             context.Context
	statusCode      int
	responseHeaders Headers
	responseBody    bytes.Buffer
	raw             any
	values          map[string]any
}

func newContext(ctx context.Context, req *Request) *Context {
	return &Context{req: req, ctx: ctx}
}

// Request returns the decoded request.
func (c *Context) Request() *Request {
	return c.req
}

// Method returns the upper-cased request method.
func (c *Context) Method() string {
	return c.req.Method
}

// Path returns the request path.
func (c *Context) Path() string {
	return c.req.Path()
}

// Target returns the raw request-target.
func (c *Context) Target() string {
	return c.req.Target
}

// Proto returns the request's HTTP version, "1.0" or "1.1".
func (c *Context) Proto() string {
	return c.req.Proto
}

// Header returns the request headers.
func (c *Context) Header() Headers {
	return c.req.Header
}

// Body returns the request body reader.
func (c *Context) Body() io.Reader {
	if c.req.Body == nil {
		return bytes.NewReader(nil)
	}
	return c.req.Body
}

// BodyBytes returns the entire request body.
func (c *Context) BodyBytes() []byte {
	return c.req.Body.Bytes()
}

// BindJSON parses the request body as JSON into v.
func (c *Context) BindJSON(v any) error {
	return json.Unmarshal(c.BodyBytes(), v)
}

// Query returns the first value of the query parameter key.
func (c *Context) Query(key string) string {
	if c.req.URI == nil {
		return ""
	}
	return c.req.URI.Query().Get(key)
}

// QueryDefault returns the query parameter value or a default if not found.
func (c *Context) QueryDefault(key, defaultValue string) string {
	if value := c.Query(key); value != "" {
		return value
	}
	return defaultValue
}

// QueryInt returns the query parameter value as an integer.
func (c *Context) QueryInt(key string) (int, error) {
	value := c.Query(key)
	if value == "" {
		return 0, fmt.Errorf("query parameter %q not found", key)
	}
	return strconv.Atoi(value)
}

// SetStatus sets the HTTP response status code.
func (c *Context) SetStatus(code int) {
	c.statusCode = code
}

// Status returns the response status code, 200 when none was set.
func (c *Context) Status() int {
	if c.statusCode == 0 {
		return 200
	}
	return c.statusCode
}

// SetHeader sets a response header.
func (c *Context) SetHeader(key, value string) {
	c.responseHeaders.Set(key, value)
}

// AddHeader appends a response header value.
func (c *Context) AddHeader(key, value string) {
	c.responseHeaders.Add(key, value)
}

// ResponseHeader returns the response headers set so far.
func (c *Context) ResponseHeader() Headers {
	return c.responseHeaders.Clone()
}

// Write appends data to the response body.
func (c *Context) Write(data []byte) (int, error) {
	return c.responseBody.Write(data)
}

// WriteString appends s to the response body.
func (c *Context) WriteString(s string) (int, error) {
	return c.responseBody.WriteString(s)
}

// Written reports whether anything was written to the response yet.
func (c *Context) Written() bool {
	return c.statusCode != 0 || c.responseBody.Len() > 0 || c.raw != nil
}

// JSON sends v encoded as JSON with the given status code. Encoding failures
// wrap ErrJSONEncoding and leave the response untouched.
func (c *Context) JSON(status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJSONEncoding, err)
	}
	return c.Data(status, "application/json", data)
}

// String sends a formatted text response with the given status code.
func (c *Context) String(status int, format string, values ...any) error {
	return c.Data(status, "text/plain; charset=utf-8", []byte(fmt.Sprintf(format, values...)))
}

// Plain sends a plain text response without fmt formatting overhead.
func (c *Context) Plain(status int, s string) error {
	return c.Data(status, "text/plain; charset=utf-8", []byte(s))
}

// HTML sends an HTML response with the given status code.
func (c *Context) HTML(status int, html string) error {
	return c.Data(status, "text/html; charset=utf-8", []byte(html))
}

// Data replaces the response with data of the given content type.
func (c *Context) Data(status int, contentType string, data []byte) error {
	c.statusCode = status
	c.responseHeaders.Set("Content-Type", contentType)
	c.responseBody.Reset()
	_, err := c.responseBody.Write(data)
	return err
}

// NoContent sends a response with no body content.
func (c *Context) NoContent(status int) error {
	c.statusCode = status
	c.responseBody.Reset()
	return nil
}

// Redirect sends an HTTP redirect response.
func (c *Context) Redirect(status int, url string) error {
	if status < 300 || status > 308 {
		status = 302
	}
	c.SetHeader("Location", url)
	return c.NoContent(status)
}

// Raw answers with a pre-formatted response, a string or []byte already in
// wire format. Headers and body set on the context are ignored.
func (c *Context) Raw(v any) error {
	switch v.(type) {
	case string, []byte:
		c.raw = v
		return nil
	}
	return fmt.Errorf("streamhttp: raw response must be string or []byte, got %T", v)
}

// Context returns the underlying context.Context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// WithContext replaces the underlying context.Context.
func (c *Context) WithContext(ctx context.Context) {
	c.ctx = ctx
}

// Set stores a key-value pair in the context.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any, 4)
	}
	c.values[key] = value
}

// Get retrieves a value from the context by key.
func (c *Context) Get(key string) (any, bool) {
	val, ok := c.values[key]
	return val, ok
}

// MustGet retrieves a value from the context by key, panicking if not found.
func (c *Context) MustGet(key string) any {
	if val, ok := c.Get(key); ok {
		return val
	}
	panic(fmt.Sprintf("key %q not found in context", key))
}

// response returns what the codec encodes for this context.
func (c *Context) response() any {
	if c.raw != nil {
		return c.raw
	}
	return message.NewResponse(c.Status(), c.responseHeaders, c.responseBody.Bytes(), c.req.Proto)
}

// bodyLen returns the size of the response body built so far.
func (c *Context) bodyLen() int {
	switch r := c.raw.(type) {
	case string:
		return len(r)
	case []byte:
		return len(r)
	}
	return c.responseBody.Len()
}
