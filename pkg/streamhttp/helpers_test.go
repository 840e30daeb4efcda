package streamhttp

import (
	"context"

	"github.com/albertbausili/streamhttp/internal/message"
)

// testContext builds a context for a decoded request the way the server does.
func testContext(method, target, body string, headers ...[2]string) *Context {
	uri, err := message.ParseURI(target)
	if err != nil {
		panic(err)
	}
	req := message.NewRequest(method, uri, target, "1.1").
		WithHeaders(message.NewHeaders(headers...)).
		WithBody(message.NewBody([]byte(body)))
	return newContext(context.Background(), req)
}

// responseOf returns the structured response built on c.
func responseOf(c *Context) *Response {
	r, ok := c.response().(*Response)
	if !ok {
		panic("raw response")
	}
	return r
}
