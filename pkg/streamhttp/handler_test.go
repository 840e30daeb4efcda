package streamhttp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerFunc_ServeHTTP1(t *testing.T) {
	called := false
	handler := HandlerFunc(func(_ *Context) error {
		called = true
		return nil
	})

	require.NoError(t, handler.ServeHTTP1(testContext("GET", "/", "")))
	assert.True(t, called)
}

func TestHandlerFunc_Error(t *testing.T) {
	expectedErr := errors.New("test error")
	handler := HandlerFunc(func(_ *Context) error {
		return expectedErr
	})

	assert.Equal(t, expectedErr, handler.ServeHTTP1(testContext("GET", "/", "")))
}

func TestMiddlewareFunc_ToMiddleware(t *testing.T) {
	var order []string
	mw := MiddlewareFunc(func(ctx *Context, next Handler) error {
		order = append(order, "middleware")
		return next.ServeHTTP1(ctx)
	}).ToMiddleware()

	handler := HandlerFunc(func(_ *Context) error {
		order = append(order, "handler")
		return nil
	})

	require.NoError(t, mw(handler).ServeHTTP1(testContext("GET", "/", "")))
	assert.Equal(t, []string{"middleware", "handler"}, order)
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return HandlerFunc(func(ctx *Context) error {
				order = append(order, name+">")
				err := next.ServeHTTP1(ctx)
				order = append(order, "<"+name)
				return err
			})
		}
	}

	handler := Chain(tag("a"), tag("b"))(HandlerFunc(func(_ *Context) error {
		order = append(order, "h")
		return nil
	}))

	require.NoError(t, handler.ServeHTTP1(testContext("GET", "/", "")))
	assert.Equal(t, []string{"a>", "b>", "h", "<b", "<a"}, order)
}

func TestChain_Empty(t *testing.T) {
	called := false
	handler := Chain()(HandlerFunc(func(_ *Context) error {
		called = true
		return nil
	}))
	require.NoError(t, handler.ServeHTTP1(testContext("GET", "/", "")))
	assert.True(t, called)
}
