package codec

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albertbausili/streamhttp/internal/message"
)

type fakeConn struct {
	id      uint64
	sent    [][]byte
	closed  int
	sendErr error
}

func (c *fakeConn) ID() uint64 { return c.id }

func (c *fakeConn) Send(b []byte) error {
	c.sent = append(c.sent, append([]byte(nil), b...))
	return c.sendErr
}

func (c *fakeConn) Close() error {
	c.closed++
	return nil
}

func (c *fakeConn) sentString() string {
	var sb strings.Builder
	for _, b := range c.sent {
		sb.Write(b)
	}
	return sb.String()
}

// feed runs data through p the way a runtime would: size, trim, decode,
// repeat, returning every decoded result and the bytes left over.
func feed(t *testing.T, p *Protocol, conn Conn, data []byte) ([]Decoded, []byte) {
	t.Helper()
	var out []Decoded
	for {
		n, err := p.Size(data, conn)
		require.NoError(t, err)
		if n == 0 {
			return out, data
		}
		d, err := p.Decode(data[:n], conn)
		require.NoError(t, err)
		out = append(out, d)
		data = data[n:]
		if d.Complete() {
			return out, data
		}
	}
}

func TestSize_ShortBufferNeedsMore(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	for _, phase := range []Phase{PhaseRequestLine, PhaseHeaders, PhaseBody} {
		ctx := p.Store().GetOrCreate(conn.ID())
		ctx.Phase = phase
		ctx.Request = message.NewRequest("POST", nil, "/", "1.1").WithHeader("Content-Length", "10")

		for _, buf := range [][]byte{nil, {}, []byte("G")} {
			n, err := p.Size(buf, conn)
			require.NoError(t, err, phase.String())
			assert.Equal(t, 0, n, phase.String())
		}
	}
}

func TestRequestLine_SizeAndDecode(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	line := []byte("GET /a?b=1 HTTP/1.1\r\n")

	n, err := p.Size(append(line, "Host: x\r\n"...), conn)
	require.NoError(t, err)
	assert.Equal(t, 21, n)

	d, err := p.Decode(line[:n], conn)
	require.NoError(t, err)
	assert.Equal(t, PhaseRequestLine, d.Phase)
	assert.Equal(t, "GET", d.Request.Method)
	assert.Equal(t, "/a", d.Request.Path())
	assert.Equal(t, "b=1", d.Request.Query())
	assert.Equal(t, "/a?b=1", d.Request.Target)
	assert.Equal(t, "1.1", d.Request.Proto)
	assert.Equal(t, 0, d.Request.Header.Len())
	assert.Equal(t, 0, d.Request.Body.Len())

	phase, ok := p.Phase(conn)
	require.True(t, ok)
	assert.Equal(t, PhaseHeaders, phase)
}

func TestRequestLine_MethodCaseInsensitive(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	decoded, _ := feed(t, p, conn, []byte("post /x http/1.0\r\n"))
	require.Len(t, decoded, 1)
	assert.Equal(t, "POST", decoded[0].Request.Method)
	assert.Equal(t, "1.0", decoded[0].Request.Proto)
}

func TestRequestLine_ConnectAuthorityForm(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	decoded, _ := feed(t, p, conn, []byte("CONNECT example.com:443 HTTP/1.1\r\n"))
	require.Len(t, decoded, 1)
	req := decoded[0].Request
	assert.Equal(t, "CONNECT", req.Method)
	assert.Equal(t, "example.com:443", req.Target)
	require.NotNil(t, req.URI)
	assert.Equal(t, "", req.URI.Scheme)
	assert.Equal(t, "example.com", req.URI.Hostname())
	assert.Equal(t, "443", req.URI.Port())
}

func TestRequestLine_Errors(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind Kind
		code int
	}{
		{"malformed", "BADLINE\r\n", KindMalformedFrame, CodeInvalidRequestLine},
		{"unsupported method", "FOO / HTTP/1.1\r\n", KindUnsupportedMethod, CodeUnsupportedMethod},
		{"control byte in target", "GET /a\x7fb HTTP/1.1\r\n", KindMalformedFrame, CodeInvalidRequestLine},
		{"no target", "GET  HTTP/1.1\r\n", KindMalformedFrame, CodeInvalidRequestLine},
		{"bad version", "GET / HTTP/11\r\n", KindMalformedFrame, CodeInvalidRequestLine},
		{"digits in method", "G3T / HTTP/1.1\r\n", KindMalformedFrame, CodeInvalidRequestLine},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			conn := &fakeConn{id: 7}

			n, err := p.Size([]byte(tt.line), conn)
			require.NoError(t, err)
			require.Equal(t, len(tt.line), n)

			_, err = p.Decode([]byte(tt.line), conn)
			require.Error(t, err)

			var e *Error
			require.True(t, errors.As(err, &e))
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, tt.code, e.Code)

			// request-line failures close silently
			assert.Empty(t, conn.sent)
			assert.Equal(t, 1, conn.closed)
			assert.Equal(t, 0, p.Store().Len())
		})
	}
}

func TestRequestLine_MissingCRLF(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	p.Store().GetOrCreate(conn.ID())

	_, err := p.Decode([]byte("GET / HTTP/1.1"), conn)
	require.Error(t, err)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, CodeMissingCRLF, e.Code)
}

func TestRequestLine_TooLong(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	n, err := p.Size([]byte(strings.Repeat("a", 8191)), conn)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = p.Size([]byte(strings.Repeat("a", 8192)), conn)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSizeLimit)
	assert.Equal(t, 414, StatusOf(err))
	assert.Empty(t, conn.sent)
	assert.Equal(t, 1, conn.closed)
}

func TestAllowList_AddMethod(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	p.Size([]byte("PURGE / HTTP/1.1\r\n"), conn)
	_, err := p.Decode([]byte("PURGE / HTTP/1.1\r\n"), conn)
	require.ErrorIs(t, err, ErrUnsupportedMethod)

	p.Methods().Add("purge")
	conn = &fakeConn{id: 2}
	decoded, _ := feed(t, p, conn, []byte("PURGE /cache HTTP/1.1\r\n"))
	require.Len(t, decoded, 1)
	assert.Equal(t, "PURGE", decoded[0].Request.Method)
	assert.Contains(t, p.Methods().List(), "PURGE")
}

func TestHeaders_ConnectionClose(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	decoded, rest := feed(t, p, conn, []byte("GET / HTTP/1.1\r\nHost: a\r\nConnection: close\r\n\r\n"))
	require.Len(t, decoded, 2)
	assert.True(t, decoded[1].Complete())
	assert.Empty(t, rest)

	hdr := decoded[1]
	assert.Equal(t, PhaseHeaders, hdr.Phase)
	assert.Equal(t, "close", hdr.Request.Header.Get("Connection"))
	assert.Equal(t, "a", hdr.Request.Header.Get("host"))
	assert.True(t, p.ShouldClose(conn))
}

func TestHeaders_KeepAlive(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	feed(t, p, conn, []byte("GET / HTTP/1.1\r\nConnection: keep-alive\r\n\r\n"))
	assert.False(t, p.ShouldClose(conn))
}

func TestHeaders_HTTP10Closes(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	feed(t, p, conn, []byte("GET / HTTP/1.0\r\nHost: a\r\n\r\n"))
	assert.True(t, p.ShouldClose(conn))
}

func TestHeaders_TolerantParsing(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	raw := "GET / HTTP/1.1\r\n" +
		"Accept:  text/html \r\n" +
		"no colon here\r\n" +
		"accept: application/json\r\n" +
		"X-Empty:\r\n" +
		"X-Time: 10:30\r\n\r\n"
	decoded, _ := feed(t, p, conn, []byte(raw))
	h := decoded[1].Request.Header

	assert.Equal(t, []string{"text/html", "application/json"}, h.Values("Accept"))
	assert.Equal(t, "", h.Get("X-Empty"))
	assert.True(t, h.Has("X-Empty"))
	assert.Equal(t, "10:30", h.Get("X-Time"))
	assert.Equal(t, 3, h.Len())
}

func TestHeaders_InvalidNamesSkipped(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}

	raw := "GET / HTTP/1.1\r\n" +
		"Bad Name: x\r\n" +
		"Bad\"Quote: x\r\n" +
		": empty\r\n" +
		"Good: y\r\n\r\n"
	decoded, _ := feed(t, p, conn, []byte(raw))
	h := decoded[1].Request.Header

	assert.False(t, h.Has("Bad Name"))
	assert.False(t, h.Has("Bad\"Quote"))
	assert.Equal(t, "y", h.Get("Good"))
	assert.Equal(t, 1, h.Len())
}

func TestHeaders_TooLarge(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("GET / HTTP/1.1\r\n"))

	n, err := p.Size([]byte(strings.Repeat("X-A: b\r\n", 2047)), conn)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = p.Size([]byte(strings.Repeat("X-A: b\r\n", 2048)), conn)
	require.ErrorIs(t, err, ErrSizeLimit)
	assert.Equal(t, 431, StatusOf(err))
	assert.Empty(t, conn.sent)
	assert.Equal(t, 1, conn.closed)
}

func TestBody_ContentLength(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("POST /u HTTP/1.1\r\nContent-Length: 5\r\n\r\n"))

	n, err := p.Size([]byte("he"), conn)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = p.Size([]byte("hello"), conn)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = p.Size([]byte("hello, next"), conn)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	d, err := p.Decode([]byte("hello"), conn)
	require.NoError(t, err)
	assert.True(t, d.Complete())
	assert.Equal(t, "hello", d.Request.Body.String())
	assert.Equal(t, "5", d.Request.Header.Get("content-length"))
}

func TestBody_DecodeCopiesFrame(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("PUT / HTTP/1.1\r\nContent-Length: 3\r\n\r\n"))

	frame := []byte("abc")
	d, err := p.Decode(frame, conn)
	require.NoError(t, err)
	frame[0] = 'z'
	assert.Equal(t, "abc", d.Request.Body.String())
}

func TestBody_Chunked(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("POST / HTTP/1.1\r\nTransfer-Encoding: Chunked\r\n\r\n"))

	body := []byte("5\r\nhello\r\n0\r\n\r\n")
	n, err := p.Size(body, conn)
	require.NoError(t, err)
	assert.Equal(t, 15, n)

	d, err := p.Decode(body[:n], conn)
	require.NoError(t, err)
	assert.Equal(t, "hello", d.Request.Body.String())
}

func TestBody_ChunkedMultipleWithExtensions(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"))

	body := []byte("4;name=x\r\nWiki\r\n6\r\npedia \r\n3\r\nabc\r\n0\r\n\r\ntrailing")
	n, err := p.Size(body, conn)
	require.NoError(t, err)
	assert.Equal(t, len(body)-len("trailing"), n)

	d, err := p.Decode(body[:n], conn)
	require.NoError(t, err)
	assert.Equal(t, "Wikipedia abc", d.Request.Body.String())
}

func TestBody_NoBodyMethodsPassThrough(t *testing.T) {
	for _, method := range []string{"GET", "HEAD", "DELETE", "OPTIONS"} {
		t.Run(method, func(t *testing.T) {
			p := New()
			conn := &fakeConn{id: 1}
			feed(t, p, conn, []byte(method+" / HTTP/1.1\r\nContent-Length: 100\r\n\r\n"))

			n, err := p.Size([]byte("xyz"), conn)
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			d, err := p.Decode([]byte("xyz"), conn)
			require.NoError(t, err)
			assert.Equal(t, 0, d.Request.Body.Len())
		})
	}
}

func TestBody_NoLengthIndicatorTakesBuffer(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("POST / HTTP/1.1\r\nHost: a\r\n\r\n"))

	n, err := p.Size([]byte("raw bytes"), conn)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestBody_DeclaredTooLarge(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("POST / HTTP/1.1\r\nContent-Length: 2097153\r\n\r\n"))

	_, err := p.Size([]byte("ab"), conn)
	require.ErrorIs(t, err, ErrSizeLimit)

	// body-phase failures are answered before closing
	require.Len(t, conn.sent, 1)
	resp := conn.sentString()
	assert.True(t, strings.HasPrefix(resp, "HTTP/1.1 413 Request Entity Too Large\r\nConnection: close\r\n"), resp)
	assert.Contains(t, resp, "Content-Type: text/plain\r\n")
	assert.True(t, strings.HasSuffix(resp, "\r\n\r\nrequest body exceeds 2097152 bytes"), resp)
	assert.Equal(t, 1, conn.closed)
	assert.Equal(t, 0, p.Store().Len())
}

func TestBody_ChunkedAccumulatedTooLarge(t *testing.T) {
	p := New(WithLimits(Limits{MaxBody: 8}))
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"))

	n, err := p.Size([]byte("5\r\nhello\r\n"), conn)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = p.Size([]byte("5\r\nhello\r\n4\r\n"), conn)
	require.ErrorIs(t, err, ErrSizeLimit)
	assert.Equal(t, 413, StatusOf(err))
}

func TestBody_ChunkedDefaultCap(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"))

	_, err := p.Size([]byte("200001\r\n"), conn)
	require.ErrorIs(t, err, ErrSizeLimit)
}

func TestBody_MalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		headers string
		body    string
	}{
		{"bad content length", "Content-Length: abc", "abc"},
		{"conflicting content length", "Content-Length: 3\r\nContent-Length: 4", "abcd"},
		{"bad chunk size", "Transfer-Encoding: chunked", "zz\r\nab\r\n"},
		{"chunk without CRLF", "Transfer-Encoding: chunked", "2\r\nabXX0\r\n\r\n"},
		{"trailers", "Transfer-Encoding: chunked", "0\r\nX-T: 1\r\n\r\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			conn := &fakeConn{id: 1}
			feed(t, p, conn, []byte("POST / HTTP/1.1\r\n"+tt.headers+"\r\n\r\n"))

			_, err := p.Size([]byte(tt.body), conn)
			require.ErrorIs(t, err, ErrMalformedFrame)
			assert.True(t, strings.HasPrefix(conn.sentString(), "HTTP/1.1 400 Bad Request\r\n"))
		})
	}
}

func TestIncrementalDeliveryMatchesSingleDelivery(t *testing.T) {
	raw := "POST /submit?x=1 HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Transfer-Encoding: chunked\r\n\r\n" +
		"3\r\nabc\r\n10\r\n0123456789abcdef\r\n0\r\n\r\n"

	whole := New()
	wantDecoded, rest := feed(t, whole, &fakeConn{id: 1}, []byte(raw))
	require.Empty(t, rest)
	require.Len(t, wantDecoded, 3)

	p := New()
	conn := &fakeConn{id: 2}
	var got []Decoded
	var buf []byte
	for i := 0; i < len(raw); i++ {
		buf = append(buf, raw[i])
		for {
			n, err := p.Size(buf, conn)
			require.NoError(t, err)
			if n == 0 {
				break
			}
			d, err := p.Decode(buf[:n], conn)
			require.NoError(t, err)
			got = append(got, d)
			buf = buf[n:]
			if d.Complete() {
				break
			}
		}
	}

	require.Len(t, got, 3)
	for i := range got {
		assert.Equal(t, wantDecoded[i].Phase, got[i].Phase)
	}
	final := got[2].Request
	assert.Equal(t, "abc0123456789abcdef", final.Body.String())
	assert.Equal(t, "example.com", final.Header.Get("Host"))
	assert.Equal(t, "x=1", final.Query())
}

func TestDecode_WithoutContext(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 99}

	_, err := p.Decode([]byte("GET / HTTP/1.1\r\n"), conn)
	require.ErrorIs(t, err, ErrMissingContext)
	assert.Equal(t, 500, StatusOf(err))
	assert.Equal(t, 1, conn.closed)
	assert.Empty(t, conn.sent)
	assert.Equal(t, 0, p.Store().Len())
}

func TestDecode_BodyWithoutRequest(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	p.Store().GetOrCreate(conn.ID()).Phase = PhaseBody

	_, err := p.Decode([]byte("abc"), conn)
	require.ErrorIs(t, err, ErrMissingContext)
	assert.True(t, strings.HasPrefix(conn.sentString(), "HTTP/1.1 500 Internal Server Error\r\n"))
}

func TestPhaseDoesNotResetAfterBody(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 1}
	feed(t, p, conn, []byte("GET / HTTP/1.1\r\n\r\n"))

	d, err := p.Decode([]byte("\r\n"), conn)
	require.NoError(t, err)
	assert.Equal(t, PhaseBody, d.Phase)

	phase, _ := p.Phase(conn)
	assert.Equal(t, PhaseBody, phase)

	p.Reset(conn)
	phase, _ = p.Phase(conn)
	assert.Equal(t, PhaseRequestLine, phase)
	assert.False(t, p.ShouldClose(conn))
}

func TestForget(t *testing.T) {
	p := New()
	conn := &fakeConn{id: 3}
	p.Size([]byte("GET"), conn)
	assert.Equal(t, 1, p.Store().Len())

	p.Forget(conn)
	p.Forget(conn)
	assert.Equal(t, 0, p.Store().Len())
}

func TestConnectionsAreIsolated(t *testing.T) {
	p := New()
	a := &fakeConn{id: 1}
	b := &fakeConn{id: 2}

	feed(t, p, a, []byte("GET /a HTTP/1.1\r\n"))
	feed(t, p, b, []byte("POST /b HTTP/1.0\r\nX: y\r\n\r\n"))

	pa, _ := p.Phase(a)
	pb, _ := p.Phase(b)
	assert.Equal(t, PhaseHeaders, pa)
	assert.Equal(t, PhaseBody, pb)
	assert.False(t, p.ShouldClose(a))
	assert.True(t, p.ShouldClose(b))
}

func TestErrorResponse(t *testing.T) {
	got := string(errorResponse(413, "too big"))
	want := "HTTP/1.1 413 Request Entity Too Large\r\n" +
		"Connection: close\r\n" +
		"Content-Type: text/plain\r\n" +
		"Content-Length: 7\r\n\r\n" +
		"too big"
	assert.Equal(t, want, got)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, 500, StatusOf(fmt.Errorf("boom")))
	assert.Equal(t, 431, StatusOf(fmt.Errorf("wrapped: %w", tooLarge(431, "x"))))
	assert.Equal(t, KindSizeLimit, KindOf(tooLarge(413, "x")))
	assert.Equal(t, KindInternal, KindOf(errors.New("x")))
}

func TestLimits_TerminatorPastCap(t *testing.T) {
	p := New(WithLimits(Limits{MaxRequestLine: 16, MaxHeaders: 16}))
	conn := &fakeConn{id: 1}

	_, err := p.Size([]byte("GET /0123456789 HTTP/1.1\r\n"), conn)
	require.ErrorIs(t, err, ErrSizeLimit)
	assert.Equal(t, 414, StatusOf(err))

	conn = &fakeConn{id: 2}
	feed(t, p, conn, []byte("GET / HTTP/1.1\r\n"))
	_, err = p.Size([]byte("X-Long: 0123456789\r\n\r\n"), conn)
	require.ErrorIs(t, err, ErrSizeLimit)
	assert.Equal(t, 431, StatusOf(err))
}

func TestDecoded_Complete(t *testing.T) {
	tests := []struct {
		name     string
		head     string
		complete bool
	}{
		{"GET", "GET / HTTP/1.1\r\n\r\n", true},
		{"POST without length", "POST / HTTP/1.1\r\nHost: a\r\n\r\n", true},
		{"POST zero length", "POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\n", true},
		{"POST with length", "POST / HTTP/1.1\r\nContent-Length: 3\r\n\r\n", false},
		{"POST chunked", "POST / HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n", false},
		{"POST bad length", "POST / HTTP/1.1\r\nContent-Length: x\r\n\r\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			conn := &fakeConn{id: 1}
			decoded, _ := feed(t, p, conn, []byte(tt.head))
			require.Len(t, decoded, 2)
			assert.Equal(t, PhaseHeaders, decoded[1].Phase)
			assert.Equal(t, tt.complete, decoded[1].Complete())
		})
	}
}
