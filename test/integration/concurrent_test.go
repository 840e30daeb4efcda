package integration

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albertbausili/streamhttp/pkg/streamhttp"
)

// TestConcurrentRequests tests many clients sharing the event loops
func TestConcurrentRequests(t *testing.T) {
	var counter int32
	addr := startServer(t, streamhttp.HandlerFunc(func(ctx *streamhttp.Context) error {
		atomic.AddInt32(&counter, 1)
		return ctx.String(200, "%s", ctx.BodyBytes())
	}), nil)

	client := &http.Client{
		Timeout:   5 * time.Second,
		Transport: &http.Transport{MaxIdleConnsPerHost: 8},
	}

	const numRequests = 50
	var wg sync.WaitGroup
	errs := make(chan error, numRequests)

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			payload := fmt.Sprintf("request-%d", id)
			resp, err := client.Post(fmt.Sprintf("http://%s/echo", addr), "text/plain", strings.NewReader(payload))
			if err != nil {
				errs <- fmt.Errorf("request %d failed: %w", id, err)
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != 200 || string(body) != payload {
				errs <- fmt.Errorf("request %d: got %d %q", id, resp.StatusCode, body)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if got := atomic.LoadInt32(&counter); got != numRequests {
		t.Errorf("Expected %d handled requests, got %d", numRequests, got)
	}
}

// TestMaxConnections tests that connections past the limit get a 503
func TestMaxConnections(t *testing.T) {
	server, addr := runServer(t, echoHandler(), func(c *streamhttp.Config) {
		c.MaxConnections = 1
	})

	// the readiness probe may still be closing
	deadline := time.Now().Add(2 * time.Second)
	for server.ActiveConnections() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	first := dial(t, addr)
	if _, err := io.WriteString(first, "GET /held HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	buf := make([]byte, 12)
	if _, err := io.ReadFull(first, buf); err != nil || string(buf) != "HTTP/1.1 200" {
		t.Fatalf("Expected first connection to be served, got %q (%v)", buf, err)
	}
	if got := server.ActiveConnections(); got != 1 {
		t.Fatalf("Expected 1 active connection, got %d", got)
	}

	second := dial(t, addr)
	got := readAllUntilClose(t, second)
	if !strings.HasPrefix(got, "HTTP/1.1 503 Service Unavailable\r\n") {
		t.Errorf("Expected 503 for the second connection, got %q", got)
	}
}
