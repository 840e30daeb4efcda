// Package main provides incremental load testing for the streamhttp server.
// Clients are added step by step while each one keeps a connection alive and
// sends requests in a loop, so dropped connections and 503 responses show up
// as the client count grows.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/albertbausili/streamhttp/pkg/streamhttp"
)

// LoadTestConfig defines the configuration for incremental load tests
type LoadTestConfig struct {
	ServerAddr     string
	MaxConnections uint32
	BodySize       int

	RampUpInterval time.Duration // Time between adding new clients
	ClientsPerStep int           // Number of clients to add each step
	TestDuration   time.Duration // Total test duration
	RequestTimeout time.Duration // Request timeout
	RequestDelay   time.Duration // Delay between requests per client
}

// StepResult contains the results for a single step
type StepResult struct {
	StepNumber        int
	ClientCount       int
	Requests          int64
	Failed            int64
	RequestsPerSecond float64
}

// LoadTestResult contains the results of an incremental load test
type LoadTestResult struct {
	TestDuration       time.Duration
	MaxClients         int
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	StatusCodes        map[int]int64
	Steps              []StepResult
}

// LoadTestRunner manages the incremental load test
type LoadTestRunner struct {
	config  LoadTestConfig
	logger  *zap.Logger
	server  *streamhttp.Server
	client  *http.Client
	payload string

	wg sync.WaitGroup
	mu sync.Mutex

	requests   atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	statuses   map[int]int64
	steps      []StepResult
}

// rrTransport dispatches requests across several transports, each with its
// own connection pool.
type rrTransport struct {
	transports []http.RoundTripper
	idx        atomic.Uint64
}

func (r *rrTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	i := r.idx.Add(1)
	return r.transports[i%uint64(len(r.transports))].RoundTrip(req)
}

// NewLoadTestRunner creates a new load test runner
func NewLoadTestRunner(config LoadTestConfig, logger *zap.Logger) *LoadTestRunner {
	trs := make([]http.RoundTripper, 0, 4)
	for i := 0; i < 4; i++ {
		trs = append(trs, &http.Transport{
			MaxIdleConns:        10000,
			MaxIdleConnsPerHost: 10000,
			MaxConnsPerHost:     10000,
			DisableCompression:  true,
			IdleConnTimeout:     90 * time.Second,
		})
	}
	return &LoadTestRunner{
		config:   config,
		logger:   logger,
		client:   &http.Client{Timeout: config.RequestTimeout, Transport: &rrTransport{transports: trs}},
		payload:  strings.Repeat("x", config.BodySize),
		statuses: make(map[int]int64),
	}
}

// StartServer starts an in-process echo server.
func (r *LoadTestRunner) StartServer() error {
	config := streamhttp.DefaultConfig()
	config.Addr = r.config.ServerAddr
	config.MaxConnections = r.config.MaxConnections
	config.Logger = r.logger.Named("server")

	r.server = streamhttp.New(config)
	return r.server.ListenAndServe(streamhttp.HandlerFunc(func(ctx *streamhttp.Context) error {
		return ctx.Data(200, "application/octet-stream", ctx.BodyBytes())
	}))
}

// StopServer stops the in-process server.
func (r *LoadTestRunner) StopServer() error {
	if r.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.server.Stop(ctx)
}

// Run ramps up clients until the test duration elapses.
func (r *LoadTestRunner) Run(ctx context.Context) *LoadTestResult {
	ctx, cancel := context.WithTimeout(ctx, r.config.TestDuration)
	defer cancel()

	start := time.Now()
	ticker := time.NewTicker(r.config.RampUpInterval)
	defer ticker.Stop()

	clients := 0
	step := 0
	lastRequests := int64(0)
	lastTick := start

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case now := <-ticker.C:
			step++
			for i := 0; i < r.config.ClientsPerStep; i++ {
				r.wg.Add(1)
				go r.runClient(ctx)
			}
			clients += r.config.ClientsPerStep

			total := r.requests.Load()
			elapsed := now.Sub(lastTick).Seconds()
			r.steps = append(r.steps, StepResult{
				StepNumber:        step,
				ClientCount:       clients,
				Requests:          total - lastRequests,
				Failed:            r.failed.Load(),
				RequestsPerSecond: float64(total-lastRequests) / elapsed,
			})
			lastRequests, lastTick = total, now
		}
	}
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	return &LoadTestResult{
		TestDuration:       time.Since(start),
		MaxClients:         clients,
		TotalRequests:      r.requests.Load(),
		SuccessfulRequests: r.successful.Load(),
		FailedRequests:     r.failed.Load(),
		StatusCodes:        r.statuses,
		Steps:              r.steps,
	}
}

func (r *LoadTestRunner) runClient(ctx context.Context) {
	defer r.wg.Done()
	url := fmt.Sprintf("http://%s/load", r.config.ServerAddr)

	for ctx.Err() == nil {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(r.payload))
		if err != nil {
			r.logger.Error("build request", zap.Error(err))
			return
		}
		resp, err := r.client.Do(req)
		r.requests.Add(1)
		if err != nil {
			if ctx.Err() == nil {
				r.failed.Add(1)
				r.logger.Debug("request failed", zap.Error(err))
			}
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		r.mu.Lock()
		r.statuses[resp.StatusCode]++
		r.mu.Unlock()
		if resp.StatusCode == 200 && len(body) == len(r.payload) {
			r.successful.Add(1)
		} else {
			r.failed.Add(1)
		}

		select {
		case <-ctx.Done():
		case <-time.After(r.config.RequestDelay):
		}
	}
}

// PrintResults writes a summary of result to stdout.
func PrintResults(result *LoadTestResult) {
	fmt.Println("=== Incremental load test ===")
	fmt.Printf("Duration:    %v\n", result.TestDuration.Round(time.Millisecond))
	fmt.Printf("Max clients: %d\n", result.MaxClients)
	fmt.Printf("Requests:    %d (ok %d, failed %d)\n",
		result.TotalRequests, result.SuccessfulRequests, result.FailedRequests)

	codes := make([]int, 0, len(result.StatusCodes))
	for code := range result.StatusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, result.StatusCodes[code])
	}

	var peak StepResult
	for _, s := range result.Steps {
		if s.RequestsPerSecond > peak.RequestsPerSecond {
			peak = s
		}
	}
	fmt.Printf("Peak: %.0f req/s at %d clients (step %d)\n", peak.RequestsPerSecond, peak.ClientCount, peak.StepNumber)
}

func main() {
	var (
		serverAddr     = flag.String("addr", "127.0.0.1:8080", "Server address")
		maxConnections = flag.Uint("max-conn", 10000, "Server max connections")
		bodySize       = flag.Int("body", 64, "Request body size in bytes")
		rampUpInterval = flag.Duration("rampup", 25*time.Millisecond, "Time between adding new clients")
		clientsPerStep = flag.Int("clients", 1, "Number of clients to add each step")
		testDuration   = flag.Duration("duration", 30*time.Second, "Test duration")
		requestTimeout = flag.Duration("timeout", 3*time.Second, "Request timeout")
		requestDelay   = flag.Duration("delay", 2*time.Millisecond, "Delay between requests per client")
		verbose        = flag.Bool("verbose", false, "Verbose output")
	)
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	runner := NewLoadTestRunner(LoadTestConfig{
		ServerAddr:     *serverAddr,
		MaxConnections: uint32(*maxConnections), //nolint:gosec // flag value is bounded by the operator
		BodySize:       *bodySize,
		RampUpInterval: *rampUpInterval,
		ClientsPerStep: *clientsPerStep,
		TestDuration:   *testDuration,
		RequestTimeout: *requestTimeout,
		RequestDelay:   *requestDelay,
	}, logger)

	if err := runner.StartServer(); err != nil {
		fmt.Fprintf(os.Stderr, "start server: %v\n", err)
		os.Exit(1)
	}
	result := runner.Run(context.Background())
	if err := runner.StopServer(); err != nil {
		logger.Warn("stop server", zap.Error(err))
	}

	PrintResults(result)
	if result.FailedRequests > 0 {
		os.Exit(1)
	}
}
