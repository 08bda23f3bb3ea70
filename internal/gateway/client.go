// Package gateway is the HTTP client for the query API that fronts Neo4j.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// FetchError is returned when a query result could not be obtained: the
// request failed, the API answered with a non-2xx status, or the circuit
// breaker is open.
type FetchError struct {
	Status  int
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("Network response was not ok: %d - %s", e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying later may succeed.
func (e *FetchError) Temporary() bool {
	return e.Status == 0 || e.Status >= 500
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// Breaker settings. The breaker opens once at least MinRequests were
	// seen in Interval and FailureRatio of them failed.
	MaxRequests  uint32
	Interval     time.Duration
	OpenTimeout  time.Duration
	FailureRatio float64
	MinRequests  uint32
}

// DefaultConfig returns client settings for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:      baseURL,
		Timeout:      30 * time.Second,
		MaxRequests:  5,
		Interval:     30 * time.Second,
		OpenTimeout:  60 * time.Second,
		FailureRatio: 0.8,
		MinRequests:  5,
	}
}

// Client fetches raw query results from the API gateway.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// New creates a gateway client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid gateway url %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gateway",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			var ferr *FetchError
			if errors.As(err, &ferr) {
				return !ferr.Temporary()
			}
			return err == nil
		},
	})
	return c, nil
}

// Fetch runs query against database. An empty query asks the API for its
// default query.
func (c *Client) Fetch(ctx context.Context, database, query string) ([]byte, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, database, query)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &FetchError{Message: "query service temporarily unavailable", Err: err}
		}
		return nil, err
	}
	return out.([]byte), nil
}

func (c *Client) do(ctx context.Context, database, query string) ([]byte, error) {
	endpoint := c.baseURL + "/neo4j/" + url.PathEscape(database)

	var req *http.Request
	var err error
	if query == "" {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	} else {
		body, merr := json.Marshal(map[string]string{"query": query})
		if merr != nil {
			return nil, fmt.Errorf("failed to encode query: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Message: "failed to read response", Err: err}
	}

	c.logger.Debug("Gateway response",
		zap.String("database", database),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Status: resp.StatusCode, Message: errorMessage(resp, data)}
	}
	return data, nil
}

// errorMessage prefers the API's {"error": "..."} body over the status text.
func errorMessage(resp *http.Response, body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return http.StatusText(resp.StatusCode)
}
