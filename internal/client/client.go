// Package client implements the HTTP client for the upstream Effect Patterns
// API. GET requests to pattern endpoints are served from a small bounded
// cache, and concurrent identical GETs are coalesced into a single upstream
// fetch. Failures are classified so callers can decide whether to retry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/effect-patterns/mcp-gateway/internal/cache"
)

const (
	// ProtocolVersion is advertised on every upstream request.
	ProtocolVersion = "2025-11-25"

	// RequestTimeout bounds a single upstream call.
	RequestTimeout = 10 * time.Second

	// DedupWindow is the time-to-share window for identical in-flight GETs.
	DedupWindow = 500 * time.Millisecond

	patternCacheSize = 100
	maxInFlight      = 500

	detailCacheTTL = 2 * time.Second
	listCacheTTL   = 5 * time.Second
)

// Result is a successful upstream response. Data is the response body with
// the top-level "data" member unwrapped when present; Raw is the body as
// received.
type Result struct {
	Status int
	Data   json.RawMessage
	Raw    json.RawMessage
}

// Client calls the upstream patterns API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	patterns   *cache.Cache[string, Result]
	flight     *inflightGroup

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// New creates a client for the given API base URL. apiKey may be empty.
func New(baseURL, apiKey string) *Client {
	transport := &http.Transport{
		MaxConnsPerHost:     50,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     10 * time.Second,
	}

	patterns, err := cache.New[string, Result](patternCacheSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(err)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Transport: transport},
		patterns:   patterns,
		flight:     newInflightGroup(DedupWindow, maxInFlight),
	}
}

// SetCacheMetrics wires hit/miss counters for the pattern cache.
func (c *Client) SetCacheMetrics(hits, misses prometheus.Counter) {
	c.cacheHits = hits
	c.cacheMisses = misses
}

// Get performs a GET against an API endpoint (path below /api, with query).
func (c *Client) Get(ctx context.Context, endpoint string) (*Result, error) {
	return c.Call(ctx, http.MethodGet, endpoint, nil)
}

// Post performs a POST with a JSON body against an API endpoint.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (*Result, error) {
	return c.Call(ctx, http.MethodPost, endpoint, body)
}

// Call performs an upstream request. Only GETs are deduplicated, and only
// GETs to pattern endpoints are cached.
func (c *Client) Call(ctx context.Context, method, endpoint string, body any) (*Result, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, &APIError{Message: fmt.Sprintf("failed to encode request body: %v", err)}
		}
	}

	key := method + ":" + endpoint + ":" + string(bodyBytes)
	cacheable := method == http.MethodGet && isPatternEndpoint(endpoint)

	if cacheable {
		if res, ok := c.patterns.Get(key); ok {
			if c.cacheHits != nil {
				c.cacheHits.Inc()
			}
			log.Debug().Str("endpoint", endpoint).Msg("pattern cache hit")
			return &res, nil
		}
		if c.cacheMisses != nil {
			c.cacheMisses.Inc()
		}
	}

	fetch := func() (*Result, error) {
		return c.fetch(ctx, method, endpoint, bodyBytes)
	}

	var res *Result
	var err error
	if method == http.MethodGet {
		res, err = c.flight.Do(key, fetch)
	} else {
		res, err = fetch()
	}
	if err != nil {
		return nil, err
	}

	if cacheable {
		c.patterns.Set(key, *res, cacheTTLFor(endpoint))
	}
	return res, nil
}

func (c *Client) fetch(ctx context.Context, method, endpoint string, body []byte) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	url := c.baseURL + "/api" + endpoint

	// Correlation ID for request tracing across the upstream boundary.
	correlationID := uuid.New().String()
	logger := log.With().
		Str("method", method).
		Str("endpoint", endpoint).
		Str("correlationId", correlationID).
		Logger()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, &APIError{Message: fmt.Sprintf("failed to build request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("MCP-Protocol-Version", ProtocolVersion)
	req.Header.Set("X-Correlation-ID", correlationID)
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		apiErr := classifyError(err)
		logger.Warn().
			Dur("duration", duration).
			Str("errorType", string(apiErr.Details.ErrorType)).
			Bool("retryable", apiErr.Details.Retryable).
			Msg("upstream request failed")
		return nil, apiErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyError(err)
	}

	logger.Debug().
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Msg("upstream request completed")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := strings.TrimSpace(string(raw))
		if message == "" {
			message = resp.Status
		}
		return nil, &APIError{Status: resp.StatusCode, Message: message}
	}

	return &Result{
		Status: resp.StatusCode,
		Data:   unwrapData(raw),
		Raw:    raw,
	}, nil
}

// unwrapData returns the top-level "data" member when the body is a JSON
// object carrying one, otherwise the body itself. Mirrors the upstream
// contract where responses are often enveloped as {"data": ...}.
func unwrapData(raw []byte) json.RawMessage {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if data, ok := envelope["data"]; ok {
			return data
		}
	}
	return raw
}

func isPatternEndpoint(endpoint string) bool {
	path := endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path == "/patterns" || strings.HasPrefix(path, "/patterns/")
}

// cacheTTLFor picks the TTL tier: 2s for detail lookups, 5s for list and
// search endpoints.
func cacheTTLFor(endpoint string) time.Duration {
	path := endpoint
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	rest := strings.TrimPrefix(path, "/patterns/")
	if rest != path && rest != "" && rest != "categories" && !strings.Contains(rest, "/") {
		return detailCacheTTL
	}
	return listCacheTTL
}
