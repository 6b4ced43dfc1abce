// Package governor wraps outbound calls to the remote API with response
// caching, in-flight deduplication, and rate-limit-aware retry. Every
// network call the subsystem makes goes through a Governor so the
// backend never sees redundant or storming traffic.
package governor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrRateLimited is returned when retries against a rate-limited
// endpoint are exhausted.
var ErrRateLimited = errors.New("rate limited")

// HTTPError is a non-2xx response from the remote API.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("remote returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("remote returned %s", e.Status)
}

// Config controls caching and retry behavior.
type Config struct {
	// DefaultTTL applies to GET responses whose URL matches no entry in
	// EndpointTTLs.
	DefaultTTL time.Duration

	// EndpointTTLs maps URL path prefixes to cache TTLs. The longest
	// matching prefix wins. Volatile endpoints get short TTLs,
	// slow-changing listings longer ones.
	EndpointTTLs map[string]time.Duration

	// MaxRetries bounds the 429 retry loop (total attempts, not
	// re-attempts).
	MaxRetries int

	// BackoffBase and BackoffCap shape the retry delay:
	// min(base << attempt, cap) plus ±10% jitter.
	BackoffBase time.Duration
	BackoffCap  time.Duration

	// RetryAfterFallback is the assumed wait when a 429 carries no
	// Retry-After header.
	RetryAfterFallback time.Duration

	// InflightStaleAfter is how long a pending request may sit before a
	// new caller abandons it and issues a fresh one.
	InflightStaleAfter time.Duration

	// HTTPTimeout bounds each individual request.
	HTTPTimeout time.Duration
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 60 * time.Second,
		EndpointTTLs: map[string]time.Duration{
			"/api/notifications": 15 * time.Second,
			"/api/groups":        5 * time.Minute,
			"/api/quizzes":       2 * time.Minute,
			"/api/flashcards":    2 * time.Minute,
		},
		MaxRetries:         3,
		BackoffBase:        500 * time.Millisecond,
		BackoffCap:         8 * time.Second,
		RetryAfterFallback: 5 * time.Second,
		InflightStaleAfter: 5 * time.Second,
		HTTPTimeout:        30 * time.Second,
	}
}

// inflightCall is a GET currently on the wire. Later callers with the
// same cache key wait on done and share the result.
type inflightCall struct {
	done    chan struct{}
	started time.Time
	value   []byte
	err     error
}

// Governor mediates all traffic to the remote API. Construct one per
// process and share it; all methods are safe for concurrent use.
type Governor struct {
	config Config
	client *http.Client
	cache  *responseCache
	logger *log.Logger

	// Online reports current connectivity. A 401 received while
	// offline is ignored as untrustworthy.
	Online func() bool

	// OnAuthFailure is invoked when a 401 arrives while online. The
	// caller uses it to clear stored credentials.
	OnAuthFailure func()

	mu         sync.Mutex
	inflight   map[string]*inflightCall
	rateLimits map[string]time.Time

	// swappable in tests
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a governor with the given config.
func New(config Config, logger *log.Logger) *Governor {
	if logger == nil {
		logger = log.New(log.Writer(), "[governor] ", log.LstdFlags)
	}
	return &Governor{
		config:     config,
		client:     &http.Client{Timeout: config.HTTPTimeout},
		cache:      newResponseCache(),
		logger:     logger,
		Online:     func() bool { return true },
		inflight:   make(map[string]*inflightCall),
		rateLimits: make(map[string]time.Time),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CacheKey builds the deterministic cache key for a request. Mutating
// methods fold the body in so distinct payloads to the same URL don't
// collide.
func CacheKey(method, rawURL string, body []byte) string {
	if method == http.MethodGet || len(body) == 0 {
		return method + " " + rawURL
	}
	return method + " " + rawURL + " " + string(body)
}

// CacheSize reports the number of live cache entries. Expired entries
// that have not been read yet still count; they fall out on first read.
func (g *Governor) CacheSize() int {
	return g.cache.size()
}

// GetCached returns the cached response for a key, if present and
// fresh. An expired entry is removed and reported as a miss.
func (g *Governor) GetCached(key string) ([]byte, bool) {
	return g.cache.get(key, g.now())
}

// SetCached stores a response under a key with an explicit TTL.
func (g *Governor) SetCached(key string, value []byte, ttl time.Duration) {
	g.cache.set(key, value, ttl, g.now())
}

// InvalidateCache drops all cached responses.
func (g *Governor) InvalidateCache() {
	g.cache.clear()
}

// ttlFor picks the TTL for a URL from the endpoint table, longest
// matching path prefix first.
func (g *Governor) ttlFor(rawURL string) time.Duration {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		path = u.Path
	}

	best := ""
	ttl := g.config.DefaultTTL
	for prefix, t := range g.config.EndpointTTLs {
		if strings.HasPrefix(path, prefix) && len(prefix) > len(best) {
			best = prefix
			ttl = t
		}
	}
	return ttl
}

// IsRateLimited reports whether a key is inside a 429 not-before
// window.
func (g *Governor) IsRateLimited(key string) bool {
	return g.WaitTime(key) > 0
}

// WaitTime returns how long until a rate-limited key may be retried, or
// zero if it is not limited.
func (g *Governor) WaitTime(key string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	notBefore, ok := g.rateLimits[key]
	if !ok {
		return 0
	}
	wait := notBefore.Sub(g.now())
	if wait <= 0 {
		delete(g.rateLimits, key)
		return 0
	}
	return wait
}

func (g *Governor) recordRateLimit(key string, resp *http.Response) {
	delay := g.config.RetryAfterFallback
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			delay = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(g.now()); d > 0 {
				delay = d
			}
		}
	}

	g.mu.Lock()
	g.rateLimits[key] = g.now().Add(delay)
	g.mu.Unlock()

	g.logger.Printf("rate limited on %s, retry after %s", key, delay)
}

// backoffDelay computes the wait before retry number attempt (0-based):
// min(base << attempt, cap) with ±10% jitter.
func (g *Governor) backoffDelay(attempt int) time.Duration {
	delay := g.config.BackoffBase << uint(attempt)
	if delay > g.config.BackoffCap || delay <= 0 {
		delay = g.config.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/5+1)) - delay/10
	return delay + jitter
}

// Get issues a GET through the cache and the in-flight table. A fresh
// cached response short-circuits the network entirely; an identical
// request already on the wire is joined rather than duplicated.
func (g *Governor) Get(ctx context.Context, rawURL, token string) ([]byte, error) {
	key := CacheKey(http.MethodGet, rawURL, nil)

	if value, ok := g.cache.get(key, g.now()); ok {
		return value, nil
	}

	g.mu.Lock()
	if call, ok := g.inflight[key]; ok {
		if g.now().Sub(call.started) < g.config.InflightStaleAfter {
			g.mu.Unlock()
			select {
			case <-call.done:
				return call.value, call.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		// The pending request has been stuck too long; abandon it and
		// issue our own.
		delete(g.inflight, key)
	}
	call := &inflightCall{done: make(chan struct{}), started: g.now()}
	g.inflight[key] = call
	g.mu.Unlock()

	value, err := g.do(ctx, http.MethodGet, rawURL, token, nil, nil)
	if err == nil {
		g.cache.set(key, value, g.ttlFor(rawURL), g.now())
	}

	call.value, call.err = value, err
	close(call.done)

	g.mu.Lock()
	if g.inflight[key] == call {
		delete(g.inflight, key)
	}
	g.mu.Unlock()

	return value, err
}

// Post issues a POST. Responses are never cached. Extra headers (such
// as Idempotency-Key) are passed through verbatim.
func (g *Governor) Post(ctx context.Context, rawURL, token string, body []byte, headers map[string]string) ([]byte, error) {
	return g.do(ctx, http.MethodPost, rawURL, token, body, headers)
}

// do runs a request with the 429 retry loop. Only rate-limit responses
// are retried; every other failure is surfaced immediately.
func (g *Governor) do(ctx context.Context, method, rawURL, token string, body []byte, headers map[string]string) ([]byte, error) {
	key := CacheKey(method, rawURL, body)

	attempts := g.config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := g.backoffDelay(attempt - 1)
			if wait := g.WaitTime(key); wait > delay {
				delay = wait
			}
			g.logger.Printf("retrying %s %s in %s (attempt %d/%d)",
				method, rawURL, delay, attempt+1, attempts)
			if err := g.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		value, err := g.doOnce(ctx, method, rawURL, token, body, headers)
		if err == nil {
			return value, nil
		}
		lastErr = err

		var httpErr *HTTPError
		if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests {
			return nil, err
		}
	}

	return nil, fmt.Errorf("%s %s: %w: %w", method, rawURL, ErrRateLimited, lastErr)
}

func (g *Governor) doOnce(ctx context.Context, method, rawURL, token string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		g.recordRateLimit(CacheKey(method, rawURL, body), resp)
	case resp.StatusCode == http.StatusUnauthorized:
		g.handleUnauthorized()
	}

	return nil, &HTTPError{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(data)),
	}
}

// handleUnauthorized reacts to a 401. While offline the response is
// untrustworthy (a captive portal or dead proxy can fake one), so
// credentials are left alone.
func (g *Governor) handleUnauthorized() {
	if g.Online != nil && !g.Online() {
		g.logger.Printf("ignoring 401 while offline")
		return
	}
	g.logger.Printf("authentication failure, clearing session")
	if g.OnAuthFailure != nil {
		g.OnAuthFailure()
	}
}
