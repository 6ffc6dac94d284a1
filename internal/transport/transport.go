// Package transport performs relay calls for the device: reads are served
// from the response cache within a caller-supplied freshness window, writes
// issued offline are handed to the mutation queue, and transient failures
// are retried with exponential backoff.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hearthkin/questlink/internal/cache"
	"github.com/hearthkin/questlink/internal/model"
)

const (
	// retryAttempts is the number of extra attempts after the first call.
	retryAttempts = 2
	// retryBase is the first backoff interval; it doubles per attempt.
	retryBase = 120 * time.Millisecond
)

// Queuer accepts a write call for later replay.
type Queuer interface {
	Enqueue(method, path string, body []byte, headers map[string]string) (*model.QueueEntry, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *cache.Cache
	logger     *slog.Logger

	mu     sync.Mutex
	queuer Queuer

	online   atomic.Bool
	onOnline atomic.Pointer[func()]
}

// New creates a relay client. The client starts in the online state; Probe
// or SetOnline adjust it.
func New(baseURL string, respCache *cache.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:  respCache,
		logger: logger,
	}
	c.online.Store(true)
	return c
}

// SetQueuer wires the offline mutation queue. Without one, offline writes
// fail instead of queueing.
func (c *Client) SetQueuer(q Queuer) {
	c.mu.Lock()
	c.queuer = q
	c.mu.Unlock()
}

// OnOnline registers the hook fired on an offline-to-online transition.
func (c *Client) OnOnline(fn func()) {
	c.onOnline.Store(&fn)
}

// Online reports the device's current connectivity state.
func (c *Client) Online() bool {
	return c.online.Load()
}

// SetOnline records a connectivity change. Coming back online fires the
// registered hook (queue flush).
func (c *Client) SetOnline(v bool) {
	was := c.online.Swap(v)
	if !was && v {
		if fn := c.onOnline.Load(); fn != nil {
			(*fn)()
		}
	}
}

// Probe checks relay reachability via the health endpoint and updates the
// online state accordingly.
func (c *Client) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/health", nil)
	if err != nil {
		c.SetOnline(false)
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.SetOnline(false)
		return false
	}
	resp.Body.Close()
	ok := resp.StatusCode == http.StatusOK
	c.SetOnline(ok)
	return ok
}

// InvalidateCache drops cached responses under the path prefix. Used after
// writes that change what the reads would return.
func (c *Client) InvalidateCache(prefix string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(prefix); err != nil {
		c.logger.Warn("cache invalidation failed", "prefix", prefix, "error", err)
	}
}

// Get performs a cached read. A freshFor window above zero serves an
// unexpired cached response without touching the network; a fresh response
// is cached for the same window.
func (c *Client) Get(ctx context.Context, path string, freshFor time.Duration, out any) error {
	if c.cache != nil && freshFor > 0 {
		if raw, ok, err := c.cache.Get(path); err == nil && ok {
			return json.Unmarshal(raw, out)
		}
	}
	if !c.Online() {
		return ErrOffline
	}

	raw, err := c.doRetry(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	if c.cache != nil && freshFor > 0 {
		if err := c.cache.Set(path, raw, freshFor); err != nil {
			c.logger.Warn("cache write failed", "path", path, "error", err)
		}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Post performs a write. While offline, a queueable write is persisted and
// ErrQueued is returned; when retries on transient failures run out, a
// queueable write likewise falls back to the queue.
func (c *Client) Post(ctx context.Context, path string, body any, out any, queueable bool) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	headers := map[string]string{"Content-Type": "application/json"}

	if !c.Online() {
		if queueable {
			return c.enqueue(http.MethodPost, path, payload, headers)
		}
		return ErrOffline
	}

	raw, err := c.doRetry(ctx, http.MethodPost, path, payload, headers)
	if err != nil {
		if queueable && IsTransient(err) {
			return c.enqueue(http.MethodPost, path, payload, headers)
		}
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// Send performs a single delivery attempt for a queued entry. The queue
// owns the retry budget, so no backoff happens here.
func (c *Client) Send(ctx context.Context, entry model.QueueEntry) error {
	_, err := c.do(ctx, entry.Method, entry.Path, entry.Body, entry.Headers)
	return err
}

func (c *Client) enqueue(method, path string, body []byte, headers map[string]string) error {
	c.mu.Lock()
	q := c.queuer
	c.mu.Unlock()
	if q == nil {
		return ErrOffline
	}
	if _, err := q.Enqueue(method, path, body, headers); err != nil {
		return fmt.Errorf("queue mutation: %w", err)
	}
	return ErrQueued
}

func (c *Client) doRetry(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	backoff := retry.WithMaxRetries(retryAttempts, retry.NewExponential(retryBase))
	var out []byte
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		out, err = c.do(ctx, method, path, body, headers)
		if err != nil && IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return out, err
}

// do performs one HTTP round trip and classifies the outcome.
func (c *Client) do(ctx context.Context, method, path string, body []byte, headers map[string]string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrConnection, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return raw, nil
	}

	var ae apiError
	if jsonErr := json.Unmarshal(raw, &ae); jsonErr == nil && ae.Kind != "" {
		if sentinel, ok := kindErrors[ae.Kind]; ok && resp.StatusCode < 500 {
			return nil, fmt.Errorf("%s: %w", ae.Error, sentinel)
		}
	}
	return nil, &StatusError{Code: resp.StatusCode, Message: ae.Error}
}
