// Copyright (c) 2025 H0llyW00dzZ All rights reserved.
//
// By accessing or using this software, you agree to be bound by the terms
// of the License Agreement, which you can find at LICENSE files.

package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/H0llyW00dzZ/ades-chain-validator/src/internal/helper/gc"
	"github.com/H0llyW00dzZ/ades-chain-validator/src/logger"
)

// ErrUnexpectedStatus is returned for responses outside the 2xx range.
var ErrUnexpectedStatus = errors.New("fetch: unexpected HTTP status")

// Loader performs bounded, retried and throttled HTTP requests.
//
// Thread Safety: Safe for concurrent use.
type Loader struct {
	cfg     *HTTPConfig
	client  *retryablehttp.Client
	limiter *rate.Limiter
	group   singleflight.Group
	log     logger.Logger
}

// NewLoader builds a Loader from cfg. A nil cfg uses [NewHTTPConfig] defaults
// and a nil log discards output.
func NewLoader(cfg *HTTPConfig, log logger.Logger) *Loader {
	if cfg == nil {
		cfg = NewHTTPConfig("dev")
	}
	log = logger.WithComponent(log, "fetch")

	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 100 * time.Millisecond
	client.RetryWaitMax = 2 * time.Second
	client.Logger = nil
	if cfg.Debug {
		client.Logger = log
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := max(cfg.Burst, 1)
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Loader{cfg: cfg, client: client, limiter: limiter, log: log}
}

// Config returns the configuration the loader was built with.
func (l *Loader) Config() *HTTPConfig { return l.cfg }

// Get downloads url. Concurrent calls for the same url share one request;
// every caller receives its own copy of the body.
//
// Parameters:
//   - ctx: Context for cancellation; also bounds the wait for a rate slot
//   - url: Absolute http or https URL
//
// Returns:
//   - []byte: Response body
//   - error: Transport error, [ErrUnexpectedStatus] or [gc.ErrBodyTooLarge]
func (l *Loader) Get(ctx context.Context, url string) ([]byte, error) {
	v, err, shared := l.group.Do(http.MethodGet+" "+url, func() (any, error) {
		return l.do(ctx, http.MethodGet, url, "", nil)
	})
	if err != nil {
		return nil, err
	}
	body := v.([]byte)
	if shared {
		body = bytes.Clone(body)
	}
	return body, nil
}

// Post sends body to url with the given content type and returns the
// response body.
func (l *Loader) Post(ctx context.Context, url, contentType string, body []byte) ([]byte, error) {
	return l.do(ctx, http.MethodPost, url, contentType, body)
}

func (l *Loader) do(ctx context.Context, method, url, contentType string, body []byte) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fetch: rate limit wait: %w", err)
	}

	var raw any
	if body != nil {
		raw = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, raw)
	if err != nil {
		return nil, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", l.cfg.GetUserAgent())
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, method, url, resp.StatusCode)
	}

	data, err := gc.ReadLimited(resp.Body, l.cfg.MaxResponseSize)
	if err != nil {
		return nil, fmt.Errorf("fetch: read %s: %w", url, err)
	}
	l.log.Printf("%s %s: %d bytes", method, url, len(data))
	return data, nil
}
