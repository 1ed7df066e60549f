package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Service, e.StatusCode, e.Body)
}

// countsAsFailure reports whether err says something about the service's
// health. Client errors and cancellations do not.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

// Options configure a Client.
type Options struct {
	Timeout          time.Duration
	RatePerSecond    float64
	Burst            int
	FailureThreshold uint32
	SuccessThreshold uint32
	OpenTimeout      time.Duration
}

// DefaultOptions are used for any zero field.
var DefaultOptions = Options{
	Timeout:          15 * time.Second,
	RatePerSecond:    10,
	Burst:            5,
	FailureThreshold: 5,
	SuccessThreshold: 2,
	OpenTimeout:      30 * time.Second,
}

// Client calls one JSON REST service with throttling and a circuit breaker.
type Client struct {
	service string
	http    *http.Client
	limiter *rate.Limiter
	breaker *Breaker
	health  *Health
	logger  *logrus.Logger
}

// NewClient creates a client for service. health may be shared across clients.
func NewClient(service string, opts Options, health *Health, logger *logrus.Logger) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	if opts.RatePerSecond == 0 {
		opts.RatePerSecond = DefaultOptions.RatePerSecond
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultOptions.Burst
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = DefaultOptions.FailureThreshold
	}
	if opts.SuccessThreshold == 0 {
		opts.SuccessThreshold = DefaultOptions.SuccessThreshold
	}
	if opts.OpenTimeout == 0 {
		opts.OpenTimeout = DefaultOptions.OpenTimeout
	}
	if health == nil {
		health = NewHealth()
	}

	return &Client{
		service: service,
		http:    &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		breaker: NewBreaker(service, opts.FailureThreshold, opts.SuccessThreshold, opts.OpenTimeout, logger),
		health:  health,
		logger:  logger,
	}
}

// Service returns the name the client reports under.
func (c *Client) Service() string {
	return c.service
}

// Do sends a JSON request and decodes a JSON response into out. body and
// out may be nil.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", c.service, err)
	}

	start := time.Now()
	err := c.breaker.Execute(func() error {
		return c.do(ctx, method, url, headers, body, out)
	})
	c.health.setBreaker(c.service, c.breaker.State())

	if err != nil {
		if countsAsFailure(err) {
			c.health.RecordError(c.service, err)
		}
		c.logger.WithError(err).WithFields(logrus.Fields{
			"service": c.service,
			"method":  method,
		}).Warn("Upstream request failed")
		return err
	}

	c.health.RecordSuccess(c.service, time.Since(start))
	return nil
}

func (c *Client) do(ctx context.Context, method, url string, headers map[string]string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", c.service, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Service: c.service, StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.service, err)
	}
	return nil
}
