package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without calling the upstream while its breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrBodyTooLarge is returned when a payload exceeds MaxBodyBytes.
	ErrBodyTooLarge = errors.New("response body too large")
)

// StatusError is returned for a non-2xx upstream answer.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream answered %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether retrying might get a different answer.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ClientConfig configures a Client for one upstream host.
type ClientConfig struct {
	// Name identifies the upstream in logs, the breaker and the health registry.
	Name string

	// Timeout bounds each individual attempt. Default: 5 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64

	// InitialInterval is the first backoff delay. Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay. Default: 2 seconds
	MaxInterval time.Duration

	// MaxBodyBytes caps payload size. Default: 1 MiB
	MaxBodyBytes int64

	// UserAgent is sent with every request.
	UserAgent string

	// Breaker overrides DefaultBreakerConfig(Name).
	Breaker *BreakerConfig

	// Health, when set, has the client registered on construction and
	// receives the outcome of every call.
	Health *HealthRegistry

	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper

	Logger zerolog.Logger
}

// DefaultClientConfig returns the settings used for station hosts.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxBodyBytes:    1 << 20,
		UserAgent:       "windspot/1.0",
		Breaker:         &breaker,
		Logger:          zerolog.Nop(),
	}
}

// Client fetches small text payloads from one upstream host.
type Client struct {
	name       string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[[]byte]
	health     *HealthRegistry
	logger     zerolog.Logger
	cfg        ClientConfig
}

// NewClient creates a client and registers it with cfg.Health if set.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
	}

	c := &Client{
		name: cfg.Name,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		// Client errors mean the host is up; only transport failures and
		// 5xx answers count against the breaker.
		breaker: newBreaker[[]byte](breakerCfg, func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return !se.Temporary()
			}
			return err == nil
		}, callerCanceled),
		health: cfg.Health,
		logger: cfg.Logger.With().Str("upstream", cfg.Name).Logger(),
		cfg:    cfg,
	}

	if c.health != nil {
		c.health.Register(c.name, c)
	}
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// Get fetches url and returns the body of a 2xx answer.
// Transport errors and temporary status codes are retried with exponential
// backoff until MaxRetries or ctx runs out.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialInterval
	bo.MaxInterval = c.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.cfg.MaxRetries), ctx)

	operation := func() ([]byte, error) {
		body, err := c.breaker.Execute(func() ([]byte, error) {
			body, err := c.get(ctx, url)
			if err != nil && errors.Is(ctx.Err(), context.Canceled) {
				return nil, fmt.Errorf("%w: %v", context.Canceled, err)
			}
			return body, err
		})
		if err == nil {
			return body, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(ErrCircuitOpen)
		}
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, ErrBodyTooLarge) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Dur("retry_in", wait).Str("url", url).Msg("upstream call failed, retrying")
	}

	body, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		if callerCanceled(err) {
			c.logger.Debug().Err(err).Str("url", url).Msg("upstream call abandoned by caller")
			return nil, err
		}
		if c.health != nil {
			c.health.RecordFailure(c.name, err)
		}
		return nil, err
	}

	if c.health != nil {
		c.health.RecordSuccess(c.name)
	}
	return body, nil
}

// callerCanceled reports whether err comes from the caller giving up. Such calls
// say nothing about the upstream and are neither counted by the breaker nor
// recorded as health failures. Deadlines still count.
func callerCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "text/plain, */*")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	return body, nil
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}
