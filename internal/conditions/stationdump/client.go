// Package stationdump reads the one-line text dumps published by station
// loggers. It is registered as the primary source by default.
package stationdump

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/windspot/windspot/internal/conditions"
	"github.com/windspot/windspot/internal/provider/resilience"
)

// SourceName identifies this source in bindings, logs and metrics.
const SourceName = "stationdump"

// minFields is date, time, wind, gust, direction, temperature.
const minFields = 6

// ClientConfig holds configuration for the station dump client.
type ClientConfig struct {
	// BaseURL is the dump host; the remote id is appended as a path segment (required).
	BaseURL string

	// Stations maps station ids to the remote id used by the dump host.
	Stations map[int]string

	// Fallback registers the source as a fallback instead of a primary.
	Fallback bool

	// Timeout overrides the orchestrator's default fetch timeout when positive.
	Timeout time.Duration

	// HTTPClient is the resilient client to use (optional).
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client implements conditions.Source over the dump host.
type Client struct {
	baseURL    string
	stations   map[int]string
	fallback   bool
	timeout    time.Duration
	httpClient *resilience.Client
	logger     zerolog.Logger
}

var _ conditions.Source = (*Client)(nil)

// NewClient creates a new station dump client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(SourceName))
	}

	stations := make(map[int]string, len(cfg.Stations))
	for id, remote := range cfg.Stations {
		stations[id] = remote
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		stations:   stations,
		fallback:   cfg.Fallback,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the source name.
func (c *Client) Name() string { return SourceName }

// IsFallback reports the configured role.
func (c *Client) IsFallback() bool { return c.fallback }

// Timeout returns the configured fetch timeout, or zero for the default.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Matches reports whether stationID has a remote id.
func (c *Client) Matches(stationID int) bool {
	_, ok := c.stations[stationID]
	return ok
}

// Fetch downloads and parses the current dump line for stationID.
func (c *Client) Fetch(ctx context.Context, stationID int) (*conditions.LiveConditions, error) {
	remote, ok := c.stations[stationID]
	if !ok {
		return nil, fmt.Errorf("%s station %d: %w", SourceName, stationID, conditions.ErrStationNotSupported)
	}

	body, err := c.httpClient.Get(ctx, c.baseURL+"/"+url.PathEscape(remote))
	if err != nil {
		var se *resilience.StatusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%s station %d: %w: %d", SourceName, stationID, conditions.ErrUnexpectedStatus, se.StatusCode)
		}
		return nil, fmt.Errorf("%s station %d: %w", SourceName, stationID, err)
	}

	reading, err := Parse(string(body))
	if err != nil {
		c.logger.Debug().Err(err).Int("station_id", stationID).Str("remote_id", remote).Msg("unreadable dump")
		return nil, fmt.Errorf("%s station %d: %w", SourceName, stationID, err)
	}
	return reading, nil
}

// Parse reads the first non-blank line of a dump:
//
//	2026-10-19 13:55:00 14.2 19.0 SW 15.5
//
// Speeds are knots, temperature Celsius. Tokens past the sixth are ignored.
func Parse(payload string) (*conditions.LiveConditions, error) {
	line := firstLine(payload)
	if line == "" {
		return nil, conditions.ErrEmptyPayload
	}

	fields := strings.Fields(line)
	if len(fields) < minFields {
		return nil, fmt.Errorf("%w: %d fields, want at least %d", conditions.ErrMalformedPayload, len(fields), minFields)
	}

	wind, err := number(fields[2], "wind")
	if err != nil {
		return nil, err
	}
	gust, err := number(fields[3], "gust")
	if err != nil {
		return nil, err
	}
	temp, err := number(fields[5], "temperature")
	if err != nil {
		return nil, err
	}

	return &conditions.LiveConditions{
		Timestamp:     fields[0] + " " + fields[1],
		WindSpeed:     conditions.RoundHalfUp(wind),
		GustSpeed:     conditions.RoundHalfUp(gust),
		WindDirection: conditions.NormalizeDirection(fields[4]),
		Temperature:   conditions.RoundHalfUp(temp),
	}, nil
}

func firstLine(payload string) string {
	for _, line := range strings.Split(payload, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func number(token, field string) (float64, error) {
	v, err := strconv.ParseFloat(strings.Replace(token, ",", ".", 1), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", conditions.ErrMalformedPayload, field, token)
	}
	return v, nil
}
