// Package clientraw reads Weather Display clientraw.txt files. It is
// registered as the fallback source by default.
package clientraw

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
const SourceName = "clientraw"

// Header is the fixed first token of every clientraw.txt file.
const Header = "12345"

// Field positions in the space-separated file.
const (
	fieldWindAvg = 1
	fieldGust    = 2
	fieldDir     = 3
	fieldTemp    = 4
	fieldHour    = 29
	fieldMinute  = 30
	fieldSecond  = 31
	fieldDate    = 74
)

// ClientConfig holds configuration for the clientraw client.
type ClientConfig struct {
	// BaseURL is the host serving {remoteId}/clientraw.txt (required).
	BaseURL string

	// Stations maps station ids to the remote directory on the host.
	Stations map[int]string

	// Primary registers the source as a primary instead of a fallback.
	Primary bool

	// Timeout overrides the orchestrator's default fetch timeout when positive.
	Timeout time.Duration

	// HTTPClient is the resilient client to use (optional).
	HTTPClient *resilience.Client

	Logger zerolog.Logger
}

// Client implements conditions.Source over clientraw.txt files.
type Client struct {
	baseURL    string
	stations   map[int]string
	primary    bool
	timeout    time.Duration
	httpClient *resilience.Client
	logger     zerolog.Logger
}

var _ conditions.Source = (*Client)(nil)

// NewClient creates a new clientraw client.
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
		primary:    cfg.Primary,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the source name.
func (c *Client) Name() string { return SourceName }

// IsFallback reports the configured role. clientraw is a fallback unless Primary is set.
func (c *Client) IsFallback() bool { return !c.primary }

// Timeout returns the configured fetch timeout, or zero for the default.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Matches reports whether stationID has a remote directory.
func (c *Client) Matches(stationID int) bool {
	_, ok := c.stations[stationID]
	return ok
}

// Fetch downloads and parses clientraw.txt for stationID.
func (c *Client) Fetch(ctx context.Context, stationID int) (*conditions.LiveConditions, error) {
	remote, ok := c.stations[stationID]
	if !ok {
		return nil, fmt.Errorf("%s station %d: %w", SourceName, stationID, conditions.ErrStationNotSupported)
	}

	body, err := c.httpClient.Get(ctx, c.baseURL+"/"+url.PathEscape(remote)+"/clientraw.txt")
	if err != nil {
		var se *resilience.StatusError
		if errors.As(err, &se) {
			return nil, fmt.Errorf("%s station %d: %w: %d", SourceName, stationID, conditions.ErrUnexpectedStatus, se.StatusCode)
		}
		return nil, fmt.Errorf("%s station %d: %w", SourceName, stationID, err)
	}

	reading, err := Parse(string(body))
	if err != nil {
		c.logger.Debug().Err(err).Int("station_id", stationID).Str("remote_id", remote).Msg("unreadable clientraw")
		return nil, fmt.Errorf("%s station %d: %w", SourceName, stationID, err)
	}
	return reading, nil
}

// Parse reads a clientraw.txt payload. The timestamp is assembled as
// "DD/MM/YY HH:MM:SS" from the station's own date and time fields.
func Parse(payload string) (*conditions.LiveConditions, error) {
	fields := strings.Fields(payload)
	if len(fields) == 0 {
		return nil, conditions.ErrEmptyPayload
	}
	if fields[0] != Header {
		return nil, fmt.Errorf("%w: header %q", conditions.ErrMalformedPayload, fields[0])
	}
	if len(fields) <= fieldDate {
		return nil, fmt.Errorf("%w: %d fields, want at least %d", conditions.ErrMalformedPayload, len(fields), fieldDate+1)
	}

	var values [4]float64
	for i, pos := range []int{fieldWindAvg, fieldGust, fieldDir, fieldTemp} {
		v, err := strconv.ParseFloat(fields[pos], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q", conditions.ErrMalformedPayload, pos, fields[pos])
		}
		values[i] = v
	}

	var clock [3]int
	for i, pos := range []int{fieldHour, fieldMinute, fieldSecond} {
		v, err := strconv.Atoi(fields[pos])
		if err != nil {
			return nil, fmt.Errorf("%w: field %d %q", conditions.ErrMalformedPayload, pos, fields[pos])
		}
		clock[i] = v
	}

	return &conditions.LiveConditions{
		Timestamp:     fmt.Sprintf("%s %02d:%02d:%02d", fields[fieldDate], clock[0], clock[1], clock[2]),
		WindSpeed:     conditions.RoundHalfUp(values[0]),
		GustSpeed:     conditions.RoundHalfUp(values[1]),
		WindDirection: conditions.DirectionFromDegrees(values[2]),
		Temperature:   conditions.RoundHalfUp(values[3]),
	}, nil
}
