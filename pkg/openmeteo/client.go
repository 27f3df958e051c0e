// Package openmeteo provides a client for the Open-Meteo historical weather archive API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client defines the Open-Meteo archive operations.
type Client interface {
	// HourlyArchive fetches the hourly weather series for a location and
	// closed date range [start, end].
	HourlyArchive(ctx context.Context, lat, lon float64, start, end time.Time) (*HourlySeries, error)
}

// HourlySeries is a parsed hourly weather series. All slices have equal
// length; missing feed values are NaN.
type HourlySeries struct {
	Times       []time.Time
	Rain        []float64 // mm
	Snowfall    []float64 // cm
	Temperature []float64 // apparent temperature, Celsius
	WindSpeed   []float64 // km/h at 10m
}

// archiveResponse mirrors the API payload shape.
type archiveResponse struct {
	Hourly struct {
		Time                []string   `json:"time"`
		Rain                []*float64 `json:"rain"`
		Snowfall            []*float64 `json:"snowfall"`
		ApparentTemperature []*float64 `json:"apparent_temperature"`
		WindSpeed10m        []*float64 `json:"wind_speed_10m"`
	} `json:"hourly"`
}

// HTTPClient implements Client against the live archive API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*HTTPClient)

// WithBaseURL overrides the API base URL (primarily for tests).
func WithBaseURL(u string) Option {
	return func(c *HTTPClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) {
		c.httpClient.Timeout = d
	}
}

// NewClient creates an Open-Meteo archive client.
func NewClient(opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL:    "https://archive-api.open-meteo.com/v1",
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// hourlyLayout is the naive timestamp format the API returns.
const hourlyLayout = "2006-01-02T15:04"

// HourlyArchive fetches rain, snowfall, apparent temperature and wind speed
// for the given location and date range. Timestamps come back timezone-naive
// at hourly resolution and are parsed as UTC so they join exactly against
// normalized counter timestamps.
func (c *HTTPClient) HourlyArchive(ctx context.Context, lat, lon float64, start, end time.Time) (*HourlySeries, error) {
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", lat))
	q.Set("longitude", fmt.Sprintf("%.4f", lon))
	q.Set("start_date", start.Format("2006-01-02"))
	q.Set("end_date", end.Format("2006-01-02"))
	q.Set("hourly", "rain,snowfall,apparent_temperature,wind_speed_10m")

	reqURL := fmt.Sprintf("%s/archive?%s", c.baseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "openmeteo: create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openmeteo: request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, eris.Errorf("openmeteo: status %d: %s", resp.StatusCode, string(body))
	}

	var payload archiveResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, eris.Wrap(err, "openmeteo: decode response")
	}

	return parseSeries(&payload)
}

func parseSeries(payload *archiveResponse) (*HourlySeries, error) {
	h := payload.Hourly
	n := len(h.Time)
	s := &HourlySeries{
		Times:       make([]time.Time, 0, n),
		Rain:        make([]float64, 0, n),
		Snowfall:    make([]float64, 0, n),
		Temperature: make([]float64, 0, n),
		WindSpeed:   make([]float64, 0, n),
	}

	for i, raw := range h.Time {
		ts, err := time.ParseInLocation(hourlyLayout, raw, time.UTC)
		if err != nil {
			return nil, eris.Wrapf(err, "openmeteo: parse timestamp %q", raw)
		}
		s.Times = append(s.Times, ts)
		s.Rain = append(s.Rain, deref(h.Rain, i))
		s.Snowfall = append(s.Snowfall, deref(h.Snowfall, i))
		s.Temperature = append(s.Temperature, deref(h.ApparentTemperature, i))
		s.WindSpeed = append(s.WindSpeed, deref(h.WindSpeed10m, i))
	}

	return s, nil
}

// deref reads an optional value from a column, mapping null and ragged feed
// edges to NaN.
func deref(col []*float64, i int) float64 {
	if i >= len(col) || col[i] == nil {
		return math.NaN()
	}
	return *col[i]
}

// Len returns the number of observations in the series.
func (s *HourlySeries) Len() int {
	return len(s.Times)
}
