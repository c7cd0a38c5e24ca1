// Package openmeteo is a UV forecast provider backed by the Open-Meteo
// forecast API.
package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/sundose/sundose/internal/provider/resilience"
	"github.com/sundose/sundose/internal/uv"
)

const (
	// ProviderName identifies this forecast provider.
	ProviderName = "openmeteo"

	// DefaultBaseURL is the Open-Meteo API base URL.
	DefaultBaseURL = "https://api.open-meteo.com"

	// localTimeLayout is the format of local timestamps in responses.
	localTimeLayout = "2006-01-02T15:04"

	forecastDays = 2
)

// ClientConfig holds configuration for the Open-Meteo client.
type ClientConfig struct {
	// BaseURL is the API base URL (optional, defaults to Open-Meteo).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient *resilience.Client

	// Logger for client operations.
	Logger zerolog.Logger

	// Now returns the current time, used to stamp FetchedAt (default: time.Now).
	Now func() time.Time
}

// Client is an Open-Meteo forecast client.
type Client struct {
	baseURL    string
	httpClient *resilience.Client
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new Open-Meteo client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = resilience.NewClient(resilience.DefaultClientConfig(ProviderName))
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
		now:        now,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Forecast fetches two forecast days for the location.
func (c *Client) Forecast(ctx context.Context, loc uv.Location) (*uv.Forecast, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.forecastURL(loc), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr errorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Reason != "" {
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, apiErr.Reason)
		}
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	forecast, err := c.toForecast(&body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Float64("lat", loc.Lat).
		Float64("lon", loc.Lon).
		Int("hours", len(forecast.Hourly)).
		Str("timezone", forecast.Timezone).
		Msg("fetched uv forecast")

	return forecast, nil
}

func (c *Client) forecastURL(loc uv.Location) string {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Lon, 'f', 4, 64))
	q.Set("elevation", strconv.FormatFloat(loc.AltitudeMeters(), 'f', 0, 64))
	q.Set("daily", "uv_index_max,uv_index_clear_sky_max,sunrise,sunset")
	q.Set("hourly", "uv_index,cloud_cover")
	q.Set("timezone", "auto")
	q.Set("forecast_days", strconv.Itoa(forecastDays))
	return c.baseURL + "/v1/forecast?" + q.Encode()
}

// toForecast validates the response and converts it to the domain model.
func (c *Client) toForecast(body *forecastResponse) (*uv.Forecast, error) {
	if body.Daily == nil || body.Hourly == nil {
		return nil, fmt.Errorf("%w: daily or hourly block", uv.ErrDecode)
	}
	d, h := body.Daily, body.Hourly
	if d.Time == nil || d.UVIndexMax == nil || d.Sunrise == nil || d.Sunset == nil {
		return nil, fmt.Errorf("%w: daily fields", uv.ErrDecode)
	}
	if h.Time == nil || h.UVIndex == nil || h.CloudCover == nil {
		return nil, fmt.Errorf("%w: hourly fields", uv.ErrDecode)
	}

	days := len(*d.Time)
	if days == 0 || len(*d.UVIndexMax) < days || len(*d.Sunrise) < days || len(*d.Sunset) < days {
		return nil, fmt.Errorf("%w: daily arrays length mismatch", uv.ErrDecode)
	}
	hours := len(*h.Time)
	if hours == 0 || len(*h.UVIndex) < hours || len(*h.CloudCover) < hours {
		return nil, fmt.Errorf("%w: hourly arrays length mismatch", uv.ErrDecode)
	}

	name := body.TimezoneAbbreviation
	if name == "" {
		name = body.Timezone
	}
	zone := time.FixedZone(name, body.UTCOffsetSeconds)

	forecast := &uv.Forecast{
		Lat:       body.Latitude,
		Lon:       body.Longitude,
		Elevation: body.Elevation,
		Timezone:  body.Timezone,
		Location:  zone,
		Daily:     make([]uv.DailyForecast, 0, days),
		Hourly:    make([]uv.HourlySample, 0, hours),
		FetchedAt: c.now(),
	}

	for i := 0; i < days; i++ {
		sunrise, err := time.ParseInLocation(localTimeLayout, (*d.Sunrise)[i], zone)
		if err != nil {
			return nil, fmt.Errorf("%w: sunrise %q", uv.ErrDecode, (*d.Sunrise)[i])
		}
		sunset, err := time.ParseInLocation(localTimeLayout, (*d.Sunset)[i], zone)
		if err != nil {
			return nil, fmt.Errorf("%w: sunset %q", uv.ErrDecode, (*d.Sunset)[i])
		}

		day := uv.DailyForecast{
			Date:    (*d.Time)[i],
			UVMax:   valueAt(*d.UVIndexMax, i),
			Sunrise: sunrise,
			Sunset:  sunset,
		}
		if d.UVClearSkyMax != nil {
			day.UVClearSkyMax = valueAt(*d.UVClearSkyMax, i)
		}
		forecast.Daily = append(forecast.Daily, day)
	}

	for i := 0; i < hours; i++ {
		t, err := time.ParseInLocation(localTimeLayout, (*h.Time)[i], zone)
		if err != nil {
			return nil, fmt.Errorf("%w: hourly time %q", uv.ErrDecode, (*h.Time)[i])
		}
		forecast.Hourly = append(forecast.Hourly, uv.HourlySample{
			Time:       t,
			UV:         valueAt(*h.UVIndex, i),
			CloudCover: valueAt(*h.CloudCover, i),
		})
	}

	return forecast, nil
}

// valueAt returns the i-th value, treating nulls and negatives as 0.
func valueAt(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil || *values[i] < 0 {
		return 0
	}
	return *values[i]
}

var _ uv.Provider = (*Client)(nil)
