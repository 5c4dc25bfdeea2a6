package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var errRateLimited = errors.New("rate limited")

// RetryPolicy controls how a failed forecast request is retried. Rate
// limited responses wait a growing flat interval, everything else backs off
// exponentially from BackoffBase.
type RetryPolicy struct {
	MaxAttempts   int
	RateLimitWait time.Duration
	BackoffBase   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		RateLimitWait: 1500 * time.Millisecond,
		BackoffBase:   500 * time.Millisecond,
	}
}

type OpenMeteoClient struct {
	baseURL string
	policy  RetryPolicy
	client  *http.Client
	logger  *slog.Logger
}

func NewOpenMeteoClient(baseURL string, policy RetryPolicy, logger *slog.Logger) *OpenMeteoClient {
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com"
	}
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenMeteoClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  policy,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type openMeteoResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		IsDay       int     `json:"is_day"`
	} `json:"current"`
}

func (c *OpenMeteoClient) Current(ctx context.Context, loc Location) (Snapshot, error) {
	query := url.Values{}
	query.Set("latitude", fmt.Sprintf("%.6f", loc.Latitude))
	query.Set("longitude", fmt.Sprintf("%.6f", loc.Longitude))
	query.Set("current", "temperature_2m,weather_code,is_day")

	timezone := strings.TrimSpace(loc.Timezone)
	if timezone == "" {
		timezone = "auto"
	}
	query.Set("timezone", timezone)

	endpoint := c.baseURL + "/v1/forecast?" + query.Encode()

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		snapshot, err := c.fetch(ctx, endpoint, loc.Timezone)
		if err == nil {
			return snapshot, nil
		}
		lastErr = err

		if attempt == c.policy.MaxAttempts {
			break
		}

		wait := c.policy.BackoffBase << (attempt - 1)
		if errors.Is(err, errRateLimited) {
			wait = c.policy.RateLimitWait * time.Duration(attempt)
		}

		c.logger.Warn("forecast fetch failed, retrying",
			"attempt", attempt,
			"wait", wait.String(),
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	return Snapshot{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *OpenMeteoClient) fetch(ctx context.Context, endpoint, requestedTZ string) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("forecast request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("forecast request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Snapshot{}, errRateLimited
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Snapshot{}, fmt.Errorf("forecast bad status: %s", resp.Status)
	}

	var payload openMeteoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Snapshot{}, fmt.Errorf("forecast decode: %w", err)
	}
	if strings.TrimSpace(payload.Current.Time) == "" {
		return Snapshot{}, fmt.Errorf("forecast current data missing")
	}

	// The service echoes the resolved zone name when "auto" was requested.
	timezone := payload.Timezone
	if strings.TrimSpace(timezone) == "" {
		timezone = requestedTZ
	}

	return Snapshot{
		Temperature: payload.Current.Temperature,
		Code:        payload.Current.WeatherCode,
		Condition:   Describe(payload.Current.WeatherCode),
		IsDay:       payload.Current.IsDay == 1,
		LocalTime:   formatLocalTime(time.Now(), timezone),
		FetchedAt:   time.Now().UTC(),
	}, nil
}

// formatLocalTime renders the wall clock at the given zone in 12-hour form.
// An unresolvable zone yields the TimeUnknown placeholder instead of an
// error so a bad timezone never blocks the rest of the snapshot.
func formatLocalTime(now time.Time, timezone string) string {
	if strings.TrimSpace(timezone) == "" {
		return TimeUnknown
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return TimeUnknown
	}
	return now.In(loc).Format("03:04 PM")
}
