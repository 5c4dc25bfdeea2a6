package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"

	"github.com/Shellwecode/window-to-the-world-app/internal/citylist"
)

// MinQueryLength is how many characters a search needs before the
// directory is asked at all.
const MinQueryLength = 2

const resultLimit = 8

type Client struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = "https://geocoding-api.open-meteo.com"
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "geocoding",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: cb,
		logger:  logger,
	}
}

type searchResponse struct {
	Results []struct {
		ID        int64   `json:"id"`
		Name      string  `json:"name"`
		Country   string  `json:"country"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Timezone  string  `json:"timezone"`
	} `json:"results"`
}

// Search asks the city directory for candidates matching query. It never
// returns an error: short queries, network failures, bad payloads and an
// open breaker all come back as an empty list.
func (c *Client) Search(ctx context.Context, query string) []citylist.City {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return nil
	}

	params := url.Values{}
	params.Set("name", query)
	params.Set("count", strconv.Itoa(resultLimit))
	params.Set("language", "en")
	params.Set("format", "json")

	endpoint := c.baseURL + "/v1/search?" + params.Encode()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, endpoint)
	})
	if err != nil {
		c.logger.Warn("city search failed", "query", query, "error", err)
		return nil
	}

	payload := result.(*searchResponse)
	cities := make([]citylist.City, 0, len(payload.Results))
	for _, r := range payload.Results {
		city := citylist.City{
			ID:        strconv.FormatInt(r.ID, 10),
			Name:      strings.TrimSpace(r.Name),
			Country:   strings.TrimSpace(r.Country),
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Timezone:  strings.TrimSpace(r.Timezone),
		}
		if city.Name == "" {
			continue
		}
		if r.ID == 0 {
			// Stable fallback key so illustration choice survives reloads.
			city.ID = strings.ToLower(city.Name + "," + city.Country)
		}
		if city.Timezone == "" {
			city.Timezone = "UTC"
		}
		cities = append(cities, city)
	}
	return cities
}

func (c *Client) fetch(ctx context.Context, endpoint string) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("geocoding request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("geocoding bad status: %s", resp.Status)
	}

	var payload searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("geocoding decode: %w", err)
	}
	return &payload, nil
}
