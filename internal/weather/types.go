package weather

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned once every attempt against the forecast
// service has been exhausted for a single lookup.
var ErrUnavailable = errors.New("weather unavailable")

// TimeUnknown is shown when a city's timezone cannot be resolved.
const TimeUnknown = "--:--"

type Provider interface {
	Current(ctx context.Context, loc Location) (Snapshot, error)
}

// Location is the forecast query target. An empty Timezone asks the
// service to resolve one from the coordinates.
type Location struct {
	Latitude  float64
	Longitude float64
	Timezone  string
}

type Snapshot struct {
	Temperature float64   `json:"temperature"`
	Code        int       `json:"weather_code"`
	Condition   string    `json:"condition"`
	IsDay       bool      `json:"is_day"`
	LocalTime   string    `json:"local_time"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Category buckets the snapshot for illustration lookup.
func (s Snapshot) Category() Category {
	return Category{Class: ClassifyCode(s.Code), Night: !s.IsDay}
}
