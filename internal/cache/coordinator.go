package cache

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Shellwecode/window-to-the-world-app/internal/citylist"
	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

// ViewState tracks where a city's snapshot is in its lifecycle. Loading is
// only ever shown before the first data lands; a revalidating city keeps
// its complete state and its stale snapshot.
type ViewState string

const (
	StateIdle     ViewState = "idle"
	StateLoading  ViewState = "loading"
	StateComplete ViewState = "complete"
	StateError    ViewState = "error"
)

// ErrorText is the only failure wording the widget ever shows.
const ErrorText = "connection interrupted"

type entry struct {
	city     citylist.City
	state    ViewState
	snapshot weather.Snapshot
	hasSnap  bool
	errText  string
	lastSeq  uint64 // newest committed fetch
	nextSeq  uint64 // newest issued fetch
}

// Status is one city's cache line as the HTTP layer sees it.
type Status struct {
	City     citylist.City     `json:"city"`
	State    ViewState         `json:"state"`
	Snapshot *weather.Snapshot `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

func (e *entry) status() Status {
	s := Status{City: e.city, State: e.state, Error: e.errText}
	if e.hasSnap {
		snap := e.snapshot
		s.Snapshot = &snap
	}
	return s
}

// Coordinator is the process-wide weather cache and prefetcher. Snapshots
// never expire on their own; they are replaced by newer fetches and
// dropped when their city leaves the list.
type Coordinator struct {
	provider weather.Provider
	logger   *slog.Logger
	jitter   time.Duration
	notify   func(citylist.City, weather.Snapshot)

	mu      sync.Mutex
	entries map[string]*entry
}

type Config struct {
	Provider weather.Provider
	Logger   *slog.Logger
	// Jitter caps the random delay in front of each prefetch so a long
	// list does not stampede the forecast service.
	Jitter time.Duration
	// Notify, when set, runs after every committed snapshot.
	Notify func(citylist.City, weather.Snapshot)
}

func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		provider: cfg.Provider,
		logger:   logger,
		jitter:   cfg.Jitter,
		notify:   cfg.Notify,
		entries:  make(map[string]*entry),
	}
}

// SetCities reconciles the tracked set with the saved list: new cities are
// prefetched in parallel, removed ones are dropped along with any cached
// value or in-flight result.
func (c *Coordinator) SetCities(ctx context.Context, cities []citylist.City) {
	keep := make(map[string]bool, len(cities))
	var toFetch []citylist.City

	c.mu.Lock()
	for _, city := range cities {
		keep[city.ID] = true
		e, ok := c.entries[city.ID]
		if !ok {
			c.entries[city.ID] = &entry{city: city, state: StateIdle}
			toFetch = append(toFetch, city)
			continue
		}
		e.city = city
		if !e.hasSnap && e.state != StateLoading {
			toFetch = append(toFetch, city)
		}
	}
	for id := range c.entries {
		if !keep[id] {
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	if len(toFetch) > 0 {
		go c.fetchMany(ctx, toFetch)
	}
}

// RefreshAll refetches every tracked city and returns when the pass is
// done. The periodic scheduler drives this.
func (c *Coordinator) RefreshAll(ctx context.Context) {
	c.mu.Lock()
	cities := make([]citylist.City, 0, len(c.entries))
	for _, e := range c.entries {
		cities = append(cities, e.city)
	}
	c.mu.Unlock()

	if len(cities) > 0 {
		c.fetchMany(ctx, cities)
	}
}

// Refresh fetches one city now. The view's revalidate pass runs this in
// the background while the stale snapshot stays on screen.
func (c *Coordinator) Refresh(ctx context.Context, id string) error {
	return c.refresh(ctx, id)
}

// Status reports one city's cache line. ok is false for untracked cities.
func (c *Coordinator) Status(id string) (Status, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return Status{}, false
	}
	return e.status(), true
}

// Statuses lists cache lines in the order given, skipping untracked ids.
func (c *Coordinator) Statuses(order []citylist.City) []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Status, 0, len(order))
	for _, city := range order {
		if e, ok := c.entries[city.ID]; ok {
			out = append(out, e.status())
		}
	}
	return out
}

// fetchMany fans out one goroutine per city. Failures stay per-city; one
// bad fetch never blocks the rest of the pass.
func (c *Coordinator) fetchMany(ctx context.Context, cities []citylist.City) {
	var wg sync.WaitGroup
	for _, city := range cities {
		wg.Add(1)
		go func(city citylist.City) {
			defer wg.Done()
			if c.jitter > 0 {
				timer := time.NewTimer(time.Duration(rand.Int63n(int64(c.jitter))))
				select {
				case <-ctx.Done():
					timer.Stop()
					return
				case <-timer.C:
				}
			}
			c.refresh(ctx, city.ID)
		}(city)
	}
	wg.Wait()
}

func (c *Coordinator) refresh(ctx context.Context, id string) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("city %q is not tracked", id)
	}
	city := e.city
	e.nextSeq++
	seq := e.nextSeq
	if !e.hasSnap {
		e.state = StateLoading
	}
	c.mu.Unlock()

	snap, err := c.provider.Current(ctx, weather.Location{
		Latitude:  city.Latitude,
		Longitude: city.Longitude,
		Timezone:  city.Timezone,
	})
	if err != nil {
		c.commitFailure(id, seq, err)
		return err
	}
	c.commitSnapshot(id, seq, snap)
	return nil
}

// commitSnapshot applies a successful fetch, unless the city left the list
// while the request ran or a newer result already landed.
func (c *Coordinator) commitSnapshot(id string, seq uint64, snap weather.Snapshot) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		c.mu.Unlock()
		c.logger.Debug("dropping snapshot for removed city", "city", id)
		return
	}
	if seq < e.lastSeq {
		c.mu.Unlock()
		c.logger.Debug("dropping superseded snapshot", "city", id, "seq", seq)
		return
	}
	e.snapshot = snap
	e.hasSnap = true
	e.state = StateComplete
	e.errText = ""
	e.lastSeq = seq
	city := e.city
	notify := c.notify
	c.mu.Unlock()

	if notify != nil {
		notify(city, snap)
	}
}

// commitFailure records a failed fetch. A city that already has data keeps
// serving it; the error only surfaces when there is nothing to show.
func (c *Coordinator) commitFailure(id string, seq uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok || seq < e.lastSeq {
		return
	}
	if e.hasSnap {
		c.logger.Warn("refresh failed, serving stale snapshot",
			"city", e.city.Name, "error", err)
		return
	}
	e.state = StateError
	e.errText = ErrorText
	c.logger.Warn("fetch failed with nothing cached", "city", e.city.Name, "error", err)
}
