package scene

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

// manifestEntry is a memoized folder listing. Successful lookups live for
// the life of the process; failed ones hold an empty list until retryAfter.
type manifestEntry struct {
	files      []string
	failed     bool
	retryAfter time.Time
}

// Manifests caches the per-category illustration indexes. Concurrent
// requests for the same category share a single upstream fetch.
type Manifests struct {
	baseURL    string
	retryAfter time.Duration
	timeout    time.Duration
	client     *resty.Client
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]manifestEntry
	pending map[string]chan struct{}
}

func NewManifests(baseURL string, retryAfter time.Duration, logger *slog.Logger) *Manifests {
	if retryAfter <= 0 {
		retryAfter = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := 10 * time.Second
	return &Manifests{
		baseURL:    strings.TrimRight(baseURL, "/"),
		retryAfter: retryAfter,
		timeout:    timeout,
		client:     resty.New().SetTimeout(timeout),
		logger:     logger,
		entries:    make(map[string]manifestEntry),
		pending:    make(map[string]chan struct{}),
	}
}

// Get returns the illustration file names for a category. It never fails:
// an unreachable host or a bad payload yields an empty list, remembered
// until the retry window elapses. Successful lookups, including empty
// folders, are remembered for good.
func (m *Manifests) Get(ctx context.Context, category weather.Category) []string {
	key := category.Key()

	for {
		m.mu.Lock()
		if entry, ok := m.entries[key]; ok {
			if !entry.failed || time.Now().Before(entry.retryAfter) {
				m.mu.Unlock()
				return entry.files
			}
			delete(m.entries, key)
		}
		done, inFlight := m.pending[key]
		if !inFlight {
			done = make(chan struct{})
			m.pending[key] = done
		}
		m.mu.Unlock()

		if inFlight {
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return nil
			}
		}

		files, err := m.fetch(key)
		entry := manifestEntry{files: files}
		if err != nil {
			m.logger.Warn("manifest fetch failed", "category", key, "error", err)
			entry = manifestEntry{
				files:      []string{},
				failed:     true,
				retryAfter: time.Now().Add(m.retryAfter),
			}
		}

		m.mu.Lock()
		m.entries[key] = entry
		delete(m.pending, key)
		m.mu.Unlock()
		close(done)

		return entry.files
	}
}

// fetch runs detached from the caller's context so one canceled request
// cannot poison the memoized entry for everyone else.
func (m *Manifests) fetch(key string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	resp, err := m.client.R().SetContext(ctx).Get(m.baseURL + "/" + key + "/index.json")
	if err != nil {
		return nil, fmt.Errorf("manifest request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("manifest bad status: %d", resp.StatusCode())
	}

	var files []string
	if err := json.Unmarshal(resp.Body(), &files); err != nil {
		return nil, fmt.Errorf("manifest decode: %w", err)
	}

	clean := make([]string, 0, len(files))
	for _, f := range files {
		if strings.TrimSpace(f) != "" {
			clean = append(clean, f)
		}
	}
	return clean, nil
}
