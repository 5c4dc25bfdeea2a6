package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Shellwecode/window-to-the-world-app/internal/api"
	"github.com/Shellwecode/window-to-the-world-app/internal/cache"
	"github.com/Shellwecode/window-to-the-world-app/internal/citylist"
	"github.com/Shellwecode/window-to-the-world-app/internal/geocode"
	"github.com/Shellwecode/window-to-the-world-app/internal/scene"
	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

type fakeSettings struct {
	values map[string]string
}

func (f *fakeSettings) Get(key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeSettings) Put(key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeSettings) Delete(key string) error {
	delete(f.values, key)
	return nil
}

type providerFunc func(ctx context.Context, loc weather.Location) (weather.Snapshot, error)

func (f providerFunc) Current(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
	return f(ctx, loc)
}

type testEnv struct {
	ts        *httptest.Server
	searches  *int32
	imageHits *int32
}

// newTestEnv wires the whole stack in memory: an empty saved list, a fake
// forecast provider, and fake geocoding and illustration upstreams.
func newTestEnv(t *testing.T, provider weather.Provider) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	settings := &fakeSettings{values: map[string]string{"cities.v2": "[]"}}
	store := citylist.NewStore(settings, logger)
	manager := citylist.NewManager(store, logger)

	coord := cache.NewCoordinator(cache.Config{Provider: provider, Logger: logger})
	manager.SetOnChange(func(cities []citylist.City) {
		coord.SetCities(context.Background(), cities)
	})

	var searches int32
	geoUpstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&searches, 1)
		fmt.Fprint(w, `{"results":[{"id":2988507,"name":"Paris","country":"France","latitude":48.85,"longitude":2.35,"timezone":"Europe/Paris"}]}`)
	}))
	t.Cleanup(geoUpstream.Close)

	var imageHits int32
	illustrations := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ".png") {
			atomic.AddInt32(&imageHits, 1)
			w.Header().Set("Content-Type", "image/png")
			fmt.Fprint(w, "PNGDATA")
			return
		}
		fmt.Fprint(w, `["window-1.png","window-2.png"]`)
	}))
	t.Cleanup(illustrations.Close)

	srv := api.NewServer(api.ServerConfig{
		Manager:  manager,
		Cache:    coord,
		Geocoder: geocode.NewClient(geoUpstream.URL, logger),
		Scenes:   scene.NewBuilder(scene.NewManifests(illustrations.URL, 0, logger)),
		Logger:   logger,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, searches: &searches, imageHits: &imageHits}
}

func doJSON(t *testing.T, method, url string, payload interface{}) (int, map[string]interface{}) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response from %s %s: %v", method, url, err)
	}
	return resp.StatusCode, decoded
}

func parisPayload() map[string]interface{} {
	return map[string]interface{}{
		"id":        "2988507",
		"name":      "Paris",
		"country":   "France",
		"latitude":  48.85,
		"longitude": 2.35,
		"timezone":  "Europe/Paris",
	}
}

func TestAddListAndWeather(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{Temperature: 21.5, Code: 0, Condition: "Clear sky", IsDay: true, LocalTime: "09:30 AM"}, nil
	})
	env := newTestEnv(t, provider)

	status, _ := doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", parisPayload())
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from add, got %d", status)
	}

	status, body := doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/cities", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from list, got %d", status)
	}
	cities, ok := body["cities"].([]interface{})
	if !ok || len(cities) != 1 {
		t.Fatalf("expected one city, got %v", body["cities"])
	}
	if body["selected"] != "2988507" {
		t.Fatalf("expected first add to be selected, got %v", body["selected"])
	}

	status, body = doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/weather/2988507", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from weather, got %d", status)
	}
	if body["state"] != "complete" {
		t.Fatalf("expected complete state, got %v", body["state"])
	}
	snap, ok := body["snapshot"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected snapshot in response, got %v", body)
	}
	if snap["temperature"] != 21.5 {
		t.Fatalf("expected temperature 21.5, got %v", snap["temperature"])
	}
}

func TestAddValidation(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{}, nil
	})
	env := newTestEnv(t, provider)

	payloads := []map[string]interface{}{
		{"id": "1"},                     // missing name
		{"name": "Nowhere"},             // missing id
		{"id": "1", "name": "Nowhere", "latitude": 120.0}, // latitude out of range
	}
	for _, payload := range payloads {
		status, _ := doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", payload)
		if status != http.StatusBadRequest {
			t.Fatalf("expected 400 for %v, got %d", payload, status)
		}
	}
}

func TestWeatherFailureAndStale(t *testing.T) {
	var failing atomic.Bool
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		if failing.Load() {
			return weather.Snapshot{}, fmt.Errorf("%w: upstream down", weather.ErrUnavailable)
		}
		return weather.Snapshot{Temperature: 3.0, Code: 71, Condition: "Slight snow fall", LocalTime: "11:47 PM"}, nil
	})
	env := newTestEnv(t, provider)

	status, _ := doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/weather/nowhere", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for untracked city, got %d", status)
	}

	failing.Store(true)
	doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", parisPayload())

	status, body := doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/weather/2988507", nil)
	if status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 with nothing cached, got %d", status)
	}
	if body["error"] != "connection interrupted" {
		t.Fatalf("expected the fixed failure wording, got %v", body["error"])
	}

	failing.Store(false)
	status, body = doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/weather/2988507", nil)
	if status != http.StatusOK || body["state"] != "complete" {
		t.Fatalf("expected recovery to 200/complete, got %d %v", status, body["state"])
	}

	// A failing revalidation must not evict the cached snapshot.
	failing.Store(true)
	status, body = doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/weather/2988507", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from cache while upstream is down, got %d", status)
	}
	if body["state"] != "complete" || body["snapshot"] == nil {
		t.Fatalf("expected stale snapshot to survive, got state=%v", body["state"])
	}
}

func TestSearchEndpoint(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{}, nil
	})
	env := newTestEnv(t, provider)

	status, body := doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/cities/search?q=P", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for short query, got %d", status)
	}
	if results := body["results"].([]interface{}); len(results) != 0 {
		t.Fatalf("expected empty results for short query, got %v", results)
	}
	if calls := atomic.LoadInt32(env.searches); calls != 0 {
		t.Fatalf("short query must not reach the geocoder, got %d calls", calls)
	}

	status, body = doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/cities/search?q=Paris", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	results := body["results"].([]interface{})
	if len(results) != 1 {
		t.Fatalf("expected one result, got %v", results)
	}
	first := results[0].(map[string]interface{})
	if first["name"] != "Paris" || first["id"] != "2988507" {
		t.Fatalf("unexpected result: %v", first)
	}
	if calls := atomic.LoadInt32(env.searches); calls != 1 {
		t.Fatalf("expected one geocoder call, got %d", calls)
	}
}

func TestRemoveSelectionRule(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{}, nil
	})
	env := newTestEnv(t, provider)

	for _, c := range []map[string]interface{}{
		{"id": "a", "name": "Alpha", "timezone": "UTC"},
		{"id": "b", "name": "Beta", "timezone": "UTC"},
	} {
		if status, _ := doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", c); status != http.StatusCreated {
			t.Fatalf("add %v failed with %d", c, status)
		}
	}

	status, body := doJSON(t, http.MethodDelete, env.ts.URL+"/api/v1/cities/a", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from remove, got %d", status)
	}
	if body["selected"] != "b" {
		t.Fatalf("removing the selected city should select the next one, got %v", body["selected"])
	}

	status, body = doJSON(t, http.MethodDelete, env.ts.URL+"/api/v1/cities/b", nil)
	if status != http.StatusOK || body["selected"] != "" {
		t.Fatalf("removing the last city should clear selection, got %d %v", status, body["selected"])
	}

	status, _ = doJSON(t, http.MethodDelete, env.ts.URL+"/api/v1/cities/b", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for a second remove, got %d", status)
	}
}

func TestSelectionEndpoints(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{}, nil
	})
	env := newTestEnv(t, provider)

	status, body := doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/selection", nil)
	if status != http.StatusOK || body["selected"] != nil {
		t.Fatalf("expected empty selection, got %d %v", status, body["selected"])
	}

	status, _ = doJSON(t, http.MethodPut, env.ts.URL+"/api/v1/selection", map[string]interface{}{"id": "ghost"})
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 selecting an unknown city, got %d", status)
	}

	doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", parisPayload())
	status, body = doJSON(t, http.MethodPut, env.ts.URL+"/api/v1/selection", map[string]interface{}{"id": "2988507"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from select, got %d", status)
	}
	selected := body["selected"].(map[string]interface{})
	if selected["id"] != "2988507" {
		t.Fatalf("unexpected selection: %v", selected)
	}
}

func TestReorderEndpoint(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{}, nil
	})
	env := newTestEnv(t, provider)

	for _, c := range []map[string]interface{}{
		{"id": "a", "name": "Alpha", "timezone": "UTC"},
		{"id": "b", "name": "Beta", "timezone": "UTC"},
	} {
		doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", c)
	}

	status, body := doJSON(t, http.MethodPut, env.ts.URL+"/api/v1/cities/order", map[string]interface{}{"ids": []string{"b", "a"}})
	if status != http.StatusOK {
		t.Fatalf("expected 200 from reorder, got %d", status)
	}
	cities := body["cities"].([]interface{})
	first := cities[0].(map[string]interface{})
	if first["id"] != "b" {
		t.Fatalf("expected b first after reorder, got %v", first["id"])
	}

	status, _ = doJSON(t, http.MethodPut, env.ts.URL+"/api/v1/cities/order", map[string]interface{}{"ids": []string{"b"}})
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 for a partial order, got %d", status)
	}
}

func TestSceneAndGrid(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{Temperature: -2.0, Code: 71, Condition: "Slight snow fall", IsDay: false, LocalTime: "11:47 PM"}, nil
	})
	env := newTestEnv(t, provider)

	doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", parisPayload())
	// Prime the cache through the blocking path.
	doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/weather/2988507", nil)

	status, body := doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/scene/2988507", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from scene, got %d", status)
	}
	view, ok := body["scene"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected a scene once the snapshot is cached, got %v", body)
	}
	if view["category"] != "snow-night" {
		t.Fatalf("expected snow-night, got %v", view["category"])
	}
	if view["time_bucket"] != "deep-night" {
		t.Fatalf("expected deep-night bucket for 11:47 PM, got %v", view["time_bucket"])
	}
	if view["has_image"] != true {
		t.Fatalf("expected an illustration, got %v", view)
	}
	contrast := view["contrast"].(map[string]interface{})
	if contrast["text"] != "#f4f6fb" {
		t.Fatalf("expected light text at night, got %v", contrast["text"])
	}

	status, body = doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/grid", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from grid, got %d", status)
	}
	cells := body["cells"].([]interface{})
	if len(cells) != 1 {
		t.Fatalf("expected one cell, got %d", len(cells))
	}
	cell := cells[0].(map[string]interface{})
	gridView := cell["scene"].(map[string]interface{})
	gridContrast := gridView["contrast"].(map[string]interface{})
	if gridContrast["text"] != "#f4f6fb" {
		t.Fatalf("grid cells always use light text, got %v", gridContrast["text"])
	}
}

func TestSceneImageProxy(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{Temperature: 18.0, Code: 61, Condition: "Slight rain", IsDay: true, LocalTime: "02:10 PM"}, nil
	})
	env := newTestEnv(t, provider)

	doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", parisPayload())
	doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/weather/2988507", nil)

	fetch := func() (int, string, string) {
		t.Helper()
		resp, err := http.Get(env.ts.URL + "/api/v1/scene/2988507/image")
		if err != nil {
			t.Fatalf("image request failed: %v", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read image body: %v", err)
		}
		return resp.StatusCode, resp.Header.Get("Content-Type"), string(body)
	}

	status, contentType, body := fetch()
	if status != http.StatusOK {
		t.Fatalf("expected 200 from image proxy, got %d", status)
	}
	if contentType != "image/png" || body != "PNGDATA" {
		t.Fatalf("unexpected image response: %s %q", contentType, body)
	}

	// Second request is served from the byte cache.
	fetch()
	if hits := atomic.LoadInt32(env.imageHits); hits != 1 {
		t.Fatalf("expected one upstream image fetch, got %d", hits)
	}

	resp, err := http.Get(env.ts.URL + "/api/v1/scene/ghost/image")
	if err != nil {
		t.Fatalf("image request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for untracked city, got %d", resp.StatusCode)
	}
}

func TestSceneWithoutSnapshot(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, loc weather.Location) (weather.Snapshot, error) {
		return weather.Snapshot{}, fmt.Errorf("%w: upstream down", weather.ErrUnavailable)
	})
	env := newTestEnv(t, provider)

	doJSON(t, http.MethodPost, env.ts.URL+"/api/v1/cities", parisPayload())
	doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/weather/2988507", nil)

	status, body := doJSON(t, http.MethodGet, env.ts.URL+"/api/v1/scene/2988507", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from scene, got %d", status)
	}
	if body["scene"] != nil {
		t.Fatalf("expected no scene without a snapshot, got %v", body["scene"])
	}
	if body["state"] != "error" {
		t.Fatalf("expected error state, got %v", body["state"])
	}
	if body["error"] != "connection interrupted" {
		t.Fatalf("expected the fixed failure wording, got %v", body["error"])
	}
}
