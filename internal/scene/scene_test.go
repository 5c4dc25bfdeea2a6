package scene

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

func TestBuilderDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `["one.png","two.png"]`)
	}))
	defer server.Close()

	builder := NewBuilder(NewManifests(server.URL, time.Hour, testLogger()))
	snap := weather.Snapshot{Code: 75, IsDay: false, LocalTime: "11:40 PM"}

	view := builder.Detail(context.Background(), "1850147", snap)
	if view.Category != "snow-night" {
		t.Errorf("category = %q", view.Category)
	}
	if !view.HasImage || !strings.HasPrefix(view.ImageURL, server.URL+"/snow-night/") {
		t.Errorf("image = %q has=%v", view.ImageURL, view.HasImage)
	}
	if view.TimeBucket != BucketDeepNight {
		t.Errorf("bucket = %s, want deep night", view.TimeBucket)
	}
	if view.Background != bucketTints[BucketDeepNight] {
		t.Errorf("background = %q", view.Background)
	}
	if view.Contrast != lightOnDark {
		t.Errorf("detail contrast = %+v, want light on dark at night", view.Contrast)
	}

	// The same city keeps the same picture on a rebuild.
	again := builder.Detail(context.Background(), "1850147", snap)
	if again.ImageURL != view.ImageURL {
		t.Errorf("image changed across builds: %q then %q", view.ImageURL, again.ImageURL)
	}
}

func TestBuilderDetailWithoutManifest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	builder := NewBuilder(NewManifests(server.URL, time.Hour, testLogger()))
	snap := weather.Snapshot{Code: 0, IsDay: true, LocalTime: "09:00 AM"}

	view := builder.Detail(context.Background(), "2643743", snap)
	if view.HasImage || view.ImageURL != "" {
		t.Errorf("image should be absent, got %q", view.ImageURL)
	}
	// The scene still carries a tint and readable text.
	if view.Background == "" {
		t.Error("background tint missing")
	}
	if view.Contrast != darkOnLight {
		t.Errorf("morning contrast = %+v", view.Contrast)
	}
}

func TestBuilderGridCellForcesLightText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `["one.png"]`)
	}))
	defer server.Close()

	builder := NewBuilder(NewManifests(server.URL, time.Hour, testLogger()))
	snap := weather.Snapshot{Code: 1, IsDay: true, LocalTime: "10:00 AM"}

	detail := builder.Detail(context.Background(), "2988507", snap)
	if detail.Contrast != darkOnLight {
		t.Fatalf("morning detail contrast = %+v", detail.Contrast)
	}

	cell := builder.GridCell(context.Background(), "2988507", snap)
	if cell.Contrast != lightOnDark {
		t.Errorf("grid contrast = %+v, want light on dark", cell.Contrast)
	}
	if cell.ImageURL != detail.ImageURL || cell.Background != detail.Background {
		t.Error("grid cell diverged from detail scene beyond contrast")
	}
}
