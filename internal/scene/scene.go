package scene

import (
	"context"

	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

// View is everything the window scene needs to draw one city.
type View struct {
	Category   string   `json:"category"`
	ImageURL   string   `json:"image_url,omitempty"`
	HasImage   bool     `json:"has_image"`
	TimeBucket Bucket   `json:"time_bucket"`
	Background string   `json:"background"`
	Contrast   Contrast `json:"contrast"`
}

// Builder derives scene views from weather snapshots.
type Builder struct {
	manifests *Manifests
}

func NewBuilder(manifests *Manifests) *Builder {
	return &Builder{manifests: manifests}
}

// Detail builds the full-window view for one city. The illustration is
// seeded by the city id so the same city shows the same picture until the
// weather category changes.
func (b *Builder) Detail(ctx context.Context, cityID string, snap weather.Snapshot) View {
	category := snap.Category()
	bucket, tint := ResolveTint(snap.LocalTime)

	view := View{
		Category:   category.Key(),
		TimeBucket: bucket,
		Background: tint,
		Contrast:   ResolveContrast(snap.LocalTime),
	}

	manifest := b.manifests.Get(ctx, category)
	if url, ok := SelectImage(b.manifests.baseURL, category, manifest, cityID); ok {
		view.ImageURL = url
		view.HasImage = true
	}
	return view
}

// GridCell builds the compact multi-city cell: same scene, fixed light
// text.
func (b *Builder) GridCell(ctx context.Context, cityID string, snap weather.Snapshot) View {
	view := b.Detail(ctx, cityID, snap)
	view.Contrast = GridContrast()
	return view
}
