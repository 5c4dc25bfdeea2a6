package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	illustrationTTL      = 6 * time.Hour
	illustrationMaxBytes = 4 << 20
)

type illustrationEntry struct {
	FetchedAt   time.Time
	ContentType string
	Data        []byte
}

var (
	illustrationCacheMu sync.Mutex
	illustrationCache   = map[string]illustrationEntry{}
)

// sceneImageHandler streams the city's current illustration through the
// server so the widget can load it same-origin.
func (s *Server) sceneImageHandler(c *gin.Context) {
	id := c.Param("id")

	status, ok := s.cache.Status(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown city id"})
		return
	}
	if status.Snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot for city"})
		return
	}

	view := s.scenes.Detail(c.Request.Context(), id, *status.Snapshot)
	if !view.HasImage {
		c.JSON(http.StatusNotFound, gin.H{"error": "no illustration for scene"})
		return
	}

	entry, err := getIllustration(c.Request.Context(), view.ImageURL)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "failed to fetch illustration",
			"details": err.Error(),
		})
		return
	}

	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, entry.ContentType, entry.Data)
}

func getIllustration(ctx context.Context, url string) (illustrationEntry, error) {
	now := time.Now()
	illustrationCacheMu.Lock()
	entry, ok := illustrationCache[url]
	illustrationCacheMu.Unlock()
	if ok && now.Sub(entry.FetchedAt) < illustrationTTL {
		return entry, nil
	}

	fetched, err := fetchIllustration(ctx, url)
	if err != nil {
		if ok {
			return entry, nil
		}
		return illustrationEntry{}, err
	}

	illustrationCacheMu.Lock()
	illustrationCache[url] = fetched
	illustrationCacheMu.Unlock()
	return fetched, nil
}

func fetchIllustration(ctx context.Context, url string) (illustrationEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return illustrationEntry{}, fmt.Errorf("illustration request: %w", err)
	}
	req.Header.Set("User-Agent", "WindowToTheWorld/1.0")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return illustrationEntry{}, fmt.Errorf("illustration request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return illustrationEntry{}, fmt.Errorf("illustration bad status: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, illustrationMaxBytes))
	if err != nil {
		return illustrationEntry{}, fmt.Errorf("illustration read: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	return illustrationEntry{
		FetchedAt:   time.Now(),
		ContentType: contentType,
		Data:        data,
	}, nil
}
