package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Shellwecode/window-to-the-world-app/internal/cache"
	"github.com/Shellwecode/window-to-the-world-app/internal/citylist"
	"github.com/Shellwecode/window-to-the-world-app/internal/geocode"
	"github.com/Shellwecode/window-to-the-world-app/internal/scene"
	"github.com/Shellwecode/window-to-the-world-app/internal/weather"
)

const refreshTimeout = 15 * time.Second

type Server struct {
	router   *gin.Engine
	server   *http.Server
	port     int
	webPath  string
	manager  *citylist.Manager
	cache    *cache.Coordinator
	geocoder *geocode.Client
	scenes   *scene.Builder
	logger   *slog.Logger
}

type ServerConfig struct {
	Port     int
	WebPath  string
	Manager  *citylist.Manager
	Cache    *cache.Coordinator
	Geocoder *geocode.Client
	Scenes   *scene.Builder
	Logger   *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(requestID())

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:   router,
		port:     cfg.Port,
		webPath:  cfg.WebPath,
		manager:  cfg.Manager,
		cache:    cfg.Cache,
		geocoder: cfg.Geocoder,
		scenes:   cfg.Scenes,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	// Serve the widget bundle when one is deployed alongside the server.
	if s.webPath != "" {
		s.router.Static("/static", s.webPath+"/static")
		s.router.StaticFile("/", s.webPath+"/index.html")
	}

	// Health check
	s.router.GET("/health", s.healthHandler)

	// API routes
	api := s.router.Group("/api/v1")
	{
		api.GET("/cities", s.listCitiesHandler)
		api.POST("/cities", s.addCityHandler)
		api.DELETE("/cities/:id", s.removeCityHandler)
		api.PUT("/cities/order", s.reorderCitiesHandler)
		api.GET("/cities/search", s.searchCitiesHandler)

		api.GET("/selection", s.getSelectionHandler)
		api.PUT("/selection", s.updateSelectionHandler)

		api.GET("/weather/:id", s.weatherHandler)
		api.GET("/scene/:id", s.sceneHandler)
		api.GET("/scene/:id/image", s.sceneImageHandler)
		api.GET("/grid", s.gridHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	s.logger.Info("API server starting", "port", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"cities":    len(s.manager.Cities()),
		"timestamp": time.Now(),
	})
}

// CityRequest is the payload for adding a city, usually copied verbatim
// from a search result.
type CityRequest struct {
	ID        string  `json:"id" binding:"required"`
	Name      string  `json:"name" binding:"required"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
	Timezone  string  `json:"timezone"`
}

type OrderRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type SelectionRequest struct {
	ID string `json:"id" binding:"required"`
}

// SceneResponse pairs a city's cache line with its rendered scene. Scene
// is absent while the city has no snapshot yet.
type SceneResponse struct {
	cache.Status
	Scene *scene.View `json:"scene,omitempty"`
}

func (s *Server) listCitiesHandler(c *gin.Context) {
	statuses := s.cache.Statuses(s.manager.Cities())

	selected := ""
	if city, ok := s.manager.Selected(); ok {
		selected = city.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"cities":   statuses,
		"selected": selected,
	})
}

func (s *Server) addCityHandler(c *gin.Context) {
	var req CityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	city := citylist.City{
		ID:        req.ID,
		Name:      req.Name,
		Country:   req.Country,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timezone:  req.Timezone,
	}

	if err := s.manager.Add(city); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"city": city})
}

func (s *Server) removeCityHandler(c *gin.Context) {
	id := c.Param("id")
	if !s.manager.Remove(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown city id"})
		return
	}

	selected := ""
	if city, ok := s.manager.Selected(); ok {
		selected = city.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"removed":  id,
		"selected": selected,
	})
}

func (s *Server) reorderCitiesHandler(c *gin.Context) {
	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.manager.Reorder(req.IDs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cities": s.manager.Cities()})
}

func (s *Server) searchCitiesHandler(c *gin.Context) {
	query := c.Query("q")

	// Search never fails from the caller's point of view; short or broken
	// lookups come back as an empty result set.
	results := s.geocoder.Search(c.Request.Context(), query)
	if results == nil {
		results = []citylist.City{}
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) getSelectionHandler(c *gin.Context) {
	city, ok := s.manager.Selected()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"selected": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selected": city})
}

func (s *Server) updateSelectionHandler(c *gin.Context) {
	var req SelectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.manager.Select(req.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	city, _ := s.manager.Selected()
	c.JSON(http.StatusOK, gin.H{"selected": city})
}

// weatherHandler serves whatever the cache holds and revalidates behind
// the response. Only a city with no snapshot at all blocks on the fetch.
func (s *Server) weatherHandler(c *gin.Context) {
	id := c.Param("id")

	status, ok := s.cache.Status(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown city id"})
		return
	}

	if status.Snapshot != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
			defer cancel()
			if err := s.cache.Refresh(ctx, id); err != nil {
				s.logger.Debug("background refresh failed", "city", id, "error", err)
			}
		}()
		c.JSON(http.StatusOK, status)
		return
	}

	if err := s.cache.Refresh(c.Request.Context(), id); err != nil && !errors.Is(err, weather.ErrUnavailable) {
		s.logger.Warn("refresh failed", "city", id, "error", err)
	}

	status, ok = s.cache.Status(id)
	if !ok || status.Snapshot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": cache.ErrorText})
		return
	}

	c.JSON(http.StatusOK, status)
}

func (s *Server) sceneHandler(c *gin.Context) {
	id := c.Param("id")

	status, ok := s.cache.Status(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown city id"})
		return
	}

	resp := SceneResponse{Status: status}
	if status.Snapshot != nil {
		view := s.scenes.Detail(c.Request.Context(), id, *status.Snapshot)
		resp.Scene = &view
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) gridHandler(c *gin.Context) {
	statuses := s.cache.Statuses(s.manager.Cities())

	cells := make([]SceneResponse, 0, len(statuses))
	for _, status := range statuses {
		cell := SceneResponse{Status: status}
		if status.Snapshot != nil {
			view := s.scenes.GridCell(c.Request.Context(), status.City.ID, *status.Snapshot)
			cell.Scene = &view
		}
		cells = append(cells, cell)
	}

	selected := ""
	if city, ok := s.manager.Selected(); ok {
		selected = city.ID
	}

	c.JSON(http.StatusOK, gin.H{
		"cells":    cells,
		"selected": selected,
	})
}
