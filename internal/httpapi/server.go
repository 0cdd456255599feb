// Package httpapi provides the HTTP surface for foliod: the websocket chat
// endpoint, the search API, health and metrics.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/foliolabs/foliod/internal/chat"
	"github.com/foliolabs/foliod/internal/content"
	"github.com/foliolabs/foliod/internal/logging"
	"github.com/foliolabs/foliod/internal/search"
)

// Searcher runs single-collection hybrid searches for the search API.
type Searcher interface {
	Search(ctx context.Context, collection, query string, limit int) (search.ResultSet, error)
}

// Server provides HTTP endpoints for foliod.
type Server struct {
	echo     *echo.Echo
	manager  *chat.Manager
	searcher Searcher
	logger   *logging.Logger
	config   *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates the HTTP server.
func NewServer(manager *chat.Manager, searcher Searcher, logger *logging.Logger, cfg *Config) (*Server, error) {
	if manager == nil {
		return nil, fmt.Errorf("chat manager is required")
	}
	if searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8085,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			ctx := logging.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(c.Request().WithContext(ctx))
			err := next(c)
			duration := time.Since(start)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)

			return err
		}
	})

	s := &Server{
		echo:     e,
		manager:  manager,
		searcher: searcher,
		logger:   logger,
		config:   cfg,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/ws/chat", s.handleChat)

	v1 := s.echo.Group("/api/v1")
	v1.GET("/search", s.handleSearch)
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Sessions: s.manager.SessionCount(),
	})
}

// SearchResponse is the response body for GET /api/v1/search.
type SearchResponse struct {
	Results []search.Result `json:"results"`
	Partial bool            `json:"partial"`
}

// handleSearch exposes hybrid search for the site's search box.
func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}

	collection := c.QueryParam("collection")
	if collection == "" {
		collection = content.CollectionProjects
	}
	if !validCollection(collection) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown collection: %s", collection))
	}

	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		if _, err := fmt.Sscanf(raw, "%d", &limit); err != nil || limit < 1 || limit > 50 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer in [1,50]")
		}
	}

	set, err := s.searcher.Search(c.Request().Context(), collection, query, limit)
	if err != nil {
		s.logger.Error(c.Request().Context(), "search failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}

	results := set.Results
	if results == nil {
		results = []search.Result{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Results: results, Partial: set.Partial})
}

func validCollection(collection string) bool {
	for _, c := range content.Collections {
		if c == collection {
			return true
		}
	}
	return false
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
