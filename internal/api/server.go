// Package api exposes the HTTP surface: tracked-event registry, price
// history, drop listings, and on-demand checks.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ticket-drop-alerts/internal/monitor"
	"ticket-drop-alerts/internal/storage"
)

// Pinger reports storage reachability for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server bundles the handler dependencies.
type Server struct {
	events       storage.EventStore
	history      storage.HistoryStore
	mon          *monitor.Monitor
	pinger       Pinger
	defaultVenue string
	logger       zerolog.Logger
}

// NewServer wires handler dependencies. pinger may be nil, in which case
// /ready reports ok unconditionally.
func NewServer(events storage.EventStore, history storage.HistoryStore, mon *monitor.Monitor, pinger Pinger, defaultVenue string, logger zerolog.Logger) *Server {
	return &Server{
		events:       events,
		history:      history,
		mon:          mon,
		pinger:       pinger,
		defaultVenue: defaultVenue,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if s.pinger == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/events", s.listEvents)
	r.POST("/events", s.createEvent)
	r.GET("/events/:name/latest", s.latestPrices)
	r.GET("/events/:name/history", s.priceHistory)
	r.POST("/events/:name/check", s.checkEvent)

	r.GET("/price-drops", s.recentDrops)

	r.POST("/cycle", s.triggerCycle)
	r.GET("/cycle/reports", s.cycleReports)

	return r
}
