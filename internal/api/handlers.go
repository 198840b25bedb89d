package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ticket-drop-alerts/internal/storage"
)

type eventResponse struct {
	Name          string     `json:"name"`
	Venue         string     `json:"venue"`
	URL           string     `json:"url"`
	CreatedAt     time.Time  `json:"created_at"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
}

type snapshotResponse struct {
	Section    string          `json:"section"`
	Row        string          `json:"row,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Available  bool            `json:"available"`
	Source     string          `json:"source"`
	ObservedAt time.Time       `json:"observed_at"`
}

type dropResponse struct {
	Event          string          `json:"event"`
	Section        string          `json:"section"`
	OldPrice       decimal.Decimal `json:"old_price"`
	NewPrice       decimal.Decimal `json:"new_price"`
	DropPercentage decimal.Decimal `json:"drop_percentage"`
	DetectedAt     time.Time       `json:"detected_at"`
}

type createEventRequest struct {
	Name  string `json:"name"`
	URL   string `json:"url"`
	Venue string `json:"venue"`
}

func toEventResponse(event storage.TrackedEvent) eventResponse {
	return eventResponse{
		Name:          event.Name,
		Venue:         event.Venue,
		URL:           event.URL,
		CreatedAt:     event.CreatedAt,
		LastCheckedAt: event.LastCheckedAt,
	}
}

func toSnapshotResponse(snapshot storage.PriceSnapshot) snapshotResponse {
	resp := snapshotResponse{
		Section:    snapshot.Section,
		Price:      snapshot.Price,
		Available:  snapshot.Available,
		Source:     snapshot.Source,
		ObservedAt: snapshot.ObservedAt,
	}
	if snapshot.Row != nil {
		resp.Row = *snapshot.Row
	}
	return resp
}

func (s *Server) listEvents(c *gin.Context) {
	events, err := s.events.ListTrackedEvents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]eventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, toEventResponse(event))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) createEvent(c *gin.Context) {
	var req createEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON payload"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name required"})
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url required"})
		return
	}

	venue := req.Venue
	if venue == "" {
		venue = s.defaultVenue
	}

	event, err := s.events.CreateEvent(c.Request.Context(), storage.TrackedEvent{
		Name:  strings.TrimSpace(req.Name),
		URL:   strings.TrimSpace(req.URL),
		Venue: venue,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, toEventResponse(event))
}

func (s *Server) resolveEvent(c *gin.Context) (storage.TrackedEvent, bool) {
	name := c.Param("name")
	event, err := s.events.GetEventByName(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "event not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return storage.TrackedEvent{}, false
	}
	return event, true
}

func (s *Server) latestPrices(c *gin.Context) {
	event, ok := s.resolveEvent(c)
	if !ok {
		return
	}

	latest, err := s.history.LatestSnapshots(c.Request.Context(), event.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]snapshotResponse, 0, len(latest))
	for _, snapshot := range latest {
		out = append(out, toSnapshotResponse(snapshot))
	}
	c.JSON(http.StatusOK, gin.H{"event": event.Name, "latest": out})
}

func (s *Server) priceHistory(c *gin.Context) {
	event, ok := s.resolveEvent(c)
	if !ok {
		return
	}

	section := c.Query("section")
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	history, err := s.history.ListHistory(c.Request.Context(), event.ID, section, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]snapshotResponse, 0, len(history))
	for _, snapshot := range history {
		out = append(out, toSnapshotResponse(snapshot))
	}
	c.JSON(http.StatusOK, gin.H{"event": event.Name, "history": out})
}

// checkEvent runs an on-demand check of one event. It may overlap a scheduled
// cycle; the store's per-event transaction is the serialization point.
func (s *Server) checkEvent(c *gin.Context) {
	event, ok := s.resolveEvent(c)
	if !ok {
		return
	}

	result := s.mon.CheckEvent(c.Request.Context(), event)
	if result.Failed() {
		s.logger.Error().Err(result.Err).Str("event", event.Name).Msg("on-demand check failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"event":  event.Name,
			"cause":  result.Cause,
			"error":  result.Error,
			"status": "failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"event": event.Name, "status": "checked", "result": result})
}

func (s *Server) recentDrops(c *gin.Context) {
	hours := 24
	if raw := c.Query("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be a positive integer"})
			return
		}
		hours = parsed
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	drops, err := s.history.ListDropsSince(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]dropResponse, 0, len(drops))
	for _, drop := range drops {
		out = append(out, dropResponse{
			Event:          drop.EventName,
			Section:        drop.Section,
			OldPrice:       drop.OldPrice,
			NewPrice:       drop.NewPrice,
			DropPercentage: drop.DropPct,
			DetectedAt:     drop.DetectedAt,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) triggerCycle(c *gin.Context) {
	report, err := s.mon.RunCycle(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) cycleReports(c *gin.Context) {
	c.JSON(http.StatusOK, s.mon.Reports())
}
