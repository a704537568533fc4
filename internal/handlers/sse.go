package handlers

import (
	"io"
	"time"

	"github.com/bidyaasp/project-management/internal/middleware"
	"github.com/bidyaasp/project-management/internal/services"
	"github.com/bidyaasp/project-management/pkg/logger"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

const (
	sseHeartbeat = 25 * time.Second
	// sseRetryMillis is the reconnect delay suggested to EventSource.
	sseRetryMillis = 3000
)

// SSEHandler streams activity events to browser clients.
type SSEHandler struct {
	hub        *services.SSEHub
	visibility *services.VisibilityService
	heartbeat  time.Duration
}

func NewSSEHandler(hub *services.SSEHub, visibility *services.VisibilityService) *SSEHandler {
	return &SSEHandler{hub: hub, visibility: visibility, heartbeat: sseHeartbeat}
}

// StreamActivity pushes every committed history row the caller may see.
// EventSource cannot set headers, so AuthRequired also accepts the token
// query parameter. Reconnecting clients resume after Last-Event-ID.
// GET /api/events/activity
func (h *SSEHandler) StreamActivity(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	lastID := c.GetHeader("Last-Event-ID")
	if lastID == "" {
		lastID = c.Query("last_event_id")
	}

	sub := h.hub.Subscribe(h.visibility.ActivityFilter(p), lastID)
	defer h.hub.Unsubscribe(sub)
	log := logger.Info().Str("client_id", sub.ID).Uint("user_id", p.ID)
	log.Int("clients", h.hub.ClientCount()).Msg("SSE client connected")

	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Render(-1, sse.Event{
		Event: "ready",
		Retry: sseRetryMillis,
		Data:  gin.H{"client_id": sub.ID},
	})
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{Id: ev.ID, Event: string(ev.Action), Data: ev})
			return true
		case <-ticker.C:
			// comment lines keep idle proxies from closing the stream
			_, err := io.WriteString(w, ": ping\n\n")
			return err == nil
		case <-c.Request.Context().Done():
			return false
		}
	})
	logger.Info().Str("client_id", sub.ID).Msg("SSE client disconnected")
}
