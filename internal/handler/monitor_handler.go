package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/middleware"
	"github.com/stemsi/aptiq-proctor/internal/response"
	"github.com/stemsi/aptiq-proctor/internal/service"
	ws "github.com/stemsi/aptiq-proctor/internal/websocket"
)

const (
	keepAliveInterval = 30 * time.Second
	snapshotTimeout   = 5 * time.Second
)

// MonitorHandler serves the proctor snapshot and its SSE feed.
type MonitorHandler struct {
	attemptService *service.AttemptService
	broker         ws.Broker
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(attemptService *service.AttemptService, broker ws.Broker, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		attemptService: attemptService,
		broker:         broker,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// Snapshot godoc
// GET /api/proctor/attempts?test_id=
func (h *MonitorHandler) Snapshot(c *gin.Context) {
	snap, err := h.attemptService.Monitor(c.Request.Context(), c.Query("test_id"))
	if err != nil {
		h.log.Error().Err(err).Msg("Monitor snapshot failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// MonitorSSE godoc
// GET /api/proctor/monitor?test_id=
// Sends a snapshot of open attempts, then every proctor event as it happens.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testID := c.Query("test_id")
	reqCtx := c.Request.Context()

	// Subscribe before the snapshot so nothing falls between the two.
	events, cancel, err := h.broker.Subscribe(reqCtx)
	if err != nil {
		h.log.Error().Err(err).Msg("Monitor subscribe failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer cancel()

	snapCtx, snapCancel := context.WithTimeout(reqCtx, snapshotTimeout)
	snap, err := h.attemptService.Monitor(snapCtx, testID)
	snapCancel()
	if err != nil {
		h.log.Error().Err(err).Msg("Monitor snapshot failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("snapshot", snap)
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("user_id", claims.UserID).Str("test_id", testID).Msg("Proctor attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("user_id", claims.UserID).Msg("Proctor disconnected from live monitor SSE")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if testID != "" && ev.TestID != testID {
				continue
			}
			c.SSEvent(string(ev.Event), ev)
			c.Writer.Flush()
		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}
