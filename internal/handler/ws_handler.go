package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/aptiq-proctor/internal/middleware"
	"github.com/stemsi/aptiq-proctor/internal/response"
	ws "github.com/stemsi/aptiq-proctor/internal/websocket"
)

const pingInterval = 30 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams proctor events to instructors.
type WSHandler struct {
	broker   ws.Broker
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(broker ws.Broker, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		broker:   broker,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// ProctorStream godoc
// WS /ws/proctor?test_id=
// Upgrades to WebSocket and forwards attempt events. An optional test_id
// narrows the feed to one test.
func (h *WSHandler) ProctorStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testFilter := c.Query("test_id")

	events, cancel, err := h.broker.Subscribe(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Proctor subscribe failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	wsLog := h.log.With().
		Str("user_id", claims.UserID).
		Str("test_filter", testFilter).
		Logger()
	wsLog.Info().Msg("Proctor connected")

	// The reader only surfaces pings; all writes stay on this goroutine.
	pings := make(chan struct{}, 1)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			action, err := ws.ReadAction(conn)
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				} else {
					wsLog.Debug().Msg("Connection closed")
				}
				return
			}
			if action != ws.ActionPing {
				wsLog.Warn().Str("action", string(action)).Msg("Unknown action")
				continue
			}
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}()

	keepalive := time.NewTicker(pingInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-closed:
			return
		case <-pings:
			if err := ws.WritePong(conn); err != nil {
				return
			}
		case <-keepalive.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				ws.WriteError(conn, "event feed closed")
				return
			}
			if testFilter != "" && ev.TestID != testFilter {
				continue
			}
			if err := ws.WriteEvent(conn, ev); err != nil {
				wsLog.Debug().Err(err).Msg("Proctor write failed")
				return
			}
		}
	}
}
