package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/aptiq-proctor/internal/config"
	"github.com/stemsi/aptiq-proctor/internal/gateway"
	"github.com/stemsi/aptiq-proctor/internal/logger"
	ws "github.com/stemsi/aptiq-proctor/internal/websocket"
)

const (
	pingEvery    = 25 * time.Second
	maxBackoff   = 30 * time.Second
	writeTimeout = 5 * time.Second
)

func main() {
	testID := flag.String("test", "", "only show events for this test id")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	token := cfg.Token
	if token == "" {
		token = gateway.NewTokenFile(cfg.TokenFile).Token()
	}
	if token == "" {
		log.Fatal().Msg("No token. Run `aptiq login` as an instructor or set APTIQ_TOKEN")
	}

	target, err := feedURL(cfg.APIURL, token, *testID)
	if err != nil {
		log.Fatal().Err(err).Str("api_url", cfg.APIURL).Msg("Invalid API URL")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backoff := time.Second
	for {
		err := watch(ctx, target, log)
		if ctx.Err() != nil {
			log.Info().Msg("Stopped")
			return
		}

		var hs *handshakeError
		if errors.As(err, &hs) && (hs.status == http.StatusUnauthorized || hs.status == http.StatusForbidden) {
			log.Fatal().Int("status", hs.status).Msg("The proctor feed refused this token")
		}

		log.Warn().Err(err).Dur("retry_in", backoff).Msg("Feed disconnected")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// feedURL turns the API base URL into the proctor websocket address.
func feedURL(apiURL, token, testID string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/proctor"
	q := url.Values{}
	q.Set("token", token)
	if testID != "" {
		q.Set("test_id", testID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type handshakeError struct {
	status int
	err    error
}

func (e *handshakeError) Error() string { return e.err.Error() }

func watch(ctx context.Context, target string, log zerolog.Logger) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return &handshakeError{status: resp.StatusCode, err: err}
		}
		return err
	}
	defer conn.Close()
	log.Info().Msg("Connected to proctor feed")

	done := make(chan struct{})
	defer close(done)
	go keepalive(ctx, conn, done, log)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("server closed the feed")
			}
			return err
		}

		var ev ws.ProctorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Debug().Err(err).Msg("Skipping unreadable message")
			continue
		}
		logEvent(log, ev, data)
	}
}

// keepalive owns every write on conn after the handshake.
func keepalive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}, log zerolog.Logger) {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
			_ = conn.Close()
			return
		case <-ticker.C:
			if err := ws.WriteAction(conn, ws.ActionPing); err != nil {
				log.Debug().Err(err).Msg("Ping failed")
				_ = conn.Close()
				return
			}
		}
	}
}

func logEvent(log zerolog.Logger, ev ws.ProctorEvent, raw []byte) {
	switch ev.Event {
	case ws.EventAttemptStarted:
		log.Info().
			Str("attempt_id", ev.AttemptID).
			Str("test_id", ev.TestID).
			Str("student", ev.UserName).
			Msg("Attempt started")
	case ws.EventWarning:
		log.Warn().
			Str("attempt_id", ev.AttemptID).
			Str("student", ev.UserName).
			Str("type", ev.WarningType).
			Str("details", ev.Details).
			Int("warnings", ev.Warnings).
			Msg("Proctoring warning")
	case ws.EventSubmitted:
		log.Info().
			Str("attempt_id", ev.AttemptID).
			Str("student", ev.UserName).
			Str("trigger", ev.Trigger).
			Float64("score", ev.Score).
			Int("total_marks", ev.TotalMarks).
			Float64("percentage", ev.Percentage).
			Msg("Attempt submitted")
	case ws.EventPong:
	case ws.EventError:
		var e ws.ErrorResponse
		_ = json.Unmarshal(raw, &e)
		log.Error().Str("error", e.Error).Msg("Feed error")
	default:
		log.Debug().Str("event", string(ev.Event)).Msg("Unknown event")
	}
}
