package router_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/aptiq-proctor/internal/config"
	"github.com/stemsi/aptiq-proctor/internal/gateway"
	"github.com/stemsi/aptiq-proctor/internal/handler"
	"github.com/stemsi/aptiq-proctor/internal/middleware"
	"github.com/stemsi/aptiq-proctor/internal/model"
	"github.com/stemsi/aptiq-proctor/internal/monitor"
	"github.com/stemsi/aptiq-proctor/internal/repository"
	"github.com/stemsi/aptiq-proctor/internal/response"
	"github.com/stemsi/aptiq-proctor/internal/router"
	"github.com/stemsi/aptiq-proctor/internal/service"
	"github.com/stemsi/aptiq-proctor/internal/session"
	ws "github.com/stemsi/aptiq-proctor/internal/websocket"
)

const fixtureYAML = `
users:
  - id: stu-1
    name: Siti Rahma
    email: siti@example.com
    password: password123
  - id: stu-2
    name: Budi Santoso
    email: budi@example.com
    password: password123
  - id: ins-1
    name: Dewi Lestari
    email: dewi@example.com
    role: instructor
    password: password123
tests:
  - id: t1
    title: Quantitative Aptitude
    time_limit_minutes: 10
    questions:
      - id: q1
        section: quant
        question_type: mcq
        question_text: "2 + 2 = ?"
        options: ["3", "4", "5"]
        answer: B
      - id: q2
        section: verbal
        marks: 2
        question_type: text
        question_text: Antonym of "ancient"?
        answer: modern
`

type env struct {
	engine   *gin.Engine
	hub      *ws.Hub
	attempts *service.AttemptService
}

func newEnv(t *testing.T, limiter *middleware.RateLimiter) *env {
	t.Helper()

	f, err := repository.ParseFixture([]byte(fixtureYAML))
	require.NoError(t, err)
	catalog, err := repository.NewCatalog(f, func(pw string) (string, error) {
		return service.HashPassword(pw, 4)
	})
	require.NoError(t, err)

	cfg := &config.Config{
		GinMode:          gin.TestMode,
		JWTSecret:        "router-test-secret",
		JWTExpiry:        time.Hour,
		BrotliQuality:    5,
		DefaultTimeLimit: 5 * time.Minute,
	}
	log := zerolog.Nop()
	hub := ws.NewHub()
	store := repository.NewMemoryAttemptStore()

	authService := service.NewAuthService(cfg, catalog)
	attempts := service.NewAttemptService(catalog, store, hub, cfg.DefaultTimeLimit, log)
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Test:    handler.NewTestHandler(service.NewTestService(catalog)),
		Attempt: handler.NewAttemptHandler(attempts),
		Monitor: handler.NewMonitorHandler(attempts, hub, log),
		WS:      handler.NewWSHandler(hub, log, nil),
	}
	return &env{
		engine:   router.SetupRouter(authService, handlers, cfg, limiter, log),
		hub:      hub,
		attempts: attempts,
	}
}

func (e *env) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func (e *env) login(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/auth/login", "", model.LoginRequest{Email: email, Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sess model.AuthSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.Token)
	return sess.Token
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorBody {
	t.Helper()
	var body response.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	e := newEnv(t, nil)
	w := e.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLogin(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "not-an-email", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, response.ErrValidation, body.Code)
	assert.Contains(t, body.Fields, "email")
	assert.NotEmpty(t, body.RequestID)

	w = e.do(t, http.MethodPost, "/api/auth/login", "", model.LoginRequest{Email: "siti@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrInvalidCredentials, decodeError(t, w).Code)

	token := e.login(t, "SITI@example.com")
	w = e.do(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var me model.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "stu-1", me.ID)
	assert.Equal(t, model.RoleStudent, me.Role)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	e := newEnv(t, nil)

	w := e.do(t, http.MethodGet, "/api/tests", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTokenRequired, decodeError(t, w).Code)

	w = e.do(t, http.MethodGet, "/api/tests", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTokenInvalid, decodeError(t, w).Code)
}

func TestCatalogRoutes(t *testing.T) {
	e := newEnv(t, nil)
	token := e.login(t, "siti@example.com")

	w := e.do(t, http.MethodGet, "/api/tests", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, middleware.CacheCatalog, w.Header().Get("Cache-Control"))
	var tests []model.Test
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tests))
	require.Len(t, tests, 1)
	assert.Equal(t, 3, tests[0].TotalMarks)
	assert.Equal(t, 2, tests[0].QuestionCount)

	w = e.do(t, http.MethodGet, "/api/tests/t1", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/tests/nope", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrNotFound, decodeError(t, w).Code)
}

func TestAttemptLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	token := e.login(t, "siti@example.com")

	w := e.do(t, http.MethodPost, "/api/attempts/start", token, model.StartAttemptRequest{TestID: "t1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, middleware.CacheNone, w.Header().Get("Cache-Control"))
	var started model.StartedAttempt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	id := started.Attempt.ID
	require.NotEmpty(t, id)
	require.Len(t, started.Questions, 2)
	assert.NotContains(t, w.Body.String(), "modern", "answer keys must not leak")

	w = e.do(t, http.MethodPost, "/api/attempts/start", token, model.StartAttemptRequest{TestID: "t1"})
	require.Equal(t, http.StatusConflict, w.Code)
	conflict := decodeError(t, w)
	assert.Equal(t, response.ErrAttemptInProgress, conflict.Code)
	assert.Equal(t, id, conflict.AttemptID)

	w = e.do(t, http.MethodPost, "/api/attempts/start", token, model.StartAttemptRequest{TestID: "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = e.do(t, http.MethodPut, "/api/attempts/"+id+"/answer", token, model.UpdateAnswerRequest{QuestionID: "q9", Answer: "A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrUnknownQuestion, decodeError(t, w).Code)

	w = e.do(t, http.MethodPut, "/api/attempts/"+id+"/answer", token, model.UpdateAnswerRequest{QuestionID: "q1", Answer: "B"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodPut, "/api/attempts/"+id+"/warning", token, model.RecordWarningRequest{Type: "screenshot"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	bad := decodeError(t, w)
	assert.Equal(t, response.ErrValidation, bad.Code)
	assert.Equal(t, "type must be a known violation type", bad.Fields["type"])

	w = e.do(t, http.MethodPut, "/api/attempts/"+id+"/warning", token, model.RecordWarningRequest{Type: "tab_switch", Details: "Tab switch detected"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"warnings":1}`, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/attempts/"+id+"/review", token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.ErrAttemptNotDone, decodeError(t, w).Code)

	w = e.do(t, http.MethodPost, "/api/attempts/"+id+"/submit", token, model.SubmitAttemptRequest{
		Answers:          map[string]string{"q1": "B", "q2": "modern"},
		TimeTakenSeconds: 42,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result model.SubmitResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3.0, result.Score)
	assert.Equal(t, 3, result.TotalMarks)
	assert.Equal(t, 100.0, result.Percentage)
	assert.Equal(t, model.SectionScore{Correct: 1, Total: 1}, result.Breakdown["quant"])

	w = e.do(t, http.MethodPost, "/api/attempts/"+id+"/submit", token, model.SubmitAttemptRequest{})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.ErrAttemptCompleted, decodeError(t, w).Code)

	w = e.do(t, http.MethodGet, "/api/attempts/"+id+"/review", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var review model.Review
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &review))
	assert.Equal(t, 42, review.Attempt.TimeTakenSeconds)
	assert.Equal(t, 1, review.Attempt.Warnings)
	require.Len(t, review.Questions, 2)
	assert.True(t, review.Questions[0].IsCorrect)
	assert.Equal(t, "modern", review.Questions[1].CorrectAnswer)

	other := e.login(t, "budi@example.com")
	w = e.do(t, http.MethodGet, "/api/attempts/"+id+"/review", other, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProctorRoutesRequireRole(t *testing.T) {
	e := newEnv(t, nil)
	student := e.login(t, "siti@example.com")
	instructor := e.login(t, "dewi@example.com")

	w := e.do(t, http.MethodGet, "/api/proctor/attempts", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, response.ErrProctorAccessOnly, decodeError(t, w).Code)

	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/attempts/start", student, model.StartAttemptRequest{TestID: "t1"}).Code)

	w = e.do(t, http.MethodGet, "/api/proctor/attempts?test_id=t1", instructor, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap model.MonitorSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	require.Len(t, snap.Open, 1)
	assert.Equal(t, "Siti Rahma", snap.Open[0].UserName)
	assert.Equal(t, "stu-1", snap.Open[0].UserID)
}

func TestLoginRateLimited(t *testing.T) {
	e := newEnv(t, middleware.NewRateLimiter(2, time.Minute))
	bad := model.LoginRequest{Email: "siti@example.com", Password: "wrong-password"}

	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/api/auth/login", "", bad).Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/api/auth/login", "", bad).Code)

	w := e.do(t, http.MethodPost, "/api/auth/login", "", bad)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, response.ErrRateLimitExceeded, decodeError(t, w).Code)
}

func TestProctorWebSocket(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)

	student := e.login(t, "siti@example.com")
	instructor := e.login(t, "dewi@example.com")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/proctor"

	_, resp, err := gorillaws.DefaultDialer.Dial(wsURL+"?token="+student, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL+"?token="+instructor+"&test_id=t1", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	_, err = e.attempts.Start(context.Background(), "stu-1", "t1")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev ws.ProctorEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ws.EventAttemptStarted, ev.Event)
	assert.Equal(t, "Siti Rahma", ev.UserName)
	assert.Equal(t, "t1", ev.TestID)

	require.NoError(t, conn.WriteJSON(ws.RequestEnvelope{Action: ws.ActionPing}))
	var pong ws.PongResponse
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, ws.EventPong, pong.Event)

	conn.Close()
	require.Eventually(t, func() bool { return e.hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestProctorMonitorSSE(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)
	instructor := e.login(t, "dewi@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/proctor/monitor", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+instructor)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Accept-Encoding", "br")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Content-Encoding"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); l != "" {
				return l
			}
		}
		return ""
	}
	assert.Equal(t, "event:snapshot", next())
	assert.True(t, strings.HasPrefix(next(), "data:"))

	_, err = e.attempts.Start(context.Background(), "stu-2", "t1")
	require.NoError(t, err)
	assert.Equal(t, "event:attempt_started", next())
	data := strings.TrimPrefix(next(), "data:")
	var ev ws.ProctorEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "Budi Santoso", ev.UserName)
}

// idleClock never ticks; the test submits by hand.
type idleClock struct{}

func (idleClock) Start(int, func(int), func()) {}
func (idleClock) Stop()                        {}

type quietHost struct {
	mu      sync.Mutex
	handler monitor.Handler
}

func (h *quietHost) Subscribe(fn monitor.Handler) func() {
	h.mu.Lock()
	h.handler = fn
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		h.handler = nil
		h.mu.Unlock()
	}
}

func (h *quietHost) EnterFullscreen() error { return nil }
func (h *quietHost) ExitFullscreen() error  { return nil }

func (h *quietHost) emit(ev monitor.Event) {
	h.mu.Lock()
	fn := h.handler
	h.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func TestControllerAgainstSandbox(t *testing.T) {
	e := newEnv(t, nil)
	srv := httptest.NewServer(e.engine)
	t.Cleanup(srv.Close)

	anon := gateway.NewHTTPGateway(srv.URL, nil, 5*time.Second, zerolog.Nop())
	sess, err := anon.Login(context.Background(), "siti@example.com", "password123")
	require.NoError(t, err)
	gw := gateway.NewHTTPGateway(srv.URL, gateway.StaticToken(sess.Token), 5*time.Second, zerolog.Nop())

	// A stale attempt left open by an earlier run is abandoned on start.
	stale, err := e.attempts.Start(context.Background(), "stu-1", "t1")
	require.NoError(t, err)

	host := &quietHost{}
	ctrl := session.New(gw, idleClock{}, host, "t1", session.Options{}, zerolog.Nop())
	t.Cleanup(ctrl.Close)

	require.NoError(t, ctrl.Start(context.Background()))
	view := ctrl.Snapshot()
	require.Equal(t, session.StatusInProgress, view.Status)
	assert.NotEqual(t, stale.Attempt.ID, view.AttemptID)
	assert.Equal(t, 600, view.TimeLeft)

	ctrl.SelectOption(0, 1)
	ctrl.GoTo(1)
	ctrl.SelectAnswer(1, "modern")
	host.emit(monitor.Event{Kind: monitor.EventVisibilityHidden})

	require.Eventually(t, func() bool {
		snap, err := e.attempts.Monitor(context.Background(), "t1")
		return err == nil && len(snap.Open) == 1 && snap.Open[0].Warnings == 1 && snap.Open[0].Answered == 2
	}, 2*time.Second, 10*time.Millisecond)

	ctrl.Submit()
	require.Eventually(t, func() bool {
		return ctrl.Snapshot().Status == session.StatusSubmitted
	}, 2*time.Second, 10*time.Millisecond)

	view = ctrl.Snapshot()
	require.NotNil(t, view.Result)
	assert.Equal(t, 3.0, view.Result.Score)
	assert.Equal(t, 100.0, view.Result.Percentage)
	assert.Equal(t, session.TriggerUser, view.Trigger)
	assert.Equal(t, 1, view.Warnings)

	review, err := gw.FetchReview(context.Background(), view.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, 1, review.Attempt.Warnings)
	assert.Equal(t, 3.0, review.Result().Score)
}
