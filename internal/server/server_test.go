package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amoylab/castwall/internal/audit"
	"github.com/amoylab/castwall/internal/common/config"
	"github.com/amoylab/castwall/internal/frame"
	"github.com/amoylab/castwall/internal/registry"
	"github.com/amoylab/castwall/internal/session"
	"github.com/amoylab/castwall/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const cookieName = "castwall_session"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixedWindows int

func (n fixedWindows) WindowsCount() int { return int(n) }

type stubHistory struct {
	records []audit.ClientRecord
	limit   int
}

func (h *stubHistory) History(_ context.Context, limit int) ([]audit.ClientRecord, error) {
	h.limit = limit
	return h.records, nil
}

type fixture struct {
	clock *fakeClock
	reg   *registry.Registry
	srv   *Server
}

func testConfig() *config.CastwallConfig {
	return &config.CastwallConfig{
		Session: config.SessionConfig{
			CookieName: cookieName,
			SecretKey:  strings.Repeat("s", 32),
			MaxAge:     time.Hour,
		},
		Registry: config.RegistryConfig{
			ClientTimeout: 10 * time.Second,
			QueueCapacity: 10,
			ReadTimeout:   5 * time.Second,
			MaxWindows:    10,
			FirstClientID: 1000,
		},
	}
}

func newFixture(t *testing.T, windows WindowCounter, opts ...Option) *fixture {
	t.Helper()
	cfg := testConfig()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	reg := registry.New(zap.NewNop(), cfg.Registry, registry.WithClock(clock.Now))
	codec, err := session.NewCodec(cfg.Session)
	require.NoError(t, err)
	if windows == nil {
		windows = fixedWindows(0)
	}
	srv, err := NewServer(zap.NewNop(), cfg, reg, codec, windows, opts...)
	require.NoError(t, err)
	return &fixture{clock: clock, reg: reg, srv: srv}
}

func (f *fixture) get(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

// join registers a new client and returns its cookie
func (f *fixture) join(t *testing.T) *http.Cookie {
	t.Helper()
	w := f.get("/windows_count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	return sessionCookie(t, w.Result())
}

func (f *fixture) publish(t *testing.T, clientID int64, key frame.StreamKey, data string) {
	t.Helper()
	set, ok := f.reg.Queues(clientID)
	require.True(t, ok)
	_, accepted := set.Publish(&frame.Frame{Key: key, Data: []byte(data)})
	require.True(t, accepted)
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", cookieName)
	return nil
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(t, nil)

	w := f.get("/health_check", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
	assert.Empty(t, w.Result().Cookies())
	assert.Equal(t, 0, f.reg.ClientCount())
}

func TestIdentity_IssuesCookieOnce(t *testing.T) {
	f := newFixture(t, nil)

	w := f.get("/client_stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := sessionCookie(t, w.Result())
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	w = f.get("/client_stats", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Result().Cookies())
	assert.Equal(t, 1, f.reg.ClientCount())
	assert.Equal(t, 1, f.reg.SessionCount())
}

func TestIdentity_TamperedCookieStartsNewSession(t *testing.T) {
	f := newFixture(t, nil)
	first := f.join(t)

	forged := &http.Cookie{Name: cookieName, Value: first.Value + "x"}
	w := f.get("/client_stats", forged)
	require.Equal(t, http.StatusOK, w.Code)
	second := sessionCookie(t, w.Result())

	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, 2, f.reg.ClientCount())
}

func TestIdentity_ReapedClientGetsNewID(t *testing.T) {
	f := newFixture(t, nil)
	cookie := f.join(t)

	f.clock.Advance(11 * time.Second)
	assert.Equal(t, []int64{1000}, f.reg.Reap(f.clock.Now()))

	w := f.get("/debug", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Result().Cookies())
	assert.Equal(t, int64(1001), gjson.Get(w.Body.String(), "clients.0.id").Int())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "total_clients").Int())
}

func TestScreenshotTiled(t *testing.T) {
	f := newFixture(t, nil)
	cookie := f.join(t)
	f.publish(t, 1000, frame.TiledKey, "tiled-1")
	f.publish(t, 1000, frame.TiledKey, "tiled-2")

	w := f.get("/screenshot_tiled", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=screenshot_tiled_1735732800.jpg", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "tiled-1", w.Body.String())

	w = f.get("/screenshot_tiled", cookie)
	assert.Equal(t, "tiled-2", w.Body.String())
}

func TestScreenshotWindow(t *testing.T) {
	f := newFixture(t, nil)
	cookie := f.join(t)
	f.publish(t, 1000, frame.WindowKey(2), "window-2")

	w := f.get("/screenshot_window/2", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=screenshot_window_2_1735732800.jpg", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "window-2", w.Body.String())
}

func TestScreenshotWindow_NotFound(t *testing.T) {
	f := newFixture(t, nil)
	cookie := f.join(t)

	for _, path := range []string{
		"/screenshot_window/0",
		"/screenshot_window/abc",
		"/screenshot_window/-1",
		"/screenshot_window/10",
		"/video_feed_window/10",
	} {
		w := f.get(path, cookie)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, "Window not found", w.Body.String(), path)
	}
}

func TestScreenshot_ReapWhileWaiting(t *testing.T) {
	f := newFixture(t, nil)
	cookie := f.join(t)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- f.get("/screenshot_tiled", cookie) }()

	time.Sleep(100 * time.Millisecond)
	f.clock.Advance(11 * time.Second)
	f.reg.Reap(f.clock.Now())

	select {
	case w := <-done:
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "No data available", w.Body.String())
	case <-time.After(3 * time.Second):
		t.Fatal("screenshot request did not return after reap")
	}
}

func TestClientStats(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t)
	cookie := f.join(t)

	w := f.get("/client_stats", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, int64(2), gjson.Get(body, "active_clients").Int())
	assert.Equal(t, int64(2), gjson.Get(body, "total_sessions").Int())
	assert.Equal(t, "2025-01-01T12:00:00.000000", gjson.Get(body, "server_time").String())
}

func TestWindowsCount(t *testing.T) {
	f := newFixture(t, fixedWindows(3))

	w := f.get("/windows_count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":3}`, w.Body.String())
}

func TestDebug(t *testing.T) {
	f := newFixture(t, nil)
	f.join(t)
	f.clock.Advance(5 * time.Second)
	cookie := f.join(t)
	f.clock.Advance(6 * time.Second)

	w := f.get("/debug", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Equal(t, int64(2), gjson.Get(body, "total_clients").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "active_clients").Int())
	assert.Equal(t, float64(10), gjson.Get(body, "cleanup_timeout").Float())

	idle := gjson.Get(body, "clients.0")
	assert.Equal(t, int64(1000), idle.Get("id").Int())
	assert.Equal(t, "12:00:00", idle.Get("last_active").String())
	assert.Equal(t, 11.0, idle.Get("age_seconds").Float())
	assert.False(t, idle.Get("active").Bool())
	sid := idle.Get("sessions.0").String()
	assert.Len(t, sid, 11)
	assert.True(t, strings.HasSuffix(sid, "..."))

	current := gjson.Get(body, "clients.1")
	assert.Equal(t, int64(1001), current.Get("id").Int())
	assert.Equal(t, "12:00:11", current.Get("last_active").String())
	assert.Equal(t, 0.0, current.Get("age_seconds").Float())
	assert.True(t, current.Get("active").Bool())
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, nil)
		w := f.get("/debug/history", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("enabled", func(t *testing.T) {
		h := &stubHistory{records: []audit.ClientRecord{
			{ClientID: 1000, Event: string(registry.EventClientReaped)},
		}}
		f := newFixture(t, nil, WithHistory(h))

		w := f.get("/debug/history?limit=5", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 5, h.limit)
		assert.Equal(t, int64(1000), gjson.Get(w.Body.String(), "records.0.client_id").Int())

		w = f.get("/debug/history", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, defaultHistoryLimit, h.limit)

		w = f.get("/debug/history?limit=nope", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestIndex(t *testing.T) {
	f := newFixture(t, fixedWindows(2))

	w := f.get("/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "Client 1000")
	assert.Contains(t, body, "2 windows")
	assert.Contains(t, body, "1 active client<")
	assert.Contains(t, body, `src="/video_feed_tiled"`)
	assert.Contains(t, body, `src="/video_feed_window/0"`)
	assert.Contains(t, body, `src="/video_feed_window/1"`)
	assert.NotContains(t, body, `/video_feed_window/2`)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New(config.MetricsConfig{Enabled: true, Namespace: "castwall", Path: "/metrics"})
	f := newFixture(t, nil, WithMetrics(m, "/metrics"))
	f.join(t)

	w := f.get("/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "castwall_http_requests_total")
	assert.Equal(t, 1, f.reg.ClientCount())
}

func TestRecovery(t *testing.T) {
	f := newFixture(t, nil)
	f.srv.router.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := f.get("/boom", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", gjson.Get(w.Body.String(), "error").String())
}
