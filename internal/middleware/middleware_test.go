package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(3, time.Minute, clock.Now)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("a"))
		clock.Advance(10 * time.Second)
	}
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "clients are limited independently")

	// First request leaves the window 60s after it was made
	clock.Advance(30 * time.Second)
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(5, time.Minute, clock.Now)

	rl.Allow("a")
	rl.Allow("b")
	assert.Equal(t, 2, rl.Clients())

	clock.Advance(2 * time.Minute)
	rl.Allow("c")
	assert.Equal(t, 1, rl.Clients())
}

func TestRateLimit_Middleware(t *testing.T) {
	r := gin.New()
	r.POST("/chat", RateLimit(NewRateLimiter(1, time.Minute, nil)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chat", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), `"code":429`)
}

func authRouter(required bool) *gin.Engine {
	r := gin.New()
	r.GET("/secure", Auth("secret", required), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubject))
	})
	return r
}

func TestAuth(t *testing.T) {
	now := time.Now()
	admin, err := IssueToken("secret", "ops", "admin", time.Hour, now)
	require.NoError(t, err)
	student, err := IssueToken("secret", "s1", "student", time.Hour, now)
	require.NoError(t, err)
	expired, err := IssueToken("secret", "ops", "admin", time.Hour, now.Add(-2*time.Hour))
	require.NoError(t, err)
	forged, err := IssueToken("other", "ops", "admin", time.Hour, now)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"admin", "Bearer " + admin, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong role", "Bearer " + student, http.StatusForbidden},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged, http.StatusUnauthorized},
	}
	r := authRouter(true)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "ops", w.Body.String())
			}
		})
	}
}

func TestAuth_Disabled(t *testing.T) {
	w := httptest.NewRecorder()
	authRouter(false).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/secure", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIssueToken_RequiresSecret(t *testing.T) {
	_, err := IssueToken("", "ops", "admin", time.Hour, time.Now())
	assert.Error(t, err)
}

type requestRecorder struct {
	route  string
	status int
}

func (r *requestRecorder) ObserveRequest(_, route string, status int, _ time.Duration) {
	r.route, r.status = route, status
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := &requestRecorder{}

	r := gin.New()
	r.Use(Logger(zap.New(core), obs))
	r.GET("/runs/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/runs/42?verbose=1", nil))

	assert.Equal(t, "/runs/:id", obs.route)
	assert.Equal(t, http.StatusNotFound, obs.status)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	assert.Equal(t, "/runs/42?verbose=1", entry.ContextMap()["path"])
	assert.EqualValues(t, 404, entry.ContextMap()["status"])
}
