package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"microcredit-gateway/internal/adapter/http/middleware"
	redisStore "microcredit-gateway/internal/adapter/storage/redis"
	"microcredit-gateway/internal/clock"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func setupRateLimitRouter(store middleware.RateLimitStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	rule := middleware.RateLimitRule{Limit: 3, Window: time.Minute}
	// Stand-in for EphemeralAuth: the subject comes from a header.
	setSubject := func(c *gin.Context) {
		if sub := c.GetHeader("X-Test-Sub"); sub != "" {
			c.Set(middleware.CtxSubject, sub)
		}
		c.Next()
	}

	r.GET("/test", setSubject, middleware.RateLimiter(store, "test", rule, zerolog.Nop()), func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	return r
}

func newMiniredisStore(t *testing.T) *redisStore.RateLimitStore {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisStore.NewRateLimitStore(client, clock.NewSystem())
}

func doGet(router *gin.Engine, sub string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, "/test", nil)
	if sub != "" {
		req.Header.Set("X-Test-Sub", sub)
	}
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimiter_AllowsWithinLimit(t *testing.T) {
	router := setupRateLimitRouter(newMiniredisStore(t))

	for i := 0; i < 3; i++ {
		w := doGet(router, "")
		assert.Equal(t, 200, w.Code, "request %d should succeed", i+1)
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	router := setupRateLimitRouter(newMiniredisStore(t))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, doGet(router, "").Code)
	}

	w := doGet(router, "")
	assert.Equal(t, 429, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")
}

func TestRateLimiter_KeysBySubject(t *testing.T) {
	router := setupRateLimitRouter(newMiniredisStore(t))

	for i := 0; i < 3; i++ {
		assert.Equal(t, 200, doGet(router, "user:1").Code)
	}
	assert.Equal(t, 429, doGet(router, "user:1").Code)

	// Independent counter
	assert.Equal(t, 200, doGet(router, "user:2").Code)
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int64, time.Duration) (*redisStore.RateLimitResult, error) {
	return nil, errors.New("redis unavailable")
}

func TestRateLimiter_DegradedModeAllows(t *testing.T) {
	router := setupRateLimitRouter(failingStore{})

	for i := 0; i < 5; i++ {
		assert.Equal(t, 200, doGet(router, "").Code)
	}
}

func TestDefaultRateLimitRules(t *testing.T) {
	rules := middleware.DefaultRateLimitRules()
	for _, group := range []string{"credits", "balance", "token_issue", "admin", "pubkey"} {
		rule, ok := rules[group]
		assert.True(t, ok, group)
		assert.Positive(t, rule.Limit, group)
		assert.Equal(t, time.Minute, rule.Window, group)
	}
}
