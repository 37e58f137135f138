package middlewares

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicservice-be/models"
	authUtils "civicservice-be/utils"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var tc = authUtils.TokenConfig{Secret: "test-secret", Issuer: "civicservice", Audience: "civicservice", TTL: time.Hour}

func init() {
	gin.SetMode(gin.TestMode)
}

func tokenFor(t *testing.T, roles ...models.Role) string {
	t.Helper()
	token, _, err := tc.GenerateToken(&models.User{ID: "user-1", Email: "u@city.gov", Roles: roles}, time.Now())
	require.NoError(t, err)
	return token
}

func whoami(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": UserIDFrom(c), "roles": RolesFrom(c)})
}

func TestAuthMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/me", AuthMiddleware(tc), whoami)

	tests := []struct {
		name   string
		setup  func(req *http.Request)
		status int
	}{
		{"no token", func(req *http.Request) {}, http.StatusUnauthorized},
		{"bearer header", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+tokenFor(t)) }, http.StatusOK},
		{"raw header", func(req *http.Request) { req.Header.Set("Authorization", tokenFor(t)) }, http.StatusOK},
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: AuthCookieName, Value: tokenFor(t)}) }, http.StatusOK},
		{"garbage", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tt.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"user_id":"user-1"`)
			}
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/me", OptionalAuth(tc), whoami)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":""`)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":""`)

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, models.RoleCitizen))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), `"user_id":"user-1"`)
}

func TestRequireRole(t *testing.T) {
	r := gin.New()
	r.PUT("/status", AuthMiddleware(tc), RequireRole(models.RoleStaff, models.RoleAdmin), whoami)

	tests := []struct {
		name   string
		roles  []models.Role
		status int
	}{
		{"citizen", []models.Role{models.RoleCitizen}, http.StatusForbidden},
		{"staff", []models.Role{models.RoleStaff}, http.StatusOK},
		{"admin", []models.Role{models.RoleAdmin}, http.StatusOK},
		{"no roles", nil, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/status", nil)
			req.Header.Set("Authorization", "Bearer "+tokenFor(t, tt.roles...))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func hit(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/limited", nil)
	req.RemoteAddr = ip + ":1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	r := gin.New()
	r.POST("/limited", RateLimiter("submit", NewRedisLimiter(client, "test", 2, time.Minute)), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	assert.Equal(t, http.StatusCreated, hit(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusCreated, hit(r, "10.0.0.1").Code)

	w := hit(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// other clients have their own window
	assert.Equal(t, http.StatusCreated, hit(r, "10.0.0.2").Code)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusCreated, hit(r, "10.0.0.1").Code)
}

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	r := gin.New()
	r.POST("/limited", RateLimiter("auth", NewRedisLimiter(client, "test", 1, time.Minute)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
}

func TestLocalRateLimiter(t *testing.T) {
	r := gin.New()
	r.POST("/limited", RateLimiter("auth", NewLocalLimiter(3, time.Hour)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "10.0.0.1").Code)
	}
	w := hit(r, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, hit(r, "10.0.0.9").Code)
}

func TestLocalLimiterEvictsIdleClients(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	l := NewLocalLimiter(2, time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	allow := func(key string) bool {
		t.Helper()
		ok, _, err := l.Allow(ctx, key)
		require.NoError(t, err)
		return ok
	}

	assert.True(t, allow("ip:a"))
	assert.True(t, allow("ip:b"))
	assert.True(t, allow("ip:b"))
	assert.False(t, allow("ip:b"))

	now = now.Add(30 * time.Second)
	assert.True(t, allow("ip:a"))

	now = now.Add(31 * time.Second)
	assert.True(t, allow("ip:c"))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.Contains(t, l.buckets, "ip:a")
	assert.Contains(t, l.buckets, "ip:c")
	assert.NotContains(t, l.buckets, "ip:b", "idle for a full window")
	assert.Len(t, l.buckets, 2)
}
