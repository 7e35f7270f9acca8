package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/builder-auth/internal/config"
)

const testProjectID = "3f9a1f6e-8f0f-4f57-9a4a-6f2b9a3d1c2e"

func corsRouter(cfg config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS(cfg))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func baseCORSConfig() config.Config {
	return config.Config{
		CORSAllowedOrigins: []string{"https://console.example.com"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Authorization", "Content-Type"},
	}
}

func TestCORSListedOrigin(t *testing.T) {
	r := corsRouter(baseCORSConfig())

	req := httptest.NewRequest(http.MethodGet, "https://apps.example.com/ping", nil)
	req.Header.Set("Origin", "https://console.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSBuilderSubdomainAllowed(t *testing.T) {
	r := corsRouter(baseCORSConfig())

	req := httptest.NewRequest(http.MethodGet, "https://apps.example.com/ping", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	req.Header.Set("Origin", "https://p-"+testProjectID+".apps.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://p-"+testProjectID+".apps.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSForeignOriginGetsNoHeaders(t *testing.T) {
	r := corsRouter(baseCORSConfig())

	req := httptest.NewRequest(http.MethodGet, "https://apps.example.com/ping", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflight(t *testing.T) {
	r := corsRouter(baseCORSConfig())

	req := httptest.NewRequest(http.MethodOptions, "https://apps.example.com/ping", nil)
	req.Header.Set("Origin", "https://console.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
}

func TestRateLimiterDisabled(t *testing.T) {
	var limiter *RateLimiter
	handlerFn := limiter.Handler()
	require.NotNil(t, handlerFn)
}

func TestRateLimiterThrottles(t *testing.T) {
	limiter := NewRateLimiter(60)

	allowed := 0
	for i := 0; i < 100; i++ {
		if limiter.allow("10.0.0.1") {
			allowed++
		}
	}
	require.Greater(t, allowed, 0)
	require.Less(t, allowed, 100)

	// A different client gets its own bucket.
	require.True(t, limiter.allow("10.0.0.2"))
}
