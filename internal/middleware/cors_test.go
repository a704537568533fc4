package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corsRouter(origins []string) *gin.Engine {
	r := gin.New()
	r.Use(CORS(origins))
	r.GET("/api/events/activity", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.PATCH("/api/projects/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func corsRequest(r *gin.Engine, method, path, origin string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Origin", origin)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORS_AnyOrigin(t *testing.T) {
	for _, origins := range [][]string{nil, {"*"}, {"https://app.example.com", "*"}} {
		w := corsRequest(corsRouter(origins), "GET", "/api/events/activity", "https://elsewhere.test", nil)
		require.Equal(t, http.StatusOK, w.Code, origins)
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), origins)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"), origins)
	}
}

func TestCORS_ExplicitOrigins(t *testing.T) {
	r := corsRouter([]string{"https://app.example.com"})

	w := corsRequest(r, "GET", "/api/events/activity", "https://app.example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = corsRequest(r, "GET", "/api/events/activity", "https://evil.test", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_Preflight(t *testing.T) {
	w := corsRequest(corsRouter(nil), "OPTIONS", "/api/projects/1", "https://app.example.com", map[string]string{
		"Access-Control-Request-Method":  "PATCH",
		"Access-Control-Request-Headers": "Authorization, Last-Event-ID",
	})

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PATCH")
	allowed := strings.ToLower(w.Header().Get("Access-Control-Allow-Headers"))
	assert.Contains(t, allowed, "authorization")
	assert.Contains(t, allowed, "last-event-id")
}
