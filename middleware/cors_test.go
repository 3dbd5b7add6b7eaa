package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"crewportal/api/middleware"
)

func TestCORSMiddleware_PreflightAllowsOnlyUsedHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CORSMiddleware())
	r.GET("/api/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/ping", nil))

	require.Equal(t, http.StatusNoContent, w.Code)

	allowed := w.Header().Get("Access-Control-Allow-Headers")
	require.Contains(t, allowed, "Authorization")
	require.Contains(t, allowed, "Content-Type")
	// Clients authenticate with JWTs only; no API-key header is accepted.
	require.NotContains(t, allowed, "X-API-KEY")
}
