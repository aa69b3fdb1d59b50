package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func internalAuthRouter(apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(InternalAuthMiddleware(apiKey))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestInternalAuthAcceptsConfiguredKey(t *testing.T) {
	router := internalAuthRouter("sekrit")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Internal-API-Key", "sekrit")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInternalAuthRejectsWrongKey(t *testing.T) {
	router := internalAuthRouter("sekrit")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Internal-API-Key", "guess")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInternalAuthRejectsMissingHeader(t *testing.T) {
	router := internalAuthRouter("sekrit")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInternalAuthRefusesWhenUnconfigured(t *testing.T) {
	router := internalAuthRouter("")

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Internal-API-Key", "anything")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
