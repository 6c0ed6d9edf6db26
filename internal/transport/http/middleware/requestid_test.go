package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ErlanBelekov/recurring-payments/internal/requestid"
	"github.com/ErlanBelekov/recurring-payments/internal/transport/http/middleware"
	"github.com/gin-gonic/gin"
)

func newRequestIDEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Security())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, requestid.FromContext(c.Request.Context()))
	})
	return r
}

func TestRequestID_PreservesIncoming(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestid.Header, "abc-123")
	newRequestIDEngine().ServeHTTP(w, req)

	if got := w.Body.String(); got != "abc-123" {
		t.Errorf("context id = %q, want abc-123", got)
	}
	if got := w.Header().Get(requestid.Header); got != "abc-123" {
		t.Errorf("header = %q, want abc-123", got)
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	w := httptest.NewRecorder()
	newRequestIDEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	id := w.Header().Get(requestid.Header)
	if id == "" || id != w.Body.String() {
		t.Errorf("expected generated id echoed in header and context, got header=%q body=%q", id, w.Body.String())
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}
