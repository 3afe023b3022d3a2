package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"preheat/internal/types"
)

func TestRequestIDMiddleware_GeneratesID(t *testing.T) {
	var ctxID string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = types.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	headerID := w.Header().Get("X-Request-Id")
	if headerID == "" {
		t.Fatal("expected generated X-Request-Id header")
	}
	if ctxID != headerID {
		t.Errorf("context id %q does not match header id %q", ctxID, headerID)
	}
	if len(headerID) != 32 {
		t.Errorf("expected 32 hex chars, got %d (%q)", len(headerID), headerID)
	}
}

func TestRequestIDMiddleware_PropagatesIncomingID(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "client-supplied-id")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if got := w.Header().Get("X-Request-Id"); got != "client-supplied-id" {
		t.Errorf("expected incoming id to be reused, got %q", got)
	}
}

func TestMountRoutes_HealthAndMiddleware(t *testing.T) {
	s := newTestServer(t)
	s.MountRoutes()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from /health, got %d", w.Code)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("expected request id header from global middleware")
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers from global middleware")
	}
}

func TestMountRoutes_V1Registrars(t *testing.T) {
	s := newTestServer(t)
	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/devices/{deviceID}/model", func(w http.ResponseWriter, req *http.Request) {
			JSON(w, req, http.StatusOK, APIResponse{Data: map[string]string{
				"device_id": chi.URLParam(req, "deviceID"),
			}})
		})
	})
	s.MountRoutes()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/devices/dev1/model", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 from registered v1 route, got %d", w.Code)
	}
}

func TestMountRoutes_PanicInHandlerReturnsJSON500(t *testing.T) {
	s := newTestServer(t)
	s.V1RouteRegistrars = append(s.V1RouteRegistrars, func(r chi.Router) {
		r.Get("/boom", func(w http.ResponseWriter, req *http.Request) {
			panic("handler bug")
		})
	})
	s.MountRoutes()

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON error response, got Content-Type %q", ct)
	}
}
