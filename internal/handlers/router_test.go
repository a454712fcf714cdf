package handlers

import (
	"errors"
	"net/http"
	"testing"
)

func TestRouterServesHealthz(t *testing.T) {
	router := NewRouter()

	rec := performRequest(t, router, http.MethodGet, "/healthz", nil)

	requireStatus(t, rec, http.StatusOK)
	var payload map[string]any
	decodeResponse(t, rec, &payload)
	if payload["status"] != "ok" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestRouterReadyzReportsFailure(t *testing.T) {
	health := NewHealthHandlers(func() error {
		return errors.New("firestore unreachable")
	})
	router := NewRouter(WithHealthHandlers(health))

	rec := performRequest(t, router, http.MethodGet, "/readyz", nil)

	requireStatus(t, rec, http.StatusServiceUnavailable)
}

func TestRouterWritesNotFoundEnvelope(t *testing.T) {
	router := NewRouter()

	rec := performRequest(t, router, http.MethodGet, "/nope", nil)

	requireStatus(t, rec, http.StatusNotFound)
	var payload map[string]any
	decodeResponse(t, rec, &payload)
	if payload["error"] != "route_not_found" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestRouterMarksUnwiredGroupsNotImplemented(t *testing.T) {
	router := NewRouter()

	rec := performRequest(t, router, http.MethodGet, "/api/v1/orders/ord_1", nil)

	requireStatus(t, rec, http.StatusNotImplemented)
}
