package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dukapos/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}
}

func TestPINLoginRateLimitIsSeparate(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.PINLoginRequest{PIN: "0000"})

	// The PIN limiter allows 8 attempts per window.
	for i := 0; i < 9; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/pin-login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "10.0.0.9:4000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 8 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 8 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 9 expected 429, got %d", res.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", res.Code)
	}
}

func TestMutatingRequestsRequireCSRFToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAdmin(t, api)

	rec := doJSON(t, api, http.MethodPost, "/api/v1/products", token, "", domain.ProductSaveRequest{
		Code: "CSRF-1", Name: "Blocked", Price: decimalFromInt(10), Cost: decimalFromInt(5),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without CSRF token, got %d", rec.Code)
	}

	rec = doJSON(t, api, http.MethodPost, "/api/v1/products", token, "bogus-token", domain.ProductSaveRequest{
		Code: "CSRF-2", Name: "Blocked", Price: decimalFromInt(10), Cost: decimalFromInt(5),
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with invalid CSRF token, got %d", rec.Code)
	}

	csrf := csrfToken(t, api)
	rec = doJSON(t, api, http.MethodPost, "/api/v1/products", token, csrf, domain.ProductSaveRequest{
		Code: "CSRF-3", Name: "Allowed", Price: decimalFromInt(10), Cost: decimalFromInt(5),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 with valid CSRF token, got %d: %s", rec.Code, rec.Body)
	}
}

func TestCSRFExemptsReadsAndAuthRoutes(t *testing.T) {
	api := newTestAPI(t)
	token := loginAdmin(t, api)

	// GETs never need a token.
	rec := doJSON(t, api, http.MethodGet, "/api/v1/products", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for GET without CSRF, got %d", rec.Code)
	}
	// Login itself ran without a token already; pin-login too.
	rec = doJSON(t, api, http.MethodPost, "/api/v1/auth/pin-login", "", "", domain.PINLoginRequest{PIN: "4321"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for pin-login without CSRF, got %d", rec.Code)
	}
}

func TestCSRFTokenValidation(t *testing.T) {
	api := newTestAPI(t)

	token := api.generateCSRFToken()
	if !api.validateCSRFToken(token) {
		t.Fatalf("freshly generated token must validate")
	}
	if api.validateCSRFToken("") {
		t.Fatalf("empty token must not validate")
	}
	if api.validateCSRFToken(token + "0") {
		t.Fatalf("tampered token must not validate")
	}
}

func TestServerErrorsAreGenericized(t *testing.T) {
	res := httptest.NewRecorder()
	writeError(res, http.StatusInternalServerError, fmt.Errorf("pq: connection refused at 10.0.0.5"))

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	msg, _ := body["error"].(string)
	if msg != "internal server error" {
		t.Fatalf("5xx bodies must not leak internals, got %q", msg)
	}
}

func TestAttemptLimiterWindow(t *testing.T) {
	limiter := newAttemptLimiter(2, time.Minute)
	if !limiter.Allow("a") || !limiter.Allow("a") {
		t.Fatalf("first two attempts must pass")
	}
	if limiter.Allow("a") {
		t.Fatalf("third attempt within window must fail")
	}
	// Separate keys do not interfere.
	if !limiter.Allow("b") {
		t.Fatalf("other client must not be limited")
	}
}
