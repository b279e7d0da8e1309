package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Obagson/code-nest/internal/validation"
)

func setupRouter(t *testing.T, env *testEnv) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(validation.CallerMiddleware())
	h := NewHandler(env.service)
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	protected := v1.Group("")
	protected.Use(validation.RequireCaller())
	h.RegisterProtectedRoutes(protected)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, as string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("X-Developer-Account", as)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndJoinOverHTTP(t *testing.T) {
	env := newTestEnv(map[string]int64{"alice": 10000})
	r := setupRouter(t, env)

	w := doJSON(t, r, "POST", "/v1/sessions", "alice", gin.H{
		"title":            "Review auth middleware",
		"hourlyRateCents":  600,
		"estimatedMinutes": 90,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created Session
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.FundsLockedCents != 600 {
		t.Errorf("Expected 600 escrowed, got %d", created.FundsLockedCents)
	}

	w = doJSON(t, r, "POST", fmt.Sprintf("/v1/sessions/%d/join", created.ID), "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, "GET", fmt.Sprintf("/v1/sessions/%d", created.ID), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var fetched Session
	json.Unmarshal(w.Body.Bytes(), &fetched)
	if fetched.Status != StatusInProgress || fetched.Partner != "bob" {
		t.Errorf("Expected in_progress with partner bob, got %s/%q", fetched.Status, fetched.Partner)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(map[string]int64{"alice": 10000})
	r := setupRouter(t, env)

	w := doJSON(t, r, "POST", "/v1/sessions", "alice", gin.H{
		"title":            "Pairing",
		"hourlyRateCents":  600,
		"estimatedMinutes": 60,
	})
	var created Session
	json.Unmarshal(w.Body.Bytes(), &created)

	cases := []struct {
		name     string
		method   string
		path     string
		as       string
		body     any
		wantCode int
		wantKind string
	}{
		{"not found", "GET", "/v1/sessions/999", "", nil, http.StatusNotFound, "not_found"},
		{"self join", "POST", fmt.Sprintf("/v1/sessions/%d/join", created.ID), "alice", nil, http.StatusForbidden, "self_join"},
		{"confirm before join", "POST", fmt.Sprintf("/v1/sessions/%d/confirm", created.ID), "alice", nil, http.StatusConflict, "invalid_status"},
		{"cancel by outsider", "POST", fmt.Sprintf("/v1/sessions/%d/cancel", created.ID), "bob", nil, http.StatusForbidden, "unauthorized"},
		{"bad id", "GET", "/v1/sessions/abc", "", nil, http.StatusBadRequest, "invalid_request"},
		{"bad cursor", "GET", "/v1/sessions?cursor=%21%21", "", nil, http.StatusBadRequest, "invalid_params"},
		{"insufficient funds", "POST", "/v1/sessions", "pauper", gin.H{
			"title": "Big job", "hourlyRateCents": 100000, "estimatedMinutes": 480,
		}, http.StatusPaymentRequired, "insufficient_funds"},
		{"bad duration", "POST", "/v1/sessions", "alice", gin.H{
			"title": "Marathon", "hourlyRateCents": 600, "estimatedMinutes": 481,
		}, http.StatusBadRequest, "invalid_duration"},
	}
	for _, tc := range cases {
		w := doJSON(t, r, tc.method, tc.path, tc.as, tc.body)
		if w.Code != tc.wantCode {
			t.Errorf("%s: expected %d, got %d: %s", tc.name, tc.wantCode, w.Code, w.Body.String())
			continue
		}
		var resp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Error != tc.wantKind {
			t.Errorf("%s: expected error kind %q, got %q", tc.name, tc.wantKind, resp.Error)
		}
	}
}

func TestRatingOverHTTP(t *testing.T) {
	env := newTestEnv(map[string]int64{"alice": 10000})
	r := setupRouter(t, env)

	w := doJSON(t, r, "POST", "/v1/sessions", "alice", gin.H{
		"title": "Pairing", "hourlyRateCents": 600, "estimatedMinutes": 60,
	})
	var created Session
	json.Unmarshal(w.Body.Bytes(), &created)

	doJSON(t, r, "POST", fmt.Sprintf("/v1/sessions/%d/join", created.ID), "bob", nil)
	doJSON(t, r, "POST", fmt.Sprintf("/v1/sessions/%d/confirm", created.ID), "alice", nil)
	doJSON(t, r, "POST", fmt.Sprintf("/v1/sessions/%d/confirm", created.ID), "bob", nil)

	w = doJSON(t, r, "POST", fmt.Sprintf("/v1/sessions/%d/rate", created.ID), "alice", gin.H{
		"score": 85, "feedback": "productive session",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Zero is a valid score and must survive the required binding
	w = doJSON(t, r, "POST", fmt.Sprintf("/v1/sessions/%d/rate", created.ID), "bob", gin.H{
		"score": 0,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for zero score, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMutationsRequireIdentity(t *testing.T) {
	env := newTestEnv(map[string]int64{"alice": 10000})
	r := setupRouter(t, env)

	w := doJSON(t, r, "POST", "/v1/sessions", "", gin.H{
		"title": "Pairing", "hourlyRateCents": 600, "estimatedMinutes": 60,
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without identity, got %d", w.Code)
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] != "missing_identity" {
		t.Errorf("Expected missing_identity error, got %q", resp["error"])
	}

	// Reads stay open
	w = doJSON(t, r, "GET", "/v1/sessions", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for unauthenticated list, got %d", w.Code)
	}
}
