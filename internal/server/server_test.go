package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/Obagson/code-nest/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:          "0",
		Env:           "development",
		LogLevel:      "error",
		MinTopUpCents: 100,
		MaxTopUpCents: 1000000,
		RateLimitRPM:  10000,
	}
}

// newTestServer creates a server with in-memory storage
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func do(t *testing.T, s *Server, method, path, as, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if as != "" {
		req.Header.Set("X-Developer-Account", as)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "GET", "/health", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "GET", "/health/live", "", "")
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "GET", "/health/ready", "", "")

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestSessionRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	sessionRoutes := map[string]bool{
		"POST:/v1/sessions":             false,
		"GET:/v1/sessions":              false,
		"GET:/v1/sessions/:id":          false,
		"POST:/v1/sessions/:id/join":    false,
		"POST:/v1/sessions/:id/confirm": false,
		"POST:/v1/sessions/:id/cancel":  false,
		"POST:/v1/sessions/:id/dispute": false,
		"POST:/v1/sessions/:id/resolve": false,
		"POST:/v1/sessions/:id/rate":    false,
	}

	for _, route := range routes {
		key := route.Method + ":" + route.Path
		if _, ok := sessionRoutes[key]; ok {
			sessionRoutes[key] = true
		}
	}

	for route, found := range sessionRoutes {
		if !found {
			t.Errorf("Session route %s not registered", route)
		}
	}
}

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"GET:/v1/developers/:account/balance",
		"GET:/v1/developers/:account/history",
		"GET:/v1/developers/:account/profile",
		"GET:/v1/developers/:account/ratings",
		"GET:/v1/developers/:account/sessions",
		"GET:/v1/reconciliation",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

func TestBillingRoutesAbsentWithoutStripe(t *testing.T) {
	s := newTestServer(t)

	for _, route := range s.router.Routes() {
		if route.Path == "/v1/billing/webhook" {
			t.Error("Webhook route registered without a Stripe key")
		}
	}
}

func TestBillingRoutesPresentWithStripe(t *testing.T) {
	cfg := testConfig()
	cfg.StripeSecretKey = "sk_test_fake"
	cfg.StripeWebhookSecret = "whsec_fake"
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	routeSet := make(map[string]bool)
	for _, route := range s.router.Routes() {
		routeSet[route.Method+":"+route.Path] = true
	}

	if !routeSet["POST:/v1/billing/webhook"] {
		t.Error("Webhook route not registered")
	}
	if !routeSet["POST:/v1/developers/:account/topup"] {
		t.Error("Top-up route not registered")
	}
	// Demo deposits give way to Stripe
	if routeSet["POST:/v1/developers/:account/deposit"] {
		t.Error("Demo deposit route registered alongside Stripe")
	}
}

// ---------------------------------------------------------------------------
// End-to-end lifecycle over the wired router
// ---------------------------------------------------------------------------

func TestLifecycleOverRouter(t *testing.T) {
	s := newTestServer(t)

	// Fund the creator through the demo deposit endpoint
	w := do(t, s, "POST", "/v1/developers/carol/deposit", "carol", `{"amountCents":5000}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Deposit failed: %d: %s", w.Code, w.Body.String())
	}

	w = do(t, s, "POST", "/v1/sessions", "carol",
		`{"title":"Debug flaky pipeline","hourlyRateCents":1200,"estimatedMinutes":120}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Create failed: %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		ID               int64 `json:"id"`
		FundsLockedCents int64 `json:"fundsLockedCents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to parse session: %v", err)
	}
	if created.FundsLockedCents != 2400 {
		t.Errorf("Escrow = %d, want 2400", created.FundsLockedCents)
	}

	path := "/v1/sessions/" + strconv.FormatInt(created.ID, 10)
	if w = do(t, s, "POST", path+"/join", "dave", ""); w.Code != http.StatusOK {
		t.Fatalf("Join failed: %d: %s", w.Code, w.Body.String())
	}
	if w = do(t, s, "POST", path+"/confirm", "carol", ""); w.Code != http.StatusOK {
		t.Fatalf("Creator confirm failed: %d: %s", w.Code, w.Body.String())
	}
	if w = do(t, s, "POST", path+"/confirm", "dave", ""); w.Code != http.StatusOK {
		t.Fatalf("Partner confirm failed: %d: %s", w.Code, w.Body.String())
	}

	// Escrow landed with the partner
	w = do(t, s, "GET", "/v1/developers/dave/balance", "", "")
	var bal struct {
		Balance struct {
			AvailableCents int64 `json:"availableCents"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &bal); err != nil {
		t.Fatalf("Failed to parse balance: %v", err)
	}
	if bal.Balance.AvailableCents != 2400 {
		t.Errorf("Partner balance = %d, want 2400", bal.Balance.AvailableCents)
	}

	// Participation recorded on the partner profile
	w = do(t, s, "GET", "/v1/developers/dave/profile", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Profile fetch failed: %d: %s", w.Code, w.Body.String())
	}

	// Money is still conserved after the release
	w = do(t, s, "GET", "/v1/reconciliation", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Reconciliation failed: %d: %s", w.Code, w.Body.String())
	}
	var audit struct {
		Match        bool  `json:"match"`
		DepositCents int64 `json:"depositCents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &audit); err != nil {
		t.Fatalf("Failed to parse audit: %v", err)
	}
	if !audit.Match {
		t.Errorf("Expected conserved ledger, got %s", w.Body.String())
	}
	if audit.DepositCents != 5000 {
		t.Errorf("Deposits = %d, want 5000", audit.DepositCents)
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := do(t, s, "GET", "/v1/nonexistent", "", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
