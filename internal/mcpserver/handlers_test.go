package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	return NewClient(Config{APIURL: ts.URL, Account: "alice"}), ts
}

func TestClient_IdentityHeader(t *testing.T) {
	var gotAccount string
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccount = r.Header.Get("X-Developer-Account")
		w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	if _, err := client.GetBalance(context.Background()); err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if gotAccount != "alice" {
		t.Errorf("Expected identity header alice, got %q", gotAccount)
	}
}

func TestClient_APIErrorMessage(t *testing.T) {
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":"insufficient_funds","message":"insufficient funds for escrow"}`))
	}))
	defer ts.Close()

	_, err := client.ProposeSession(context.Background(), "title", "", 600, 60)
	if err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(err.Error(), "insufficient funds for escrow") {
		t.Errorf("Expected API message in error, got %v", err)
	}
}

func TestClient_ListSessionsQueryParams(t *testing.T) {
	var gotQuery string
	client, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"sessions":[],"count":0}`))
	}))
	defer ts.Close()

	if _, err := client.ListSessions(context.Background(), "proposed", 10); err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if !strings.Contains(gotQuery, "status=proposed") || !strings.Contains(gotQuery, "limit=10") {
		t.Errorf("Expected status and limit in query, got %q", gotQuery)
	}
}

func TestFormatSessionList(t *testing.T) {
	raw, _ := json.Marshal(map[string]any{
		"count": 1,
		"sessions": []sessionView{{
			ID:               7,
			Creator:          "alice",
			Title:            "Refactor config loader",
			HourlyRateCents:  5000,
			EstimatedMinutes: 120,
			FocusAreas:       []string{"go", "refactoring"},
			Status:           "proposed",
			FundsLockedCents: 10000,
		}},
	})

	text, err := formatSessionList(raw)
	if err != nil {
		t.Fatalf("formatSessionList failed: %v", err)
	}
	for _, want := range []string{"#7", "Refactor config loader", "$50.00/hr", "$100.00", "go, refactoring", "alice"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in output:\n%s", want, text)
		}
	}
}

func TestFormatSessionListEmpty(t *testing.T) {
	text, err := formatSessionList([]byte(`{"sessions":[],"count":0}`))
	if err != nil {
		t.Fatalf("formatSessionList failed: %v", err)
	}
	if text != "No sessions found." {
		t.Errorf("Expected empty message, got %q", text)
	}
}

func TestDollars(t *testing.T) {
	cases := map[int64]string{
		0:      "$0.00",
		5:      "$0.05",
		600:    "$6.00",
		123456: "$1234.56",
	}
	for cents, want := range cases {
		if got := dollars(cents); got != want {
			t.Errorf("dollars(%d): expected %s, got %s", cents, want, got)
		}
	}
}
