package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
)

func TestMiddleware_CountsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	HTTPRequestsTotal.Reset()

	r := gin.New()
	r.Use(Middleware())
	r.GET("/v1/sessions/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/42", nil)
	r.ServeHTTP(w, req)

	counter, err := HTTPRequestsTotal.GetMetricWithLabelValues("GET", "/v1/sessions/:id", "2xx")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}

	m := &dto.Metric{}
	_ = counter.Write(m)
	if m.Counter.GetValue() != 1.0 {
		t.Errorf("expected counter value 1, got %f", m.Counter.GetValue())
	}
}

func TestEscrowDustCounterAccumulates(t *testing.T) {
	before := readCounter(t)

	EscrowDustCents.Add(1)
	EscrowDustCents.Add(2)

	if got := readCounter(t); got != before+3 {
		t.Errorf("expected dust counter %f, got %f", before+3, got)
	}
}

func readCounter(t *testing.T) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := EscrowDustCents.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func TestStatusBucket(t *testing.T) {
	cases := map[int]string{199: "1xx", 200: "2xx", 301: "3xx", 404: "4xx", 500: "5xx"}
	for code, want := range cases {
		if got := statusBucket(code); got != want {
			t.Errorf("statusBucket(%d) = %s, want %s", code, got, want)
		}
	}
}
