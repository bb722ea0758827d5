package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestReplicationCountersByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ReplicationApplied("academic-faculty.created", OutcomeApplied)
	c.ReplicationApplied("academic-faculty.created", OutcomeApplied)
	c.ReplicationApplied("academic-faculty.created", OutcomeTombstoned)

	if got := testutil.ToFloat64(c.replication.WithLabelValues("academic-faculty.created", OutcomeApplied)); got != 2 {
		t.Fatalf("applied = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.replication.WithLabelValues("academic-faculty.created", OutcomeTombstoned)); got != 1 {
		t.Fatalf("tombstoned = %v, want 1", got)
	}
}

func TestProvisionAndAuthCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Provisioned("student", OutcomeOK)
	c.AuthAttempt("login", OutcomeFailed)
	c.AuthAttempt("login", OutcomeFailed)

	if got := testutil.ToFloat64(c.provision.WithLabelValues("student", OutcomeOK)); got != 1 {
		t.Fatalf("provision = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.auth.WithLabelValues("login", OutcomeFailed)); got != 2 {
		t.Fatalf("auth = %v, want 2", got)
	}
}

func TestHandlerServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.ReplicationLatency("academic-semester.updated", 15*time.Millisecond)
	c.ReplicationApplied("academic-semester.updated", OutcomeApplied)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body, _ := io.ReadAll(w.Body)
	for _, name := range []string{"academico_replication_events_total", "academico_replication_apply_seconds"} {
		if !strings.Contains(string(body), name) {
			t.Errorf("missing %s in scrape output", name)
		}
	}
}
