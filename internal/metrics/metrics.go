// Package metrics expõe contadores Prometheus de replicação, provisionamento e autenticação.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder é o que os serviços enxergam.
type Recorder interface {
	ReplicationApplied(event, outcome string)
	ReplicationLatency(event string, d time.Duration)
	Provisioned(role, outcome string)
	AuthAttempt(operation, outcome string)
}

// Resultados usados como label "outcome".
const (
	OutcomeApplied    = "applied"
	OutcomeStale      = "stale"
	OutcomeTombstoned = "tombstoned"
	OutcomeRetried    = "retried"
	OutcomeDropped    = "dropped"
	OutcomeInvalid    = "invalid"
	OutcomeOK         = "ok"
	OutcomeFailed     = "failed"
)

// Collector implementa Recorder sobre um Registerer.
type Collector struct {
	replication *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	provision   *prometheus.CounterVec
	auth        *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		replication: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "academico_replication_events_total",
			Help: "Eventos de replicação processados por resultado",
		}, []string{"event", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "academico_replication_apply_seconds",
			Help:    "Tempo para aplicar um evento de replicação",
			Buckets: prometheus.DefBuckets,
		}, []string{"event"}),
		provision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "academico_provision_total",
			Help: "Provisionamentos de identidade por papel e resultado",
		}, []string{"role", "outcome"}),
		auth: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "academico_auth_total",
			Help: "Operações de autenticação por resultado",
		}, []string{"operation", "outcome"}),
	}

	reg.MustRegister(c.replication, c.latency, c.provision, c.auth)
	return c
}

func (c *Collector) ReplicationApplied(event, outcome string) {
	c.replication.WithLabelValues(event, outcome).Inc()
}

func (c *Collector) ReplicationLatency(event string, d time.Duration) {
	c.latency.WithLabelValues(event).Observe(d.Seconds())
}

func (c *Collector) Provisioned(role, outcome string) {
	c.provision.WithLabelValues(role, outcome).Inc()
}

func (c *Collector) AuthAttempt(operation, outcome string) {
	c.auth.WithLabelValues(operation, outcome).Inc()
}

// Nop descarta tudo.
type Nop struct{}

func (Nop) ReplicationApplied(string, string) {}
func (Nop) ReplicationLatency(string, time.Duration) {}
func (Nop) Provisioned(string, string) {}
func (Nop) AuthAttempt(string, string) {}

// Handler serve o formato de scrape do Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
