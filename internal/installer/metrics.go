package installer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — счётчики установщика. nil-значение допустимо (ничего не считает).
type Metrics struct {
	runs      *prometheus.CounterVec
	ensured   *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	deleted   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "runs_total",
			Help:      "Installer runs by operation and status.",
		}, []string{"operation", "status"}),
		ensured: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "ensured_total",
			Help:      "Ensured records by collection and action (created, updated).",
		}, []string{"collection", "action"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "schema_fallbacks_total",
			Help:      "Retries with the alternate foreign-key property after an unmapped-field error.",
		}, []string{"collection", "from", "to"}),
		deleted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fieldsync",
			Name:      "deleted_total",
			Help:      "Deleted records by collection.",
		}, []string{"collection"}),
	}
}

func (m *Metrics) run(op string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.runs.WithLabelValues(op, status).Inc()
}

func (m *Metrics) ensure(collection string, created bool) {
	if m == nil {
		return
	}
	action := "updated"
	if created {
		action = "created"
	}
	m.ensured.WithLabelValues(collection, action).Inc()
}

func (m *Metrics) fallback(collection, from, to string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(collection, from, to).Inc()
}

func (m *Metrics) delete(collection string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.deleted.WithLabelValues(collection).Add(float64(n))
}
