package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	logins      *prometheus.CounterVec
	enrollments *prometheus.CounterVec
	handler     http.Handler
}

// New registers the application counters on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enrollment",
			Name:      "login_attempts_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "enrollment",
			Name:      "operations_total",
			Help:      "Enrollment engine operations by operation and result.",
		}, []string{"op", "result"}),
		handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	}
	reg.MustRegister(m.logins, m.enrollments)
	return m
}

func (m *Metrics) Login(result string) {
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) Operation(op, result string) {
	m.enrollments.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return m.handler
}
