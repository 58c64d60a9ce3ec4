package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"autoservice/pkg/domain"
)

const (
	opCreateTask   = "create_task"
	opReassignTask = "reassign_task"

	outcomeAdmitted = "admitted"
)

type metrics struct {
	decisions        *prometheus.CounterVec
	mechanicsDeleted prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autoservice_assignment_decisions_total",
				Help: "task assignment decisions by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		mechanicsDeleted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "autoservice_mechanics_deleted_total",
				Help: "mechanics removed together with their tasks",
			},
		),
	}
}

func (m *metrics) observe(op string, err error) {
	outcome := outcomeAdmitted
	if err != nil {
		outcome = string(domain.KindOf(err))
	}
	m.decisions.WithLabelValues(op, outcome).Inc()
}
