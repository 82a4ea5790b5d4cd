package events

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

type MetricsSink struct {
	published *prometheus.CounterVec
}

func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	m := &MetricsSink{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "store_notifications_total",
				Help: "Store notifications by kind",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(m.published)
	return m
}

func (m *MetricsSink) Name() string { return "metrics" }

func (m *MetricsSink) Publish(_ context.Context, env Envelope) error {
	m.published.WithLabelValues(env.EventType).Inc()
	return nil
}
