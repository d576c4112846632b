package kafka_middleware

import (
	"context"
	"time"

	"medibook/pkg/kafka"

	"github.com/prometheus/client_golang/prometheus"
)

type ProducerMetrics struct {
	published *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

func NewProducerMetrics(reg prometheus.Registerer) *ProducerMetrics {
	m := &ProducerMetrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medibook",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Messages handed to the Kafka writer by event type and result.",
		}, []string{"event_type", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medibook",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Time spent publishing a single message.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	if reg != nil {
		reg.MustRegister(m.published, m.latency)
	}
	return m
}

func (m *ProducerMetrics) Middleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		start := time.Now()
		err := next(ctx, msg)

		result := "success"
		if err != nil {
			result = "error"
		}
		eventType := msg.GetEventType()
		m.published.WithLabelValues(eventType, result).Inc()
		m.latency.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
		return err
	}
}
