// Package metrics объявляет метрики Prometheus сервиса billing-gate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "billing_gate"

var (
	// WebhookEventsTotal считает события провайдера по виду и исходу обработки.
	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_events_total",
		Help:      "Payment provider webhook events by kind and outcome.",
	}, []string{"kind", "outcome"})

	// WebhookDuration время обработки вебхука.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "webhook_duration_seconds",
		Help:      "Webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	// FinalizeTotal считает исходы финализации checkout-сессии.
	FinalizeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "finalize_total",
		Help:      "Checkout session finalization outcomes.",
	}, []string{"code"})

	// AccessFlipsTotal считает фактические смены решения о доступе.
	AccessFlipsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "billing",
		Name:      "access_flips_total",
		Help:      "Company access flips by source and direction.",
	}, []string{"source", "direction"})

	// GateDecisionsTotal считает решения шлюза доступа.
	GateDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "access",
		Name:      "gate_decisions_total",
		Help:      "Access gate decisions.",
	}, []string{"decision"})

	// AccessCacheTotal считает попадания и промахи кеша снимков доступа.
	AccessCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "access",
		Name:      "cache_lookups_total",
		Help:      "Access snapshot cache lookups by result.",
	}, []string{"result"})
)
