package chat

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roam",
		Subsystem: "chat",
		Name:      "messages_sent_total",
		Help:      "Outbound messages accepted by the engine.",
	})

	metricRepliesSimulated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "roam",
		Subsystem: "chat",
		Name:      "replies_simulated_total",
		Help:      "Synthetic counterpart replies appended by the presence simulator.",
	})

	metricUnreadTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "roam",
		Subsystem: "chat",
		Name:      "unread_total",
		Help:      "Aggregate unread count across all conversations.",
	})
)
