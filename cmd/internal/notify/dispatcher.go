// Package notify defines the fire-and-forget notification contract consumed
// by the chat engine. The engine dispatches a summary for every new inbound
// message and never awaits a result; a broken notification subsystem must not
// affect messaging state.
package notify

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricDispatched = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "roam",
	Subsystem: "notify",
	Name:      "dispatched_total",
	Help:      "Notifications handed to the dispatcher fanout.",
})

// Notification is the summary handed to the notification subsystem.
type Notification struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	RelatedID   string `json:"relatedId,omitempty"`
	RelatedType string `json:"relatedType,omitempty"`
}

// Dispatcher consumes notifications. Implementations must not block.
type Dispatcher interface {
	Notify(Notification)
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Dispatcher.
func (Nop) Notify(Notification) {}

// Slog logs each dispatch. It stands in for the toast/push renderer, which is
// an external collaborator of this core.
type Slog struct {
	log *slog.Logger
}

// NewSlog constructs a logging dispatcher.
func NewSlog(log *slog.Logger) *Slog {
	return &Slog{log: log}
}

// Notify implements Dispatcher.
func (d *Slog) Notify(n Notification) {
	if d == nil || d.log == nil {
		return
	}
	d.log.Info("notify.dispatch",
		"type", n.Type,
		"title", n.Title,
		"related_id", n.RelatedID,
		"related_type", n.RelatedType,
	)
}

// Multi fans a notification out to several dispatchers.
type Multi []Dispatcher

// Notify implements Dispatcher. A panicking dispatcher is isolated so one
// broken sink cannot take down the others or reach the engine.
func (m Multi) Notify(n Notification) {
	metricDispatched.Inc()
	for _, d := range m {
		if d == nil {
			continue
		}
		dispatchSafely(d, n)
	}
}

func dispatchSafely(d Dispatcher, n Notification) {
	defer func() { _ = recover() }()
	d.Notify(n)
}
