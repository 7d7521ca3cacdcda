// Package metrics exposes Prometheus counters for alarms, notifications and
// event mutations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lunarcal"

var (
	// AlarmsScheduled counts alarms handed to the scheduler.
	AlarmsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alarms_scheduled_total",
		Help:      "Alarms registered with the scheduler.",
	})

	// AlarmsSkipped counts reminders dropped for being past the grace window.
	AlarmsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alarms_skipped_past_due_total",
		Help:      "Reminders not scheduled because they were past due.",
	})

	AlarmsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alarms_cancelled_total",
		Help:      "Alarm cancellations, including no-op cancels.",
	})

	// AlarmsStale counts due alarms dropped because their event was edited
	// or deleted elsewhere.
	AlarmsStale = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "alarms_stale_total",
		Help:      "Due alarms dropped because the stored event no longer matched.",
	})

	// Notifications counts deliveries by outcome ("ok" or "error").
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Reminder deliveries by outcome.",
	}, []string{"result"})

	// EventMutations counts calendar mutations by operation and outcome.
	EventMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_mutations_total",
		Help:      "Event create/update/delete calls by outcome.",
	}, []string{"op", "result"})
)

// Result maps an error to the "result" label value.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
