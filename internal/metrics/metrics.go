// Package metrics defines the Prometheus instrumentation for the engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registration engine.
type Metrics struct {
	RegistrationsConfirmed  prometheus.Counter
	RegistrationsWaitlisted prometheus.Counter
	RegistrationsRejected   *prometheus.CounterVec
	Cancellations           prometheus.Counter
	Promotions              prometheus.Counter
	Demotions               prometheus.Counter
	NotificationsEmitted    *prometheus.CounterVec
	NotificationsDropped    prometheus.Counter
	NotificationFailures    prometheus.Counter
}

// New creates and registers all metrics on the given registerer. Tests pass a
// fresh registry so suites do not collide.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistrationsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_registrations_confirmed_total",
			Help: "Registrations accepted directly into a confirmed slot.",
		}),
		RegistrationsWaitlisted: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_registrations_waitlisted_total",
			Help: "Registrations placed on the waitlist.",
		}),
		RegistrationsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waitlist_registrations_rejected_total",
			Help: "Registration requests rejected, by reason.",
		}, []string{"reason"}),
		Cancellations: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_cancellations_total",
			Help: "Registrations cancelled.",
		}),
		Promotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_promotions_total",
			Help: "Waitlisted registrations promoted to confirmed.",
		}),
		Demotions: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_demotions_total",
			Help: "Confirmed registrations demoted to the waitlist tail.",
		}),
		NotificationsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "waitlist_notifications_emitted_total",
			Help: "Notification intents handed to the delivery worker, by type.",
		}, []string{"type"}),
		NotificationsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_notifications_dropped_total",
			Help: "Notification intents dropped because the queue was full.",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "waitlist_notification_failures_total",
			Help: "Notification deliveries that failed; never surfaced to callers.",
		}),
	}
}
