package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are package-level so handlers and services can increment them
// without threading a registry through every constructor. InitMetrics must be
// called once before the first scrape; repeated calls are no-ops so tests can
// call it freely.
var (
	RegisterTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_registrations_total",
		Help: "Number of successful account registrations.",
	})
	LoginTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "taskify_logins_total",
		Help: "Number of login attempts by outcome.",
	}, []string{"outcome"})
	PasswordResetTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_password_resets_total",
		Help: "Number of completed password resets.",
	})

	TasksCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_tasks_created_total",
		Help: "Number of tasks created.",
	})
	TasksDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_tasks_deleted_total",
		Help: "Number of tasks deleted.",
	})

	InvitationsSentTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_invitations_sent_total",
		Help: "Number of invitations created or refreshed.",
	})
	InvitationsAcceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_invitations_accepted_total",
		Help: "Number of invitations converted into task access.",
	})
	InvitationsExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_invitations_expired_total",
		Help: "Number of invitations expired by the sweeper.",
	})

	MailQueuedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_mail_queued_total",
		Help: "Number of mail jobs enqueued on the redis stream.",
	})
	MailDeliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_mail_delivered_total",
		Help: "Number of mail jobs delivered by the worker.",
	})
	MailRetriedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_mail_retried_total",
		Help: "Number of mail jobs re-enqueued after a delivery failure.",
	})
	MailDLQTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_mail_dlq_total",
		Help: "Number of mail jobs parked on the dead-letter stream.",
	})

	RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "taskify_ratelimit_rejected_total",
		Help: "Number of requests rejected by the auth rate limiter.",
	})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskify_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

var registerOnce sync.Once

// InitMetrics registers all collectors with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RegisterTotal,
			LoginTotal,
			PasswordResetTotal,
			TasksCreatedTotal,
			TasksDeletedTotal,
			InvitationsSentTotal,
			InvitationsAcceptedTotal,
			InvitationsExpiredTotal,
			MailQueuedTotal,
			MailDeliveredTotal,
			MailRetriedTotal,
			MailDLQTotal,
			RateLimitRejectedTotal,
			HTTPRequestDuration,
		)
	})
}
