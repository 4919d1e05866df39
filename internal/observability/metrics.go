// Package observability holds the process-wide Prometheus collectors,
// grounded on the teacher's metrics.go: one promauto registration per
// counter/gauge/histogram, grouped by owning service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OffersCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_offers_created_total",
		Help: "Total job offers created.",
	}, []string{})

	OffersAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_accepted_total",
		Help: "Total job offers that won the acceptance race.",
	})

	OfferAcceptConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_offer_accept_conflicts_total",
		Help: "Total acceptOffer calls that lost the race, by current state.",
	}, []string{"current_state"})

	OffersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_rejected_total",
		Help: "Total job offers explicitly rejected by a porter.",
	})

	OffersExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_expired_total",
		Help: "Total job offers transitioned to EXPIRED.",
	})

	OffersRevoked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_offers_revoked_total",
		Help: "Total sibling job offers revoked after an order was assigned.",
	})

	AcceptOfferDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_accept_offer_duration_seconds",
		Help:    "Latency of the acceptOffer critical-path transaction.",
		Buckets: prometheus.DefBuckets,
	})

	LocationUpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_location_update_duration_seconds",
		Help:    "Latency of updateLocation's hot-store write.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	LocationUpdatesRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_location_updates_rate_limited_total",
		Help: "Total location updates rejected by the per-porter rate limiter.",
	})

	NearbyQueryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_nearby_query_duration_seconds",
		Help:    "Latency of findNearbyPorters.",
		Buckets: prometheus.DefBuckets,
	})

	SnapshotsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_location_snapshots_inserted_total",
		Help: "Total durable location snapshots inserted.",
	})

	AvailabilityWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_availability_writes_total",
		Help: "Total setAvailability calls, by online/offline.",
	}, []string{"online"})

	OnlinePorterGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_online_porters",
		Help: "Current size of the online-porter set, sampled periodically.",
	})

	EarningsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_earnings_recorded_total",
		Help: "Total earnings rows recorded, by type.",
	}, []string{"type"})

	WithdrawalOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_withdrawal_outcomes_total",
		Help: "Total withdrawal requests, by outcome.",
	}, []string{"outcome"})

	IdempotencyHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_idempotency_cache_hits_total",
		Help: "Total mutations served from a cached idempotency record.",
	})

	IdempotencyConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_idempotency_key_conflicts_total",
		Help: "Total idempotency key reuses across a different user or operation.",
	})

	SchedulerJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_scheduler_job_duration_seconds",
		Help:    "Duration of each periodic scheduler job run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})

	SchedulerJobFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_scheduler_job_failures_total",
		Help: "Total periodic scheduler job runs that returned an error.",
	}, []string{"job"})

	EventPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_event_publish_failures_total",
		Help: "Total best-effort event publications that failed, by event type.",
	}, []string{"event"})

	HotStoreDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_hot_store_degraded",
		Help: "1 if the Hot-State Store is currently considered unavailable, else 0.",
	})

	DurableStoreDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dispatch_durable_store_degraded",
		Help: "1 if the Durable Store is currently considered unavailable, else 0.",
	})
)
