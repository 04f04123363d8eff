package account

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/janisto/account-settings/internal/service/account")

var (
	// runsTotal counts finished runs by outcome.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "account_update_runs_total",
		Help: "Account update runs by outcome",
	}, []string{"outcome"})

	// stepsTotal counts executed steps by step and result.
	stepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "account_update_steps_total",
		Help: "Account update steps by step and result",
	}, []string{"step", "result"})

	reauthTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "account_reauthentications_total",
		Help: "Re-authentication attempts by result",
	}, []string{"result"})

	imageProcessSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "account_image_process_seconds",
		Help:    "Avatar image processing duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	})
)

// Run outcomes.
const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomePartial  = "partial"
	outcomeCanceled = "canceled"
	outcomeRejected = "rejected"
)
