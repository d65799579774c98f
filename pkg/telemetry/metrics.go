// Package telemetry exposes process-wide Prometheus metrics for batch
// runs. Metrics are additive counters and gauges only; they never feed
// back into scenario execution and are excluded from the determinism
// contract.
package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metric names.
const (
	MetricTicksProcessedTotal      = "finiex_ticks_processed_total"
	MetricOrdersExecutedTotal      = "finiex_orders_executed_total"
	MetricOrdersRejectedTotal      = "finiex_orders_rejected_total"
	MetricScenariosCompletedTotal  = "finiex_scenarios_completed_total"
	MetricScenariosFailedTotal     = "finiex_scenarios_failed_total"
	MetricLiveMessagesDroppedTotal = "finiex_live_messages_dropped_total"
	MetricScenariosRunning         = "finiex_scenarios_running"
)

var (
	TicksProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricTicksProcessedTotal,
		Help: "Total ticks replayed across all scenarios",
	})
	OrdersExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricOrdersExecutedTotal,
		Help: "Total order fills across all scenarios",
	})
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricOrdersRejectedTotal,
		Help: "Total order rejections across all scenarios",
	})
	ScenariosCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricScenariosCompletedTotal,
		Help: "Scenarios finished successfully",
	})
	ScenariosFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricScenariosFailedTotal,
		Help: "Scenarios finished with an error",
	})
	LiveMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: MetricLiveMessagesDroppedTotal,
		Help: "Live-stats messages dropped because the queue was full",
	})
	ScenariosRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: MetricScenariosRunning,
		Help: "Scenarios currently executing",
	})
)

// Serve starts the metrics HTTP endpoint on the given port. It returns the
// server so callers can shut it down.
func Serve(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
