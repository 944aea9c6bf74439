package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesPulled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tributary_messages_pulled_total",
		Help: "Messages staged from successful pulls, by pull status.",
	}, []string{"status"})

	MessagesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tributary_messages_delivered_total",
		Help: "Messages delivered to the downstream sink and acknowledged.",
	})

	PullErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tributary_pull_errors_total",
		Help: "Pull attempts that failed and were rescheduled.",
	})

	FlowControlEngaged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tributary_flow_control_engaged_total",
		Help: "Pull requests parked because a partition crossed the high watermark.",
	})

	StaleRecoveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tributary_stale_recoveries_total",
		Help: "Recovery pulls issued for partitions with no pull inside the liveness window.",
	})

	OffsetFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tributary_offset_flushes_total",
		Help: "Checkpoints flushed to the durable offset store.",
	})
)

func Expose(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	}()
}
