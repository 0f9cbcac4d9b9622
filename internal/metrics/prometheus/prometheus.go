package prometheus

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/slok/scriptrun/internal/model"
)

const namespace = "scriptrun"

// Recorder is a metrics.Recorder backed by Prometheus.
type Recorder struct {
	submissionsRejected *prometheus.CounterVec
	executionsAccepted  *prometheus.CounterVec
	executionsFinished  *prometheus.CounterVec
	executionDuration   *prometheus.HistogramVec
	executionsInflight  prometheus.Gauge
}

// NewRecorder creates a new Prometheus recorder registering its metrics on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		submissionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "submissions_rejected_total",
			Help:      "Total number of submissions rejected before running.",
		}, []string{"reason"}),

		executionsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_accepted_total",
			Help:      "Total number of executions accepted to run.",
		}, []string{"trust"}),

		executionsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_finished_total",
			Help:      "Total number of executions that reached a terminal status.",
		}, []string{"status", "truncated"}),

		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "execution_duration_seconds",
			Help:      "Duration of the finished executions.",
			Buckets:   []float64{.05, .1, .5, 1, 5, 10, 30, 60, 300, 900, 3600},
		}, []string{"status"}),

		executionsInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "executions_inflight",
			Help:      "Number of accepted executions that didn't finish yet.",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.submissionsRejected,
		r.executionsAccepted,
		r.executionsFinished,
		r.executionDuration,
		r.executionsInflight,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("could not register metric: %w", err)
		}
	}

	return r, nil
}

func (r *Recorder) SubmissionRejected(_ context.Context, reason string) {
	r.submissionsRejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) ExecutionAccepted(_ context.Context, trust model.TrustLevel) {
	r.executionsAccepted.WithLabelValues(string(trust)).Inc()
	r.executionsInflight.Inc()
}

func (r *Recorder) ExecutionFinished(_ context.Context, status model.ExecutionStatus, duration time.Duration, truncated bool) {
	r.executionsFinished.WithLabelValues(string(status), strconv.FormatBool(truncated)).Inc()
	r.executionDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
	r.executionsInflight.Dec()
}

// WriteTextfile writes the metrics gathered by g to path in the text exposition
// format, so they can be collected by the node exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("could not write metrics textfile: %w", err)
	}
	return nil
}
