// Package metrics counts step attempts, retries, failures and token usage
// from the events of pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/temirov/pktables/internal/pipeline"
)

const namespace = "pktables"

// Metrics holds the collectors of one registry. Every process owns one;
// tests build their own.
type Metrics struct {
	Registry *prometheus.Registry

	stepAttempts *prometheus.CounterVec
	stepRetries  *prometheus.CounterVec
	stepOutcomes *prometheus.CounterVec
	stepTokens   *prometheus.CounterVec
	runOutcomes  *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	outputRows   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		Registry: registry,
		stepAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_attempts_total",
			Help:      "Model calls made per step",
		}, []string{"step"}),
		stepRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Model calls retried after a transport error or a rejected answer",
		}, []string{"step"}),
		stepOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_outcomes_total",
			Help:      "Finished steps by outcome",
		}, []string{"step", "outcome"}),
		stepTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_tokens_total",
			Help:      "Tokens reported by the model per step",
		}, []string{"step"}),
		runOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"pipeline", "outcome"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of pipeline runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~8.5min
		}, []string{"pipeline"}),
		outputRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "output_rows_total",
			Help:      "Rows in the final tables",
		}, []string{"pipeline"}),
	}
}

// Observer counts step events. Aborted events are counted by ObserveRun.
func (m *Metrics) Observer() pipeline.Observer {
	return func(event pipeline.StepEvent) {
		switch event.Status {
		case pipeline.StatusAttempt:
			m.stepAttempts.WithLabelValues(event.Step).Inc()
		case pipeline.StatusRetry:
			m.stepRetries.WithLabelValues(event.Step).Inc()
		case pipeline.StatusSucceeded, pipeline.StatusFailed, pipeline.StatusSkipped:
			m.stepOutcomes.WithLabelValues(event.Step, string(event.Status)).Inc()
			if event.TokenUsage > 0 {
				m.stepTokens.WithLabelValues(event.Step).Add(float64(event.TokenUsage))
			}
		}
	}
}

// ObserveRun records the outcome of a whole run.
func (m *Metrics) ObserveRun(pipelineName string, success bool, rows int, elapsed time.Duration) {
	outcome := "failed"
	if success {
		outcome = "succeeded"
		m.outputRows.WithLabelValues(pipelineName).Add(float64(rows))
	}
	m.runOutcomes.WithLabelValues(pipelineName, outcome).Inc()
	m.runDuration.WithLabelValues(pipelineName).Observe(elapsed.Seconds())
}

// WriteTextfile writes every collector in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
