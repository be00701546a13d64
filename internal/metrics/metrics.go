// Package metrics registers the prometheus collectors for command traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	Registry *prometheus.Registry

	commandCalls    *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		commandCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "command_calls_total",
			Help: "Commands executed, labelled by command name, channel and outcome.",
		}, []string{"command", "channel", "success"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Wall time spent executing commands.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command", "channel"}),
	}
	m.Registry.MustRegister(m.commandCalls, m.commandDuration)
	return m
}

// ObserveCommand records one command execution.
func (m *Metrics) ObserveCommand(command, channel string, success bool, elapsed time.Duration) {
	outcome := "false"
	if success {
		outcome = "true"
	}
	m.commandCalls.WithLabelValues(command, channel, outcome).Inc()
	m.commandDuration.WithLabelValues(command, channel).Observe(elapsed.Seconds())
}
