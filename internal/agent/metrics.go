package agent

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Connections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaia_agent_connections_total",
		Help: "Relay connections by admission result",
	}, []string{"result"})

	RequestsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaia_agent_requests_ignored_total",
		Help: "Incoming frames that did not start a command",
	}, []string{"reason"})

	CommandsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kaia_agent_commands_running",
		Help: "Commands currently running",
	})

	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kaia_agent_commands_total",
		Help: "Finished commands by outcome",
	}, []string{"outcome"})

	CommandDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kaia_agent_command_duration_seconds",
		Help:    "Wall time from spawn to exit",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})
)
