package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	registrationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_server_registrations_total",
		Help: "Total number of successful user registrations.",
	})

	tokenVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene_server_token_verifications_total",
			Help: "Total number of access token verification attempts by status.",
		},
		[]string{"status"},
	)

	playerMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scene_server_player_messages_total",
		Help: "Total number of accepted player messages.",
	})

	scriptRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scene_server_script_runs_total",
			Help: "Total number of script runs by outcome.",
		},
		[]string{"status"},
	)

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scene_server_ws_connections_active",
		Help: "Number of active WebSocket connections.",
	})
)
