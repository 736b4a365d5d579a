// Package metrics exposes the hub's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_connections_active",
		Help: "The current number of active WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	DroppedConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_connections_dropped_total",
		Help: "The total number of connections dropped by the hub.",
	}, []string{"reason"})

	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_frames_received_total",
		Help: "The total number of command frames received from clients.",
	}, []string{"type"})
	EventsBroadcast = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_events_broadcast_total",
		Help: "The total number of events fanned out to session groups.",
	}, []string{"type"})

	AuthRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_auth_rejections_total",
		Help: "The total number of rejected connection attempts.",
	}, []string{"reason"})

	ControlRecordsShipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_control_records_shipped_total",
		Help: "The total number of control records published to the log pipeline.",
	}, []string{"result"})
)
