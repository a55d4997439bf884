package api

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors updated by the hub and router
type Metrics struct {
	ActiveRooms      prometheus.Gauge
	ConnectedClients prometheus.Gauge
	OnlineUsers      prometheus.Gauge
	EventsTotal      *prometheus.CounterVec
	EventErrorsTotal *prometheus.CounterVec
	ReapedSessions   prometheus.Counter
}

// NewMetrics creates and registers the collab metrics on the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_active_rooms",
			Help: "Number of session rooms with at least one connection",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_connected_clients",
			Help: "Number of live WebSocket connections",
		}),
		OnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "collab_online_users",
			Help: "Number of distinct online users",
		}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_events_total",
			Help: "Collaboration events processed, by message type",
		}, []string{"message_type"}),
		EventErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "collab_event_errors_total",
			Help: "Collaboration events rejected, by error code",
		}, []string{"code"}),
		ReapedSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "collab_reaped_sessions_total",
			Help: "Sessions deactivated by the inactivity reaper",
		}),
	}
	reg.MustRegister(
		m.ActiveRooms,
		m.ConnectedClients,
		m.OnlineUsers,
		m.EventsTotal,
		m.EventErrorsTotal,
		m.ReapedSessions,
	)
	return m
}

// NewMetricsForTests creates metrics on a throwaway registry
func NewMetricsForTests() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
