package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connections is the number of sockets registered with this instance.
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Number of websocket connections currently registered",
	})

	// EventsPublished counts events published to a room, by event name.
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_events_published_total",
			Help: "Total number of realtime events published to rooms",
		},
		[]string{"event"},
	)

	// FramesDropped counts frames discarded because a socket's outbound queue was full.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_frames_dropped_total",
		Help: "Total number of frames dropped for slow websocket consumers",
	})

	// RoomJoins counts room joins, by room kind (user, allUsers, admin).
	RoomJoins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_room_joins_total",
			Help: "Total number of realtime room joins",
		},
		[]string{"kind"},
	)
)
