package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "watchparty"

var (
	openRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_rooms",
		Help:      "Number of open rooms",
	})
	connectedParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected_participants",
		Help:      "Number of participants joined to rooms",
	})
	connectedWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connected_workers",
		Help:      "Number of connected browser workers",
	})
	eventsIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_in_total",
		Help:      "Inbound participant events by type",
	}, []string{"event"})
	deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Messages enqueued to participant connections",
	})
	outboundDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbound_drops_total",
		Help:      "Messages dropped on full connection queues",
	})
	deliveryMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_misses_total",
		Help:      "Unicasts to participants that are absent or not in voice",
	}, []string{"event"})
	rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rejected_total",
		Help:      "Rejected participant operations by error code",
	}, []string{"code"})
	roomsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rooms_closed_total",
		Help:      "Closed rooms by reason",
	}, []string{"reason"})
	browserRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "browser_restarts_total",
		Help:      "Automatic restarts of crashed shared browsers",
	})
	persistDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persist_drops_total",
		Help:      "Persistence jobs dropped on a full queue",
	})
)
