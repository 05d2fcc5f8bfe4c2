package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChannelStateGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rps_channel_state",
			Help: "Current push-channel connection state (0=disconnected 1=connecting 2=connected 3=reconnecting 4=failed).",
		},
	)

	ReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rps_reconnect_attempts_total",
			Help: "Number of push-channel reconnection attempts.",
		},
	)

	RoomJoinsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rps_room_joins_sent_total",
			Help: "Number of room join frames sent, including re-joins after reconnect.",
		},
	)

	EventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_events_received_total",
			Help: "Push events received, by logical event name.",
		},
		[]string{"event"},
	)

	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_fetches_total",
			Help: "Transaction pull-fetches, by outcome (ok, not_found, timeout, network, error).",
		},
		[]string{"outcome"},
	)

	CoalescedRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rps_coalesced_refreshes_total",
			Help: "Push events coalesced into an already pending follow-up refresh.",
		},
	)

	ActiveSubscriptionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rps_active_subscriptions",
			Help: "Number of live event subscriptions on the dispatch surface.",
		},
	)
)

// SetChannelState records the current connection state.
func SetChannelState(state int32) {
	ChannelStateGauge.Set(float64(state))
}

// IncrementReconnectAttempts increments the reconnection attempt counter.
func IncrementReconnectAttempts() {
	ReconnectAttemptsTotal.Inc()
}

// IncrementRoomJoinsSent increments the join frame counter.
func IncrementRoomJoinsSent() {
	RoomJoinsSentTotal.Inc()
}

// IncrementEventsReceived increments the received-event counter for one logical event name.
func IncrementEventsReceived(event string) {
	EventsReceivedTotal.WithLabelValues(event).Inc()
}

// IncrementFetches increments the pull-fetch counter for one outcome.
func IncrementFetches(outcome string) {
	FetchesTotal.WithLabelValues(outcome).Inc()
}

// IncrementCoalescedRefreshes increments the coalesced follow-up counter.
func IncrementCoalescedRefreshes() {
	CoalescedRefreshesTotal.Inc()
}

// IncrementActiveSubscriptions increments the live subscription gauge.
func IncrementActiveSubscriptions() {
	ActiveSubscriptionsGauge.Inc()
}

// DecrementActiveSubscriptions decrements the live subscription gauge.
func DecrementActiveSubscriptions() {
	ActiveSubscriptionsGauge.Dec()
}
