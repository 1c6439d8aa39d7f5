package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConsoleMetrics exposes counters, gauges and histograms for the scheduling
// console: backend calls, refreshes, gestures and the live stream.
type ConsoleMetrics struct {
	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	refreshes     *prometheus.CounterVec
	entities      *prometheus.GaugeVec
	stale         prometheus.Gauge
	dragOutcomes  *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	streamClients prometheus.Gauge
}

func NewConsoleMetrics(reg prometheus.Registerer) *ConsoleMetrics {
	m := &ConsoleMetrics{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "scheduleapi",
			Name:      "requests_total",
			Help:      "Schedule backend calls by operation and HTTP status",
		}, []string{"op", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "frontdesk",
			Subsystem: "scheduleapi",
			Name:      "request_seconds",
			Help:      "Latency of schedule backend calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "console",
			Name:      "refresh_total",
			Help:      "Snapshot refreshes by reason and result (applied, discarded, failed)",
		}, []string{"reason", "result"}),
		entities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "frontdesk",
			Subsystem: "console",
			Name:      "snapshot_entities",
			Help:      "Entities in the current snapshot by kind",
		}, []string{"kind"}),
		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "frontdesk",
			Subsystem: "console",
			Name:      "snapshot_stale",
			Help:      "1 while the grid shows a snapshot older than the last failed refresh",
		}),
		dragOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "console",
			Name:      "drag_outcomes_total",
			Help:      "Drag-reschedule gestures by outcome",
		}, []string{"outcome"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "frontdesk",
			Subsystem: "console",
			Name:      "validation_rejections_total",
			Help:      "Local validation refusals by code",
		}, []string{"code"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "frontdesk",
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected grid stream clients",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.apiRequests, m.apiLatency, m.refreshes, m.entities, m.stale,
		m.dragOutcomes, m.rejections, m.streamClients)
	return m
}

func (m *ConsoleMetrics) ObserveAPIRequest(op, status string, seconds float64) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(op, status).Inc()
	m.apiLatency.WithLabelValues(op).Observe(seconds)
}

func (m *ConsoleMetrics) ObserveRefresh(reason, result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(reason, result).Inc()
}

// SetSnapshot records entity counts of the snapshot now on screen.
func (m *ConsoleMetrics) SetSnapshot(appointments, timeBlocks, locks, holidays int) {
	if m == nil {
		return
	}
	m.entities.WithLabelValues("appointment").Set(float64(appointments))
	m.entities.WithLabelValues("time_block").Set(float64(timeBlocks))
	m.entities.WithLabelValues("booking_lock").Set(float64(locks))
	m.entities.WithLabelValues("holiday").Set(float64(holidays))
}

func (m *ConsoleMetrics) SetStale(stale bool) {
	if m == nil {
		return
	}
	if stale {
		m.stale.Set(1)
		return
	}
	m.stale.Set(0)
}

func (m *ConsoleMetrics) ObserveDragOutcome(outcome string) {
	if m == nil {
		return
	}
	m.dragOutcomes.WithLabelValues(outcome).Inc()
}

func (m *ConsoleMetrics) ObserveRejection(code string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(code).Inc()
}

func (m *ConsoleMetrics) StreamConnected() {
	if m == nil {
		return
	}
	m.streamClients.Inc()
}

func (m *ConsoleMetrics) StreamDisconnected() {
	if m == nil {
		return
	}
	m.streamClients.Dec()
}
