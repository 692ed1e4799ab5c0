// Package selfstat tracks tallierd's own operational counters, grounded on
// the teacher's internalStats/selfstat.Stat fields in
// plugins/inputs/statsd/statsd.go, backed by real prometheus.Collector
// values the way etalazz-vsa's churn package backs its KPIs.
package selfstat

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats is tallierd's process-lifetime set of internal counters. Unlike
// the per-key reporting in the flush report (tallier.messages.child_N etc,
// written by package listener and totalled by package master), these are
// operational signals meant for
// the command-inspection service's STATS verb.
type Stats struct {
	registry *prometheus.Registry

	UDPPacketsRecv  prometheus.Counter
	UDPBytesRecv    prometheus.Counter
	UDPPacketsDrop  prometheus.Counter
	ParseTimeNS     prometheus.Gauge
	PendingMessages *prometheus.GaugeVec
	LastFlushUnix   prometheus.Gauge
}

// New creates a Stats registered against a private registry (not the
// global default registerer, so multiple tallierd instances in the same
// process — as in tests — never collide).
func New() *Stats {
	reg := prometheus.NewRegistry()
	s := &Stats{
		registry: reg,
		UDPPacketsRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tallierd_udp_packets_received_total",
			Help: "Total UDP datagrams received across all workers.",
		}),
		UDPBytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tallierd_udp_bytes_received_total",
			Help: "Total UDP bytes received across all workers.",
		}),
		UDPPacketsDrop: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tallierd_udp_packets_dropped_total",
			Help: "Total UDP datagrams dropped because a worker's inbound channel was full.",
		}),
		ParseTimeNS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tallierd_parse_time_ns",
			Help: "Duration of the most recently parsed datagram, in nanoseconds.",
		}),
		PendingMessages: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tallierd_pending_messages",
			Help: "Current depth of each worker's inbound datagram channel.",
		}, []string{"worker"}),
		LastFlushUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tallierd_last_flush_unix_seconds",
			Help: "Wall-clock time of the last successful flush.",
		}),
	}
	reg.MustRegister(s.UDPPacketsRecv, s.UDPBytesRecv, s.UDPPacketsDrop,
		s.ParseTimeNS, s.PendingMessages, s.LastFlushUnix)
	return s
}

// Render gathers all registered metric families and formats them as
// "key value" lines sorted by name, for the command-inspection service's
// STATS verb. It intentionally does not use the Prometheus text exposition
// format verbatim (no HELP/TYPE comments) to keep the command-service
// protocol uniform with the rest of its line-oriented output.
func (s *Stats) Render() ([]string, error) {
	families, err := s.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gathering self-stats: %w", err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			if len(m.GetLabel()) > 0 {
				for _, lbl := range m.GetLabel() {
					name = fmt.Sprintf("%s{%s=%q}", mf.GetName(), lbl.GetName(), lbl.GetValue())
				}
			}
			var value float64
			switch {
			case m.Counter != nil:
				value = m.GetCounter().GetValue()
			case m.Gauge != nil:
				value = m.GetGauge().GetValue()
			}
			lines = append(lines, fmt.Sprintf("%s %f", name, value))
		}
	}
	return lines, nil
}

// pendingMu serializes updates to the per-worker pending-message gauge so
// concurrent workers don't race on label creation in the underlying map.
var pendingMu sync.Mutex

// SetPending records the current depth of one worker's inbound channel.
func (s *Stats) SetPending(workerID int, depth int) {
	pendingMu.Lock()
	defer pendingMu.Unlock()
	s.PendingMessages.WithLabelValues(fmt.Sprintf("%d", workerID)).Set(float64(depth))
}
