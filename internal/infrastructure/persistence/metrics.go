package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics は接続状態とフォールバック利用を Prometheus へ公開する。
// 運用者はフォールバック書き込みの増加で耐久性の劣化を検知できる。
type Metrics struct {
	connectAttempts prometheus.Counter
	fallbackWrites  prometheus.Counter
	reconciled      prometheus.Counter
	state           prometheus.Gauge
}

// NewMetrics registers the adapter metrics on the given registerer.
// テストでは独立した registry を渡してグローバル汚染を避ける。
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admissions_primary_connect_attempts_total",
			Help: "Number of connection attempts against the primary store.",
		}),
		fallbackWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admissions_fallback_writes_total",
			Help: "Number of application records written to the in-memory fallback store.",
		}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admissions_reconciled_records_total",
			Help: "Number of fallback records moved into the primary store after reconnect.",
		}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "admissions_persistence_state",
			Help: "Connectivity state of the persistence adapter (0=disconnected, 1=connected, 2=failed).",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.connectAttempts, m.fallbackWrites, m.reconciled, m.state)
	}
	return m
}

func (m *Metrics) observeState(s State) {
	if m == nil {
		return
	}
	m.state.Set(float64(s))
}

func (m *Metrics) observeAttempt() {
	if m == nil {
		return
	}
	m.connectAttempts.Inc()
}

func (m *Metrics) observeFallbackWrite() {
	if m == nil {
		return
	}
	m.fallbackWrites.Inc()
}

func (m *Metrics) observeReconciled(count int) {
	if m == nil {
		return
	}
	m.reconciled.Add(float64(count))
}
