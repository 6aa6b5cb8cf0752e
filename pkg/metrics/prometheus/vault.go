package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/caskfs/caskfs/pkg/metrics"
	"github.com/caskfs/caskfs/pkg/vault"
)

// vaultMetrics is the Prometheus implementation of vault.Metrics.
type vaultMetrics struct {
	unlocked         *prometheus.GaugeVec
	lifecycleOps     *prometheus.CounterVec
	lifecycleSeconds *prometheus.HistogramVec
}

// NewVaultMetrics creates a Prometheus-backed vault.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewVaultMetrics() vault.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &vaultMetrics{
		unlocked: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "caskfs_vault_unlocked",
				Help: "Whether a vault is currently unlocked (1) or locked (0)",
			},
			[]string{"mount_name"},
		),
		lifecycleOps: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "caskfs_vault_lifecycle_operations_total",
				Help: "Total vault lifecycle operations by operation and status",
			},
			[]string{"operation", "status"}, // operation: start, stop, mount, unmount
		),
		lifecycleSeconds: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "caskfs_vault_lifecycle_duration_seconds",
				Help: "Duration of vault lifecycle operations in seconds",
				Buckets: []float64{
					0.001, // key operations
					0.01,
					0.1,
					0.5,
					1, // mount helpers
					5,
					10,
					30, // mount timeout territory
				},
			},
			[]string{"operation"},
		),
	}
}

func (m *vaultMetrics) SetUnlocked(mountName string, unlocked bool) {
	val := 0.0
	if unlocked {
		val = 1.0
	}
	m.unlocked.WithLabelValues(mountName).Set(val)
}

func (m *vaultMetrics) observe(operation string, duration time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	m.lifecycleOps.WithLabelValues(operation, status).Inc()
	m.lifecycleSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *vaultMetrics) ObserveStart(duration time.Duration, ok bool) {
	m.observe("start", duration, ok)
}

func (m *vaultMetrics) ObserveStop(duration time.Duration) {
	m.observe("stop", duration, true)
}

func (m *vaultMetrics) ObserveMount(duration time.Duration, ok bool) {
	m.observe("mount", duration, ok)
}

func (m *vaultMetrics) ObserveUnmount(duration time.Duration, ok bool) {
	m.observe("unmount", duration, ok)
}
