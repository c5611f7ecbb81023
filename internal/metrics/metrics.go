package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	serverUp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "asamgr",
			Subsystem: "server",
			Name:      "up",
			Help:      "1 when the server process is recorded and alive.",
		},
	)
	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asamgr",
			Name:      "operations_total",
			Help:      "Lifecycle operations by kind and result.",
		}, []string{"op", "result"},
	)
	stops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asamgr",
			Subsystem: "server",
			Name:      "stops_total",
			Help:      "Number of stops (graceful or forced).",
		}, []string{"mode"},
	)
	startDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "asamgr",
			Subsystem: "server",
			Name:      "start_duration_seconds",
			Help:      "Time from spawn until the server listens on its port.",
			Buckets:   []float64{1, 2, 5, 7, 10, 15, 30, 60},
		},
	)
	backupBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "asamgr",
			Subsystem: "backup",
			Name:      "bytes",
			Help:      "Total size of backup artifacts.",
		},
	)
	backupArtifacts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "asamgr",
			Subsystem: "backup",
			Name:      "artifacts",
			Help:      "Number of backup artifacts.",
		},
	)
	backupEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "asamgr",
			Subsystem: "backup",
			Name:      "evictions_total",
			Help:      "Backup artifacts deleted by retention.",
		},
	)
	warningsBroadcast = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "asamgr",
			Subsystem: "schedule",
			Name:      "warnings_broadcast_total",
			Help:      "Warning messages sent to players.",
		}, []string{"action", "result"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{serverUp, operations, stops, startDuration, backupBytes, backupArtifacts, backupEvictions, warningsBroadcast}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// WriteTextfile writes g in the text exposition format for the node
// exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, g)
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func SetServerUp(up bool) {
	if regOK.Load() {
		if up {
			serverUp.Set(1)
		} else {
			serverUp.Set(0)
		}
	}
}

func IncOperation(op string, err error) {
	if regOK.Load() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		operations.WithLabelValues(op, result).Inc()
	}
}

func IncStop(mode string) {
	if regOK.Load() {
		stops.WithLabelValues(mode).Inc()
	}
}

func ObserveStartDuration(seconds float64) {
	if regOK.Load() {
		startDuration.Observe(seconds)
	}
}

func SetBackupUsage(artifacts int, bytes int64) {
	if regOK.Load() {
		backupArtifacts.Set(float64(artifacts))
		backupBytes.Set(float64(bytes))
	}
}

func AddBackupEvictions(n int) {
	if regOK.Load() {
		backupEvictions.Add(float64(n))
	}
}

func IncWarningBroadcast(action string, err error) {
	if regOK.Load() {
		result := "ok"
		if err != nil {
			result = "error"
		}
		warningsBroadcast.WithLabelValues(action, result).Inc()
	}
}
