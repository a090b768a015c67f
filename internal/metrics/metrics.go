package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors, registered via Register.
var (
	regOK atomic.Bool

	workerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "worker",
			Name:      "starts_total",
			Help:      "Number of worker process spawns.",
		}, []string{"name"},
	)
	workerRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "worker",
			Name:      "restarts_total",
			Help:      "Number of restarts after an observed exit.",
		}, []string{"name"},
	)
	workerCrashes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "worker",
			Name:      "crashes_total",
			Help:      "Number of non-zero worker exits.",
		}, []string{"name"},
	)
	workerGivenUp = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "worker",
			Name:      "given_up_total",
			Help:      "Workers abandoned after reaching the crash streak cap.",
		}, []string{"name"},
	)
	crashStreak = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vigil",
			Subsystem: "worker",
			Name:      "crash_streak",
			Help:      "Current consecutive non-zero exit count per worker.",
		}, []string{"name"},
	)
	reapedProcesses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "reaper",
			Name:      "reaped_total",
			Help:      "Processes terminated by the reaper, by signal used.",
		}, []string{"signal"},
	)
)

// Register registers all metrics with the provided registerer. Safe to
// call multiple times; calls after a success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{workerStarts, workerRestarts, workerCrashes, workerGivenUp, crashStreak, reapedProcesses}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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

// Handler returns an http.Handler serving the DefaultGatherer. The caller
// wires the route and runs the server.
func Handler() http.Handler { return promhttp.Handler() }

// Helpers below no-op until Register has been called.

func IncStart(name string) {
	if regOK.Load() {
		workerStarts.WithLabelValues(name).Inc()
	}
}
func IncRestart(name string) {
	if regOK.Load() {
		workerRestarts.WithLabelValues(name).Inc()
	}
}
func IncCrash(name string) {
	if regOK.Load() {
		workerCrashes.WithLabelValues(name).Inc()
	}
}
func IncGivenUp(name string) {
	if regOK.Load() {
		workerGivenUp.WithLabelValues(name).Inc()
	}
}
func SetCrashStreak(name string, n int) {
	if regOK.Load() {
		crashStreak.WithLabelValues(name).Set(float64(n))
	}
}
func IncReaped(signal string) {
	if regOK.Load() {
		reapedProcesses.WithLabelValues(signal).Inc()
	}
}
