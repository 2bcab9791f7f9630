package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments shared by every store that uses it.
// All series carry a "store" label (see WithName).
//
// Instruments:
//   - treestore_dispatches_total (counter): dispatches by outcome ("ok", "error")
//   - treestore_dispatch_duration_seconds (histogram): reduction time
//   - treestore_subscribers (gauge): current subscriber count
//   - treestore_loaders_inflight (gauge): loaders started but not yet applied
//   - treestore_loaders_total (counter): applied loader outcomes ("ok", "error")
//
// A nil *Metrics records nothing.
type Metrics struct {
	dispatches  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	subscribers *prometheus.GaugeVec
	inflight    *prometheus.GaugeVec
	loaders     *prometheus.CounterVec
}

// NewMetrics creates the store instruments and registers them with reg.
// Instruments already registered by an earlier call are reused, so several
// stores can share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treestore",
			Name:      "dispatches_total",
			Help:      "Total number of dispatched actions by outcome.",
		}, []string{"store", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "treestore",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent reducing a dispatched action.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"store"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "treestore",
			Name:      "subscribers",
			Help:      "Current number of subscribers.",
		}, []string{"store"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "treestore",
			Name:      "loaders_inflight",
			Help:      "Async loaders started but not yet applied.",
		}, []string{"store"}),
		loaders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treestore",
			Name:      "loaders_total",
			Help:      "Total number of applied loader results by outcome.",
		}, []string{"store", "outcome"}),
	}

	var err error
	m.dispatches, err = register(reg, m.dispatches)
	if err != nil {
		return nil, err
	}
	m.duration, err = register(reg, m.duration)
	if err != nil {
		return nil, err
	}
	m.subscribers, err = register(reg, m.subscribers)
	if err != nil {
		return nil, err
	}
	m.inflight, err = register(reg, m.inflight)
	if err != nil {
		return nil, err
	}
	m.loaders, err = register(reg, m.loaders)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if reg == nil {
		return c, nil
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) observeDispatch(store string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.dispatches.WithLabelValues(store, outcome(err)).Inc()
	m.duration.WithLabelValues(store).Observe(elapsed.Seconds())
}

func (m *Metrics) setSubscribers(store string, n int) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(store).Set(float64(n))
}

func (m *Metrics) loaderStarted(store string) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(store).Inc()
}

func (m *Metrics) loaderApplied(store string, err error) {
	if m == nil {
		return
	}
	m.inflight.WithLabelValues(store).Dec()
	m.loaders.WithLabelValues(store, outcome(err)).Inc()
}
