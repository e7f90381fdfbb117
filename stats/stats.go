// Package stats exposes Prometheus metrics for the federate state
// machine, the time coordinator, and the broker routing layer: grant
// counts, iteration counts, and per-dependency/per-route queue depth.
// Every recording method is nil-safe: calling one on a nil
// *FederateMetrics or *BrokerMetrics does nothing.
//
// Grounded on the nil-safe, registerer-injected metrics struct pattern
// used throughout the pack's NFS-stack metrics (one struct per
// subsystem, constructed with a `prometheus.Registerer`, reusing an
// already-registered collector on restart rather than panicking),
// generalized here from per-protocol-operation counters to co-
// simulation lifecycle counters.
package stats

import "github.com/prometheus/client_golang/prometheus"

// registerOrReuse registers c with reg, returning the already-registered
// collector instead of panicking if this process has already registered
// one under the same fully-qualified name (e.g. a core restarting its
// HTTP query surface without tearing down the default registry).
func registerOrReuse(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// FederateMetrics tracks state-machine transitions and time-coordinator
// grant/iteration outcomes for one federate.
type FederateMetrics struct {
	grantsTotal     *prometheus.CounterVec
	iterationsTotal *prometheus.CounterVec
	grantedTime     prometheus.Gauge
	mode            prometheus.Gauge
}

// NewFederateMetrics builds (or, if reg is non-nil, registers) the
// per-federate collectors, labeled by federate name. Passing a nil reg
// yields usable but unregistered collectors, handy in tests.
func NewFederateMetrics(reg prometheus.Registerer, federateName string) *FederateMetrics {
	m := &FederateMetrics{
		grantsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cosim",
			Subsystem:   "federate",
			Name:        "grants_total",
			Help:        "Total number of time grants delivered to a federate, labeled by result.",
			ConstLabels: prometheus.Labels{"federate": federateName},
		}, []string{"result"}),
		iterationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cosim",
			Subsystem:   "federate",
			Name:        "iterations_total",
			Help:        "Total number of iterative (fixed-point) re-requests at the current time step.",
			ConstLabels: prometheus.Labels{"federate": federateName},
		}, []string{"reason"}),
		grantedTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cosim",
			Subsystem:   "federate",
			Name:        "granted_time_ticks",
			Help:        "The federate's current granted time, in ticks.",
			ConstLabels: prometheus.Labels{"federate": federateName},
		}),
		mode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cosim",
			Subsystem:   "federate",
			Name:        "mode",
			Help:        "The federate's current lifecycle mode, as its Mode enum ordinal.",
			ConstLabels: prometheus.Labels{"federate": federateName},
		}),
	}
	if reg != nil {
		m.grantsTotal = registerOrReuse(reg, m.grantsTotal).(*prometheus.CounterVec)
		m.iterationsTotal = registerOrReuse(reg, m.iterationsTotal).(*prometheus.CounterVec)
		m.grantedTime = registerOrReuse(reg, m.grantedTime).(prometheus.Gauge)
		m.mode = registerOrReuse(reg, m.mode).(prometheus.Gauge)
	}
	return m
}

// RecordGrant records a granted time request, labeling by its outcome
// ("next_step", "iterating", "halted", "error").
func (m *FederateMetrics) RecordGrant(result string, grantedTicks int64) {
	if m == nil {
		return
	}
	m.grantsTotal.WithLabelValues(result).Inc()
	m.grantedTime.Set(float64(grantedTicks))
}

// RecordIteration counts one more iterative re-request, labeling by why
// the federate kept iterating ("dependency", "dependent", "input_changed").
func (m *FederateMetrics) RecordIteration(reason string) {
	if m == nil {
		return
	}
	m.iterationsTotal.WithLabelValues(reason).Inc()
}

// SetMode records the federate's current lifecycle mode as a gauge so
// it can be graphed alongside grant/iteration rates.
func (m *FederateMetrics) SetMode(ordinal int) {
	if m == nil {
		return
	}
	m.mode.Set(float64(ordinal))
}

// BrokerMetrics tracks routing-table size and per-peer queue depth for
// one broker or core node.
type BrokerMetrics struct {
	framesRoutedTotal *prometheus.CounterVec
	unknownDestTotal  prometheus.Counter
	queueDepth        *prometheus.GaugeVec
	childCount        prometheus.Gauge
}

func NewBrokerMetrics(reg prometheus.Registerer, nodeName string) *BrokerMetrics {
	m := &BrokerMetrics{
		framesRoutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "cosim",
			Subsystem:   "broker",
			Name:        "frames_routed_total",
			Help:        "Total number of ActionMessage frames routed, labeled by action.",
			ConstLabels: prometheus.Labels{"node": nodeName},
		}, []string{"action"}),
		unknownDestTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cosim",
			Subsystem:   "broker",
			Name:        "unknown_dest_total",
			Help:        "Total number of frames that bounced back as UNKNOWN_DEST at the root.",
			ConstLabels: prometheus.Labels{"node": nodeName},
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   "cosim",
			Subsystem:   "broker",
			Name:        "peer_queue_depth",
			Help:        "Outstanding frames queued for delivery to one peer link.",
			ConstLabels: prometheus.Labels{"node": nodeName},
		}, []string{"peer"}),
		childCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cosim",
			Subsystem:   "broker",
			Name:        "child_links",
			Help:        "Number of child links currently registered on this node.",
			ConstLabels: prometheus.Labels{"node": nodeName},
		}),
	}
	if reg != nil {
		m.framesRoutedTotal = registerOrReuse(reg, m.framesRoutedTotal).(*prometheus.CounterVec)
		m.unknownDestTotal = registerOrReuse(reg, m.unknownDestTotal).(prometheus.Counter)
		m.queueDepth = registerOrReuse(reg, m.queueDepth).(*prometheus.GaugeVec)
		m.childCount = registerOrReuse(reg, m.childCount).(prometheus.Gauge)
	}
	return m
}

func (m *BrokerMetrics) RecordRouted(action string) {
	if m == nil {
		return
	}
	m.framesRoutedTotal.WithLabelValues(action).Inc()
}

func (m *BrokerMetrics) RecordUnknownDest() {
	if m == nil {
		return
	}
	m.unknownDestTotal.Inc()
}

func (m *BrokerMetrics) SetQueueDepth(peer string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(peer).Set(float64(depth))
}

func (m *BrokerMetrics) SetChildCount(n int) {
	if m == nil {
		return
	}
	m.childCount.Set(float64(n))
}
