package cloudauth

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts logins accepted by the cloud service.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts terminal login failures.
	MetricLoginFailure
	// MetricMFARequired counts operations interrupted by a one-time-code
	// demand.
	MetricMFARequired
	// MetricMFAResolved counts challenges completed with a code.
	MetricMFAResolved
	// MetricSessionRotated counts rotations that changed the token pair.
	MetricSessionRotated
	// MetricSessionReused counts EnsureSession fast paths that returned
	// the cached session without a network call.
	MetricSessionReused
	// MetricCredentialFetchSuccess counts resolved device secrets.
	MetricCredentialFetchSuccess
	// MetricCredentialFetchFailure counts failed device secret fetches.
	MetricCredentialFetchFailure
	// MetricProbeSuccess counts accepted RTSP credential probes.
	MetricProbeSuccess
	// MetricProbeAuthFailed counts probes rejected by device auth.
	MetricProbeAuthFailed
	// MetricProbeDeviceError counts probes failed by the device itself.
	MetricProbeDeviceError
	// MetricTransportError counts retryable network failures.
	MetricTransportError
	// MetricReauthRaised counts reauth signals fired.
	MetricReauthRaised

	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed table of atomic counters, cheap enough to leave
// enabled in production. A nil *Metrics is a valid no-op receiver.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics returns a table honoring cfg.Enabled.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether counting is active.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{Counters: make(map[MetricID]uint64, int(metricIDCount))}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return snap
}
