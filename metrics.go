package symd

import (
	"sync/atomic"
	"time"

	"github.com/coresymbols/symd/internal/interfaces"
)

// Metrics tracks operational statistics for a running stash/server
// instance: lookup traffic, the stash's in-memory cache, and the
// background sync loop. The same atomic-counter-plus-Snapshot shape as
// the upstream pack's device metrics, retargeted at symbolication
// instead of block I/O.
type Metrics struct {
	// Lookup traffic.
	LookupRequests atomic.Uint64
	LookupErrors   atomic.Uint64
	SymbolsResolved atomic.Uint64
	SymbolsMissed  atomic.Uint64

	// Open-MemDB cache (stash.open_memdbs).
	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64

	// Sync loop reconciliation counters, cumulative across runs.
	SyncAdds     atomic.Uint64
	SyncReplaces atomic.Uint64
	SyncDeletes  atomic.Uint64
	SyncErrors   atomic.Uint64
	SyncRuns     atomic.Uint64

	// Cumulative sync duration, for average-duration reporting.
	SyncDurationNs atomic.Uint64

	StartTime atomic.Int64 // server start timestamp (UnixNano)
}

// NewMetrics creates a new metrics instance with StartTime set to now.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordLookup records one /lookup request outcome.
func (m *Metrics) RecordLookup(resolved, missed int, err bool) {
	m.LookupRequests.Add(1)
	if err {
		m.LookupErrors.Add(1)
	}
	m.SymbolsResolved.Add(uint64(resolved))
	m.SymbolsMissed.Add(uint64(missed))
}

// RecordCacheLookup records whether an open_memdbs cache probe hit.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheHits.Add(1)
	} else {
		m.CacheMisses.Add(1)
	}
}

// RecordSyncRun records the outcome of one sync loop pass.
func (m *Metrics) RecordSyncRun(adds, replaces, deletes int, dur time.Duration, err bool) {
	m.SyncRuns.Add(1)
	m.SyncAdds.Add(uint64(adds))
	m.SyncReplaces.Add(uint64(replaces))
	m.SyncDeletes.Add(uint64(deletes))
	m.SyncDurationNs.Add(uint64(dur.Nanoseconds()))
	if err {
		m.SyncErrors.Add(1)
	}
}

// Snapshot is a point-in-time, derived-statistics view of Metrics.
type Snapshot struct {
	LookupRequests  uint64
	LookupErrors    uint64
	SymbolsResolved uint64
	SymbolsMissed   uint64
	LookupErrorRate float64

	CacheHits    uint64
	CacheMisses  uint64
	CacheHitRate float64

	SyncRuns        uint64
	SyncAdds        uint64
	SyncReplaces    uint64
	SyncDeletes     uint64
	SyncErrors      uint64
	AvgSyncDuration time.Duration

	UptimeNs uint64
}

// Snapshot returns a consistent-enough point-in-time view of m. Like the
// upstream pack's device snapshot, individual atomic loads are not
// mutually synchronized, so derived rates are approximate under
// concurrent writers.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		LookupRequests:  m.LookupRequests.Load(),
		LookupErrors:    m.LookupErrors.Load(),
		SymbolsResolved: m.SymbolsResolved.Load(),
		SymbolsMissed:   m.SymbolsMissed.Load(),
		CacheHits:       m.CacheHits.Load(),
		CacheMisses:     m.CacheMisses.Load(),
		SyncRuns:        m.SyncRuns.Load(),
		SyncAdds:        m.SyncAdds.Load(),
		SyncReplaces:    m.SyncReplaces.Load(),
		SyncDeletes:     m.SyncDeletes.Load(),
		SyncErrors:      m.SyncErrors.Load(),
	}

	if s.LookupRequests > 0 {
		s.LookupErrorRate = float64(s.LookupErrors) / float64(s.LookupRequests)
	}
	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.CacheHitRate = float64(s.CacheHits) / float64(total)
	}
	if s.SyncRuns > 0 {
		s.AvgSyncDuration = time.Duration(m.SyncDurationNs.Load() / s.SyncRuns)
	}

	s.UptimeNs = uint64(time.Now().UnixNano() - m.StartTime.Load())
	return s
}

// Reset zeroes every counter. Intended for tests.
func (m *Metrics) Reset() {
	m.LookupRequests.Store(0)
	m.LookupErrors.Store(0)
	m.SymbolsResolved.Store(0)
	m.SymbolsMissed.Store(0)
	m.CacheHits.Store(0)
	m.CacheMisses.Store(0)
	m.SyncAdds.Store(0)
	m.SyncReplaces.Store(0)
	m.SyncDeletes.Store(0)
	m.SyncErrors.Store(0)
	m.SyncRuns.Store(0)
	m.SyncDurationNs.Store(0)
	m.StartTime.Store(time.Now().UnixNano())
}

// SyncObserver is notified of sync loop outcomes. Pluggable the same way
// the upstream pack lets an Observer sit alongside its built-in Metrics.
type SyncObserver interface {
	ObserveSyncRun(adds, replaces, deletes int, dur time.Duration, err bool)
	ObserveHealth(healthy bool)
}

// NoOpSyncObserver discards every observation.
type NoOpSyncObserver struct{}

func (NoOpSyncObserver) ObserveSyncRun(int, int, int, time.Duration, bool) {}
func (NoOpSyncObserver) ObserveHealth(bool)                                {}

// MetricsSyncObserver implements SyncObserver by recording into Metrics.
type MetricsSyncObserver struct {
	metrics *Metrics
	healthy atomic.Bool
}

// NewMetricsSyncObserver returns a SyncObserver that records into m.
func NewMetricsSyncObserver(m *Metrics) *MetricsSyncObserver {
	return &MetricsSyncObserver{metrics: m}
}

func (o *MetricsSyncObserver) ObserveSyncRun(adds, replaces, deletes int, dur time.Duration, err bool) {
	o.metrics.RecordSyncRun(adds, replaces, deletes, dur, err)
}

func (o *MetricsSyncObserver) ObserveHealth(healthy bool) {
	o.healthy.Store(healthy)
}

// Healthy reports the most recently observed health state.
func (o *MetricsSyncObserver) Healthy() bool {
	return o.healthy.Load()
}

var (
	_ SyncObserver = (*MetricsSyncObserver)(nil)
	_ SyncObserver = NoOpSyncObserver{}

	_ interfaces.CacheObserver  = (*Metrics)(nil)
	_ interfaces.LookupObserver = (*Metrics)(nil)
)
