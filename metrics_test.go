package symd

import (
	"testing"
	"time"
)

func TestMetricsLookup(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	if snap.LookupRequests != 0 {
		t.Errorf("expected 0 initial lookups, got %d", snap.LookupRequests)
	}

	m.RecordLookup(3, 1, false)
	m.RecordLookup(0, 2, true)

	snap = m.Snapshot()
	if snap.LookupRequests != 2 {
		t.Errorf("LookupRequests = %d, want 2", snap.LookupRequests)
	}
	if snap.LookupErrors != 1 {
		t.Errorf("LookupErrors = %d, want 1", snap.LookupErrors)
	}
	if snap.SymbolsResolved != 3 {
		t.Errorf("SymbolsResolved = %d, want 3", snap.SymbolsResolved)
	}
	if snap.SymbolsMissed != 3 {
		t.Errorf("SymbolsMissed = %d, want 3", snap.SymbolsMissed)
	}
	if snap.LookupErrorRate < 0.49 || snap.LookupErrorRate > 0.51 {
		t.Errorf("LookupErrorRate = %.3f, want ~0.5", snap.LookupErrorRate)
	}
}

func TestMetricsCache(t *testing.T) {
	m := NewMetrics()

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)

	snap := m.Snapshot()
	if snap.CacheHits != 2 {
		t.Errorf("CacheHits = %d, want 2", snap.CacheHits)
	}
	if snap.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", snap.CacheMisses)
	}
	expected := 2.0 / 3.0
	if snap.CacheHitRate < expected-0.01 || snap.CacheHitRate > expected+0.01 {
		t.Errorf("CacheHitRate = %.3f, want ~%.3f", snap.CacheHitRate, expected)
	}
}

func TestMetricsSyncRun(t *testing.T) {
	m := NewMetrics()

	m.RecordSyncRun(2, 1, 0, 100*time.Millisecond, false)
	m.RecordSyncRun(0, 0, 1, 300*time.Millisecond, true)

	snap := m.Snapshot()
	if snap.SyncRuns != 2 {
		t.Errorf("SyncRuns = %d, want 2", snap.SyncRuns)
	}
	if snap.SyncAdds != 2 {
		t.Errorf("SyncAdds = %d, want 2", snap.SyncAdds)
	}
	if snap.SyncReplaces != 1 {
		t.Errorf("SyncReplaces = %d, want 1", snap.SyncReplaces)
	}
	if snap.SyncDeletes != 1 {
		t.Errorf("SyncDeletes = %d, want 1", snap.SyncDeletes)
	}
	if snap.SyncErrors != 1 {
		t.Errorf("SyncErrors = %d, want 1", snap.SyncErrors)
	}
	if snap.AvgSyncDuration != 200*time.Millisecond {
		t.Errorf("AvgSyncDuration = %v, want 200ms", snap.AvgSyncDuration)
	}
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	if snap.UptimeNs < 10*uint64(time.Millisecond) {
		t.Errorf("expected uptime >= 10ms, got %d ns", snap.UptimeNs)
	}
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordLookup(1, 0, false)
	m.RecordSyncRun(1, 0, 0, time.Second, false)

	m.Reset()

	snap := m.Snapshot()
	if snap.LookupRequests != 0 || snap.SyncRuns != 0 {
		t.Errorf("expected zeroed snapshot after reset, got %+v", snap)
	}
}

func TestMetricsSyncObserver(t *testing.T) {
	m := NewMetrics()
	obs := NewMetricsSyncObserver(m)

	obs.ObserveSyncRun(1, 2, 0, 50*time.Millisecond, false)
	obs.ObserveHealth(true)

	snap := m.Snapshot()
	if snap.SyncAdds != 1 || snap.SyncReplaces != 2 {
		t.Errorf("observer did not forward to metrics: %+v", snap)
	}
	if !obs.Healthy() {
		t.Error("expected Healthy() to reflect the last observed health state")
	}
}

func TestNoOpSyncObserver(t *testing.T) {
	var obs SyncObserver = NoOpSyncObserver{}
	obs.ObserveSyncRun(1, 1, 1, time.Second, true)
	obs.ObserveHealth(false)
}
