package syncloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coresymbols/symd/stash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	syncCalls  atomic.Int32
	statusCall atomic.Int32
	syncResult stash.SyncResult
	syncErr    error
	status     stash.SyncStatus
	statusErr  error
	panicSync  bool
}

func (f *fakeSyncer) Sync(ctx context.Context) (stash.SyncResult, error) {
	f.syncCalls.Add(1)
	if f.panicSync {
		panic("boom")
	}
	return f.syncResult, f.syncErr
}

func (f *fakeSyncer) GetSyncStatus(ctx context.Context) (stash.SyncStatus, error) {
	f.statusCall.Add(1)
	return f.status, f.statusErr
}

type fakeObserver struct {
	syncRuns atomic.Int32
	healthy  atomic.Bool
}

func (o *fakeObserver) ObserveSyncRun(adds, replaces, deletes int, dur time.Duration, err bool) {
	o.syncRuns.Add(1)
}

func (o *fakeObserver) ObserveHealth(healthy bool) {
	o.healthy.Store(healthy)
}

func TestRunSyncOnceReportsToObserver(t *testing.T) {
	syncer := &fakeSyncer{syncResult: stash.SyncResult{Added: 2}}
	observer := &fakeObserver{}
	loop := New(Config{Syncer: syncer, Observer: observer})

	result, err := loop.RunSyncOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.EqualValues(t, 1, observer.syncRuns.Load())
}

func TestRunSyncOnceRecoversFromPanic(t *testing.T) {
	syncer := &fakeSyncer{panicSync: true}
	loop := New(Config{Syncer: syncer})

	_, err := loop.RunSyncOnce(context.Background())
	assert.Error(t, err)
}

func TestLoopRunsBothTasksOnTicker(t *testing.T) {
	syncer := &fakeSyncer{}
	observer := &fakeObserver{}
	loop := New(Config{
		Syncer:              syncer,
		Observer:            observer,
		SyncInterval:        10 * time.Millisecond,
		HealthcheckInterval: 10 * time.Millisecond,
	})

	loop.Start(context.Background())
	defer loop.Close()

	require.Eventually(t, func() bool {
		return syncer.syncCalls.Load() > 0 && syncer.statusCall.Load() > 0
	}, time.Second, 5*time.Millisecond)
}

func TestLoopCloseStopsTasks(t *testing.T) {
	syncer := &fakeSyncer{}
	loop := New(Config{
		Syncer:              syncer,
		SyncInterval:        5 * time.Millisecond,
		HealthcheckInterval: 5 * time.Millisecond,
	})
	loop.Start(context.Background())

	require.Eventually(t, func() bool { return syncer.syncCalls.Load() > 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, loop.Close())

	countAfterClose := syncer.syncCalls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, countAfterClose, syncer.syncCalls.Load())
}

func TestHealthTaskObservesStatus(t *testing.T) {
	syncer := &fakeSyncer{status: stash.SyncStatus{RemoteTotal: 10}}
	observer := &fakeObserver{}
	loop := New(Config{
		Syncer:              syncer,
		Observer:            observer,
		SyncInterval:        time.Hour,
		HealthcheckInterval: 10 * time.Millisecond,
	})
	loop.Start(context.Background())
	defer loop.Close()

	require.Eventually(t, func() bool { return syncer.statusCall.Load() > 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, observer.healthy.Load())
}
