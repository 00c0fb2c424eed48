// Package syncloop runs the stash's two independent background tasks:
// periodic reconciliation against the remote bucket, and a periodic
// health snapshot. Both are plain ticker loops with a context-based
// Start/Close lifecycle.
package syncloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coresymbols/symd/internal/constants"
	"github.com/coresymbols/symd/internal/interfaces"
	"github.com/coresymbols/symd/stash"
)

// Syncer is the subset of *stash.Stash the sync task depends on, kept
// as an interface so a fake can stand in for tests.
type Syncer interface {
	Sync(ctx context.Context) (stash.SyncResult, error)
	GetSyncStatus(ctx context.Context) (stash.SyncStatus, error)
}

// Config configures a Loop.
type Config struct {
	Syncer              Syncer
	Observer            interfaces.SyncObserver // may be nil
	Logger              interfaces.Logger       // may be nil
	SyncInterval        time.Duration
	HealthcheckInterval time.Duration
}

// Loop owns the two background tickers. Safe for one Start/Close
// lifecycle; not restartable after Close.
type Loop struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Loop from cfg, applying interval defaults when unset.
func New(cfg Config) *Loop {
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = constants.DefaultSyncInterval
	}
	if cfg.HealthcheckInterval <= 0 {
		cfg.HealthcheckInterval = constants.DefaultHealthcheckInterval
	}
	if cfg.Observer == nil {
		cfg.Observer = noOpObserver{}
	}
	return &Loop{cfg: cfg}
}

// Start launches both background goroutines. It does not block.
func (l *Loop) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)

	l.wg.Add(2)
	go l.runSyncTask()
	go l.runHealthTask()
}

// Close stops both loops and waits for them to exit.
func (l *Loop) Close() error {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
	return nil
}

// RunSyncOnce runs a single reconciliation pass synchronously, outside
// the ticker cadence. The sync ticker calls it on each tick; tests call
// it directly.
func (l *Loop) RunSyncOnce(ctx context.Context) (res stash.SyncResult, err error) {
	defer l.recoverInto(&err, "sync")
	start := time.Now()
	res, err = l.cfg.Syncer.Sync(ctx)
	l.cfg.Observer.ObserveSyncRun(res.Added, res.Replaced, res.Deleted, time.Since(start), err != nil)
	if err != nil {
		l.logf("warn", "sync run failed: %v", err)
	}
	return res, err
}

func (l *Loop) runSyncTask() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.tickSync()
		}
	}
}

// tickSync runs one sync pass. RunSyncOnce already isolates panics, so
// a bug in the sync path skips that tick instead of taking down the
// whole process.
func (l *Loop) tickSync() {
	_, _ = l.RunSyncOnce(l.ctx)
}

func (l *Loop) runHealthTask() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.cfg.HealthcheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			l.tickHealth()
		}
	}
}

func (l *Loop) tickHealth() {
	defer func() {
		if r := recover(); r != nil {
			l.logf("error", "healthcheck task panicked: %v", r)
		}
	}()
	status, err := l.cfg.Syncer.GetSyncStatus(l.ctx)
	if err != nil {
		l.logf("warn", "healthcheck failed: %v", err)
		l.cfg.Observer.ObserveHealth(false)
		return
	}
	l.cfg.Observer.ObserveHealth(status.Healthy())
}

func (l *Loop) recoverInto(errp *error, what string) {
	if r := recover(); r != nil {
		l.logf("error", "%s task panicked: %v", what, r)
		*errp = fmt.Errorf("%s task panicked: %v", what, r)
	}
}

func (l *Loop) logf(level, format string, args ...interface{}) {
	if l.cfg.Logger == nil {
		return
	}
	switch level {
	case "warn":
		l.cfg.Logger.Warnf(format, args...)
	case "error":
		l.cfg.Logger.Errorf(format, args...)
	default:
		l.cfg.Logger.Infof(format, args...)
	}
}

type noOpObserver struct{}

func (noOpObserver) ObserveSyncRun(int, int, int, time.Duration, bool) {}
func (noOpObserver) ObserveHealth(bool)                                {}
