// Package interfaces provides the internal interface definitions shared
// across symd's packages. They are kept separate from the root package
// to avoid an import cycle between it and the stash, syncloop, and
// lookup packages.
package interfaces

import (
	"context"
	"io"
	"time"
)

// ObjectEntry describes one object listed from the remote bucket.
type ObjectEntry struct {
	Key  string
	ETag string
	Size int64
}

// ObjectReader is the read side of a remote object store: list a
// bucket's keys under a prefix, and fetch one object's bytes. The stash
// sync loop is the only caller; it never writes to the bucket.
type ObjectReader interface {
	List(ctx context.Context, prefix string) ([]ObjectEntry, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Logger is the structured logging surface symd depends on, satisfied
// by *logging.Logger and easily faked in tests.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// SyncObserver is notified of sync loop and healthcheck outcomes.
// Implementations must be safe for concurrent use: the sync task and the
// healthcheck task call it from independent goroutines.
type SyncObserver interface {
	ObserveSyncRun(adds, replaces, deletes int, dur time.Duration, err bool)
	ObserveHealth(healthy bool)
}

// CacheObserver is notified whenever a cache probe resolves, so a caller
// can track hit/miss rates without the probed package depending on a
// concrete metrics type.
type CacheObserver interface {
	RecordCacheLookup(hit bool)
}

// LookupObserver is notified of one /lookup request's outcome.
type LookupObserver interface {
	RecordLookup(resolved, missed int, err bool)
}
