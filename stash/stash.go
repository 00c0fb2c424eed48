// Package stash owns the local directory of MemDB files and keeps it
// eventually consistent with a remote object store: persisted sync
// state, a reference-counted cache of opened MemDB mappings, and the
// reconciliation and fuzzy-match operations the rest of the server
// calls into.
package stash

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/coresymbols/symd/internal/bufpool"
	"github.com/coresymbols/symd/internal/constants"
	"github.com/coresymbols/symd/internal/errs"
	"github.com/coresymbols/symd/internal/interfaces"
	"github.com/coresymbols/symd/internal/mmapfile"
	"github.com/coresymbols/symd/memdb"
	"github.com/coresymbols/symd/sdk"
	"github.com/ulikunitz/xz"
)

// downloadCopyBufSize is the pooled buffer size used to stream a
// decompressed SDK object to its temp file during sync.
const downloadCopyBufSize = 256 * 1024

// RemoteSdk is one entry of the persisted sync.state: what the stash
// last observed for a given SDK's published object.
type RemoteSdk struct {
	Filename string    `json:"filename"`
	Info     sdk.Info  `json:"info"`
	Size     int64     `json:"size"`
	ETag     string    `json:"etag"`
}

// State is the stash's persisted sync.state document.
type State struct {
	Sdks     map[string]RemoteSdk `json:"sdks"`
	Revision uint64               `json:"revision"`
}

// SyncStatus reports the outcome of comparing local state to a fresh
// remote listing, without applying any change.
type SyncStatus struct {
	RemoteTotal int
	Missing     int
	Different   int
	Revision    uint64
	Offline     bool
}

// Healthy reports the stash's health: an offline remote is reported as
// healthy (a transient outage shouldn't flip the service unhealthy),
// otherwise health requires the missing+different ratio to stay under
// the configured threshold.
func (s SyncStatus) Healthy() bool {
	if s.Offline {
		return true
	}
	if s.RemoteTotal == 0 {
		return true
	}
	return float64(s.Missing+s.Different)/float64(s.RemoteTotal) < constants.UnhealthyMissingRatio
}

// Lag is the count of remote SDKs not yet reflected locally — surfaced
// on /health as sync_lag. An offline snapshot always reports zero lag
// since there is nothing fresh to compare against.
func (s SyncStatus) Lag() int {
	if s.Offline {
		return 0
	}
	return s.Missing + s.Different
}

// SyncResult tallies what one Sync call actually changed.
type SyncResult struct {
	Added    int
	Replaced int
	Deleted  int
}

type openEntry struct {
	file   *mmapfile.File
	reader *memdb.Reader
}

// Stash is safe for concurrent use. Reads (ListSdks, GetMemDb,
// GetSyncStatus) may run concurrently with a Sync; Sync itself must be
// serialized by the caller (the background loop does this).
type Stash struct {
	dir         string
	objectStore interfaces.ObjectReader
	logger      interfaces.Logger

	// cacheObserver is notified of every GetMemDb cache probe. It may be
	// left nil (the zero value), in which case probes simply aren't
	// recorded anywhere.
	cacheObserver interfaces.CacheObserver

	stateMu sync.RWMutex
	state   State

	memDBsMu sync.RWMutex
	memDBs   map[sdk.Info]*openEntry
}

// SetCacheObserver wires an observer to be notified of GetMemDb cache
// hits and misses. Call it once after Open, before serving traffic.
func (s *Stash) SetCacheObserver(o interfaces.CacheObserver) {
	s.cacheObserver = o
}

func (s *Stash) recordCacheLookup(hit bool) {
	if s.cacheObserver != nil {
		s.cacheObserver.RecordCacheLookup(hit)
	}
}

// Open loads (or initializes) the sync.state file in dir and returns a
// ready Stash.
func Open(dir string, objectStore interfaces.ObjectReader, logger interfaces.Logger) (*Stash, error) {
	s := &Stash{
		dir:         dir,
		objectStore: objectStore,
		logger:      logger,
		memDBs:      make(map[sdk.Info]*openEntry),
	}

	path := filepath.Join(dir, constants.SyncStateFilename)
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		s.state = State{Sdks: make(map[string]RemoteSdk)}
	case err != nil:
		return nil, errs.Wrap("stash.Open", errs.CodeInternal, err)
	default:
		if err := json.Unmarshal(data, &s.state); err != nil {
			return nil, errs.Wrap("stash.Open", errs.CodeInternal, err)
		}
		if s.state.Sdks == nil {
			s.state.Sdks = make(map[string]RemoteSdk)
		}
	}
	return s, nil
}

func (s *Stash) logf(level string, format string, args ...interface{}) {
	if s.logger == nil {
		return
	}
	switch level {
	case "warn":
		s.logger.Warnf(format, args...)
	default:
		s.logger.Infof(format, args...)
	}
}

// persist writes state to sync.state via a temp file + rename.
func (s *Stash) persist() error {
	data, err := json.Marshal(s.state)
	if err != nil {
		return errs.Wrap("stash.persist", errs.CodeInternal, err)
	}
	finalPath := filepath.Join(s.dir, constants.SyncStateFilename)
	tempPath := finalPath + constants.TempStateSuffix
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return errs.Wrap("stash.persist", errs.CodeInternal, err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return errs.Wrap("stash.persist", errs.CodeInternal, err)
	}
	return nil
}

// ListSdks returns a snapshot of every SDK currently in local state.
func (s *Stash) ListSdks() []sdk.Info {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	out := make([]sdk.Info, 0, len(s.state.Sdks))
	for _, r := range s.state.Sdks {
		out = append(out, r.Info)
	}
	return out
}

// GetRevision returns the current persisted revision.
func (s *Stash) GetRevision() uint64 {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state.Revision
}

// localFilename strips a published remote key's compression suffix to
// recover the name the stash stores it under locally.
func localFilename(remoteKey string) string {
	suffix := constants.MemDBSuffix + constants.CompressedSuffix
	if strings.HasSuffix(remoteKey, suffix) {
		return strings.TrimSuffix(remoteKey, constants.CompressedSuffix)
	}
	return remoteKey
}

// remoteByLocalName lists the bucket and keys entries by the local
// filename they'd be stored under.
func (s *Stash) remoteByLocalName(ctx context.Context) (map[string]RemoteSdk, error) {
	entries, err := s.objectStore.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]RemoteSdk, len(entries))
	for _, e := range entries {
		local := localFilename(e.Key)
		info, parseErr := sdk.ParseFilename(local)
		if parseErr != nil {
			continue // not a recognizable MemDB object; ignore
		}
		out[local] = RemoteSdk{Filename: e.Key, Info: info, Size: e.Size, ETag: e.ETag}
	}
	return out, nil
}

// GetSyncStatus fetches a fresh remote listing and compares it to
// local state without applying any change.
func (s *Stash) GetSyncStatus(ctx context.Context) (SyncStatus, error) {
	remote, err := s.remoteByLocalName(ctx)
	if err != nil {
		s.logf("warn", "remote listing unavailable, reporting offline: %v", err)
		return SyncStatus{Offline: true, Revision: s.GetRevision()}, nil
	}

	s.stateMu.RLock()
	defer s.stateMu.RUnlock()

	status := SyncStatus{RemoteTotal: len(remote), Revision: s.state.Revision}
	for name, r := range remote {
		local, ok := s.state.Sdks[name]
		if !ok {
			status.Missing++
			continue
		}
		if local.ETag != r.ETag || local.Size != r.Size {
			status.Different++
		}
	}
	return status, nil
}

// Sync performs the full reconciliation: additions and
// replacements first (arbitrary order), deletions last, persisting
// sync.state after each individual change so an interrupted sync still
// leaves a consistent prefix applied.
func (s *Stash) Sync(ctx context.Context) (SyncResult, error) {
	remote, err := s.remoteByLocalName(ctx)
	if err != nil {
		return SyncResult{}, errs.Wrap("stash.Sync", errs.CodeRemoteUnavailable, err)
	}

	var result SyncResult

	s.stateMu.RLock()
	toDelete := make(map[string]struct{})
	for name := range s.state.Sdks {
		if _, ok := remote[name]; !ok {
			toDelete[name] = struct{}{}
		}
	}
	s.stateMu.RUnlock()

	for name, r := range remote {
		s.stateMu.RLock()
		local, exists := s.state.Sdks[name]
		s.stateMu.RUnlock()

		switch {
		case !exists:
			if err := s.downloadAndApply(ctx, name, r); err != nil {
				return result, err
			}
			result.Added++
		case local.ETag != r.ETag || local.Size != r.Size:
			if err := s.downloadAndApply(ctx, name, r); err != nil {
				return result, err
			}
			result.Replaced++
		default:
			// unchanged
		}
	}

	for name := range toDelete {
		if err := s.deleteLocal(name); err != nil {
			return result, err
		}
		result.Deleted++
	}

	s.logf("info", "sync complete: added=%d replaced=%d deleted=%d", result.Added, result.Replaced, result.Deleted)
	return result, nil
}

// downloadAndApply fetches and decompresses one object into the stash
// directory, then commits it to local state. A failed or partial
// download never leaves the destination file in place.
func (s *Stash) downloadAndApply(ctx context.Context, localName string, r RemoteSdk) error {
	body, err := s.objectStore.Get(ctx, r.Filename)
	if err != nil {
		return errs.WrapSdk("stash.downloadAndApply", r.Info.String(), errs.CodeRemoteUnavailable, err)
	}
	defer body.Close()

	destPath := filepath.Join(s.dir, localName)
	tmp, err := os.CreateTemp(s.dir, localName+".download-*")
	if err != nil {
		return errs.WrapSdk("stash.downloadAndApply", r.Info.String(), errs.CodeInternal, err)
	}
	tmpPath := tmp.Name()

	xr, err := xz.NewReader(body)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.WrapSdk("stash.downloadAndApply", r.Info.String(), errs.CodeRemoteUnavailable, err)
	}
	copyBuf := bufpool.Get(downloadCopyBufSize)
	_, copyErr := io.CopyBuffer(tmp, xr, copyBuf)
	bufpool.Put(copyBuf)
	if copyErr != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errs.WrapSdk("stash.downloadAndApply", r.Info.String(), errs.CodeRemoteUnavailable, copyErr)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errs.WrapSdk("stash.downloadAndApply", r.Info.String(), errs.CodeInternal, err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return errs.WrapSdk("stash.downloadAndApply", r.Info.String(), errs.CodeInternal, err)
	}

	// Evict any stale mapping before committing the new state so no
	// reader can obtain a handle spanning the old and new file.
	s.evictOpen(r.Info)

	s.stateMu.Lock()
	s.state.Sdks[localName] = r
	s.state.Revision++
	err = s.persist()
	s.stateMu.Unlock()
	if err != nil {
		s.logf("warn", "downloadAndApply %s: failed to persist state: %v", r.Info, err)
		return err
	}
	s.logf("info", "downloaded %s", r.Info)
	return nil
}

func (s *Stash) deleteLocal(localName string) error {
	s.stateMu.RLock()
	r, ok := s.state.Sdks[localName]
	s.stateMu.RUnlock()
	if !ok {
		return nil
	}

	if err := os.Remove(filepath.Join(s.dir, localName)); err != nil && !os.IsNotExist(err) {
		return errs.WrapSdk("stash.deleteLocal", r.Info.String(), errs.CodeInternal, err)
	}
	s.evictOpen(r.Info)

	s.stateMu.Lock()
	delete(s.state.Sdks, localName)
	s.state.Revision++
	err := s.persist()
	s.stateMu.Unlock()
	if err != nil {
		return err
	}
	s.logf("info", "deleted %s", r.Info)
	return nil
}

func (s *Stash) evictOpen(info sdk.Info) {
	s.memDBsMu.Lock()
	entry, ok := s.memDBs[info]
	if ok {
		delete(s.memDBs, info)
	}
	s.memDBsMu.Unlock()
	if ok {
		entry.reader.Close()
		entry.file.Release()
	}
}

// GetMemDb returns a reference-counted handle to info's opened MemDB,
// opening and caching it if this is the first request. The returned
// release func must be called exactly once when the caller is done;
// until then, the mapping stays valid even if a concurrent Sync removes
// the SDK from local state.
func (s *Stash) GetMemDb(info sdk.Info) (*memdb.Reader, func(), error) {
	s.memDBsMu.RLock()
	entry, ok := s.memDBs[info]
	if ok {
		entry.file.Retain()
	}
	s.memDBsMu.RUnlock()
	if ok {
		s.recordCacheLookup(true)
		return entry.reader, func() { entry.file.Release() }, nil
	}

	s.stateMu.RLock()
	_, known := s.state.Sdks[info.Filename()]
	s.stateMu.RUnlock()
	if !known {
		s.recordCacheLookup(false)
		return nil, nil, errs.NewSdk("stash.GetMemDb", info.String(), errs.CodeUnknownSdk, "sdk not present in local state")
	}

	s.memDBsMu.Lock()
	defer s.memDBsMu.Unlock()
	if entry, ok := s.memDBs[info]; ok {
		entry.file.Retain()
		s.recordCacheLookup(true)
		return entry.reader, func() { entry.file.Release() }, nil
	}

	s.recordCacheLookup(false)
	f, err := mmapfile.Open(filepath.Join(s.dir, info.Filename()))
	if err != nil {
		return nil, nil, errs.WrapSdk("stash.GetMemDb", info.String(), errs.CodeInternal, err)
	}
	reader, err := memdb.OpenMapped(f)
	if err != nil {
		f.Release()
		return nil, nil, errs.WrapSdk("stash.GetMemDb", info.String(), errs.CodeBadMemDb, err)
	}
	s.memDBs[info] = &openEntry{file: f, reader: reader}
	f.Retain()
	return reader, func() { f.Release() }, nil
}

// GetMemDbFromSdkId parses id as a canonical filename and delegates to
// GetMemDb.
func (s *Stash) GetMemDbFromSdkId(id string) (*memdb.Reader, func(), error) {
	info, err := sdk.ParseFilename(id + constants.MemDBSuffix)
	if err != nil {
		return nil, nil, errs.NewSdk("stash.GetMemDbFromSdkId", id, errs.CodeInvalidRequest, "malformed sdk id")
	}
	return s.GetMemDb(info)
}

// FuzzyMatchSdkId resolves a loosely specified SDK id against the local
// set, ordered best-match first.
func (s *Stash) FuzzyMatchSdkId(id string) ([]sdk.Info, error) {
	q, err := sdk.ParseQuery(id)
	if err != nil {
		return nil, err
	}

	local := s.ListSdks()
	var candidates []sdk.Info
	for _, info := range local {
		if q.Candidate(info) {
			candidates = append(candidates, info)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].String() < candidates[j].String() })
	return q.Rank(candidates), nil
}
