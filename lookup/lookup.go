// Package lookup implements the batched symbol-resolution collaborator
// given a loosely specified SDK id and a batch of
// address queries, it tries each fuzzy-matched candidate SDK in order
// and returns the first resolved symbol for each query.
package lookup

import (
	"github.com/coresymbols/symd/internal/errs"
	"github.com/coresymbols/symd/memdb"
	"github.com/coresymbols/symd/sdk"
)

// Query is one address to resolve, optionally scoped to a specific
// object by UUID or install path.
type Query struct {
	Addr       uint64
	ObjectUUID *[16]byte
	ObjectPath string
}

// Request is one batched lookup call.
type Request struct {
	SdkID   string
	CPUName string
	Symbols []Query
}

// Result is one resolved (or unresolved) symbol.
type Result struct {
	ObjectName string
	Symbol     string
	Addr       uint64
	Found      bool
}

// Stash is the subset of *stash.Stash the lookup collaborator depends
// on, kept as an interface both to avoid an import cycle risk and to
// make this package testable without a real on-disk stash.
type Stash interface {
	FuzzyMatchSdkId(id string) ([]sdk.Info, error)
	GetMemDb(info sdk.Info) (*memdb.Reader, func(), error)
}

// Resolve runs req against store: fuzzy-matches req.SdkID to a
// best-first ordered list of candidate SdkInfo, then for each query
// symbol tries each candidate in order until one yields a match.
//
// A per-call cache of opened MemDB readers means a batch touching the
// same candidate SDK repeatedly only calls GetMemDb once per SDK.
func Resolve(store Stash, req Request) ([]Result, error) {
	candidates, err := store.FuzzyMatchSdkId(req.SdkID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errs.NewSdk("lookup.Resolve", req.SdkID, errs.CodeUnknownSdk, "no locally known sdk matches id")
	}

	cache := newReaderCache(store)
	defer cache.releaseAll()

	results := make([]Result, len(req.Symbols))
	for i, q := range req.Symbols {
		results[i] = resolveOne(cache, candidates, req.CPUName, q)
	}
	return results, nil
}

func resolveOne(cache *readerCache, candidates []sdk.Info, cpuName string, q Query) Result {
	for _, info := range candidates {
		reader, err := cache.get(info)
		if err != nil {
			continue // this candidate's MemDB is unavailable; try the next
		}

		var (
			sym   memdb.Symbol
			found bool
		)
		switch {
		case q.ObjectUUID != nil:
			sym, found, err = reader.LookupByUUID(*q.ObjectUUID, q.Addr)
		case q.ObjectPath != "":
			sym, found, err = reader.LookupByObjectName(q.ObjectPath, cpuName, q.Addr)
		default:
			continue // nothing to key this query's object on
		}
		if err != nil || !found {
			continue
		}
		return Result{ObjectName: sym.ObjectName, Symbol: sym.Name, Addr: sym.Addr, Found: true}
	}
	return Result{}
}

// readerCache opens each candidate SDK's MemDB at most once per batch,
// releasing every handle it acquired when the batch completes.
type readerCache struct {
	store    Stash
	readers  map[sdk.Info]*memdb.Reader
	releases []func()
}

func newReaderCache(store Stash) *readerCache {
	return &readerCache{store: store, readers: make(map[sdk.Info]*memdb.Reader)}
}

func (c *readerCache) get(info sdk.Info) (*memdb.Reader, error) {
	if r, ok := c.readers[info]; ok {
		return r, nil
	}
	reader, release, err := c.store.GetMemDb(info)
	if err != nil {
		return nil, err
	}
	c.readers[info] = reader
	c.releases = append(c.releases, release)
	return reader, nil
}

func (c *readerCache) releaseAll() {
	for _, release := range c.releases {
		release()
	}
}
