package memdb

import (
	"bytes"
	"sort"
	"strings"

	"github.com/coresymbols/symd/internal/constants"
	"github.com/coresymbols/symd/internal/errs"
	"github.com/coresymbols/symd/internal/mmapfile"
	"github.com/coresymbols/symd/sdk"
	"github.com/google/uuid"
)

// Symbol is one resolved lookup result.
type Symbol struct {
	ObjectName string
	Name       string
	Addr       uint64
}

// Reader is a read-only view over one MemDB file's bytes, backed either
// by an owned []byte or a reference-counted memory mapping.
type Reader struct {
	data   []byte
	mapped *mmapfile.File // non-nil only when opened via OpenMapped
	header MemDbHeader
}

// Open parses a MemDB already fully resident in memory (a plain buffer,
// or bytes read off disk). The Reader does not take ownership beyond
// holding the slice.
func Open(data []byte) (*Reader, error) {
	r := &Reader{data: data}
	if err := r.parseHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

// OpenMapped wraps a memory-mapped file, retaining a reference for as
// long as the Reader is open. Close releases it.
func OpenMapped(f *mmapfile.File) (*Reader, error) {
	f.Retain()
	r := &Reader{data: f.Bytes(), mapped: f}
	if err := r.parseHeader(); err != nil {
		f.Release()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying mapping, if any. Safe to call on a
// Reader opened via Open (a no-op).
func (r *Reader) Close() error {
	if r.mapped == nil {
		return nil
	}
	return r.mapped.Release()
}

func (r *Reader) parseHeader() error {
	if len(r.data) < constants.HeaderSize {
		return errs.New("memdb.Open", errs.CodeBadMemDb, "file shorter than header")
	}
	r.header = getHeader(r.data)
	if r.header.Version != constants.MemDBVersion {
		return errs.New("memdb.Open", errs.CodeUnsupportedMemDbVersion, "unsupported memdb version")
	}
	h := r.header
	tables := [][2]uint64{
		{uint64(h.VariantsStart), uint64(h.VariantsCount) * constants.StoredSliceSize},
		{uint64(h.UuidsStart), uint64(h.UuidsCount) * constants.IndexedUUIDSize},
		{uint64(h.TaggedObjectNamesStart), uint64(h.TaggedObjectNamesEnd) - uint64(h.TaggedObjectNamesStart)},
		{uint64(h.ObjectNamesStart), uint64(h.ObjectNamesCount) * constants.StoredSliceSize},
		{uint64(h.SymbolsStart), uint64(h.SymbolsCount) * constants.StoredSliceSize},
	}
	for _, t := range tables {
		if t[0]+t[1] > uint64(len(r.data)) {
			return errs.New("memdb.Open", errs.CodeBadMemDb, "header table out of bounds")
		}
	}
	return nil
}

// Info returns the SDK this MemDB was built for.
func (r *Reader) Info() sdk.Info {
	return unpackSdkInfo(r.header.SdkInfo)
}

// slice returns the validated byte range [offset, offset+length), using
// a wrapping-safe bounds check: every region the header points at is
// checked against the buffer length before it is ever read.
func (r *Reader) slice(offset, length uint32) ([]byte, error) {
	end := offset + length
	if end < offset || uint64(end) > uint64(len(r.data)) {
		return nil, errs.New("memdb.slice", errs.CodeBadMemDb, "region out of bounds")
	}
	return r.data[offset:end], nil
}

func (r *Reader) storedSlice(tableStart uint32, count uint32, i uint32) (StoredSlice, error) {
	if i >= count {
		return StoredSlice{}, errs.New("memdb.storedSlice", errs.CodeBadMemDb, "index out of range")
	}
	entryOffset := tableStart + i*constants.StoredSliceSize
	buf, err := r.slice(entryOffset, constants.StoredSliceSize)
	if err != nil {
		return StoredSlice{}, err
	}
	s := getStoredSlice(buf)
	if s.IsCompressed() {
		return StoredSlice{}, errs.New("memdb.storedSlice", errs.CodeBadMemDb, "compressed string slices are not supported")
	}
	return s, nil
}

func (r *Reader) indexedUUID(i uint32) (IndexedUuid, error) {
	if i >= r.header.UuidsCount {
		return IndexedUuid{}, errs.New("memdb.indexedUUID", errs.CodeBadMemDb, "index out of range")
	}
	entryOffset := r.header.UuidsStart + i*constants.IndexedUUIDSize
	buf, err := r.slice(entryOffset, constants.IndexedUUIDSize)
	if err != nil {
		return IndexedUuid{}, err
	}
	return getIndexedUuid(buf), nil
}

func (r *Reader) objectName(id uint16) (string, error) {
	s, err := r.storedSlice(r.header.ObjectNamesStart, r.header.ObjectNamesCount, uint32(id))
	if err != nil {
		return "", err
	}
	buf, err := r.slice(s.Offset, s.ByteLen())
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

func (r *Reader) symbolName(id uint32) (string, error) {
	s, err := r.storedSlice(r.header.SymbolsStart, r.header.SymbolsCount, id)
	if err != nil {
		return "", err
	}
	buf, err := r.slice(s.Offset, s.ByteLen())
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// findUUIDIndex binary-searches the sorted UUID table, returning the
// index of the matching entry.
func (r *Reader) findUUIDIndex(target [16]byte) (uint32, bool, error) {
	lo, hi := uint32(0), r.header.UuidsCount
	for lo < hi {
		mid := lo + (hi-lo)/2
		entry, err := r.indexedUUID(mid)
		if err != nil {
			return 0, false, err
		}
		switch bytes.Compare(entry.UUID[:], target[:]) {
		case 0:
			return mid, true, nil
		case -1:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false, nil
}

// variantItems returns the address-sorted IndexItem run for the
// variant at position idx in the (insertion-order) variants table.
func (r *Reader) variantItems(idx uint32) ([]IndexItem, error) {
	s, err := r.storedSlice(r.header.VariantsStart, r.header.VariantsCount, idx)
	if err != nil {
		return nil, err
	}
	buf, err := r.slice(s.Offset, s.ByteLen())
	if err != nil {
		return nil, err
	}
	n := len(buf) / constants.IndexItemSize
	items := make([]IndexItem, n)
	for i := 0; i < n; i++ {
		items[i] = getIndexItem(buf[i*constants.IndexItemSize:])
	}
	return items, nil
}

// LookupByUUID resolves a relative instruction address within the
// variant identified by uuid. ok is false if the UUID is unknown, addr
// falls before the first recorded symbol, or addr lands at or past the
// variant's terminal sentinel (i.e. addr >= vmsize).
func (r *Reader) LookupByUUID(target [16]byte, addr uint64) (Symbol, bool, error) {
	uidx, ok, err := r.findUUIDIndex(target)
	if err != nil || !ok {
		return Symbol{}, false, err
	}
	entry, err := r.indexedUUID(uidx)
	if err != nil {
		return Symbol{}, false, err
	}
	if uint32(entry.Idx) >= r.header.VariantsCount {
		return Symbol{}, false, errs.New("memdb.LookupByUUID", errs.CodeBadMemDb, "uuid entry points outside variants table")
	}
	items, err := r.variantItems(uint32(entry.Idx))
	if err != nil {
		return Symbol{}, false, err
	}
	return r.lookupInItems(items, addr)
}

func (r *Reader) lookupInItems(items []IndexItem, addr uint64) (Symbol, bool, error) {
	// greatest item whose Addr() <= addr.
	i := sort.Search(len(items), func(i int) bool { return items[i].Addr() > addr }) - 1
	if i < 0 {
		return Symbol{}, false, nil
	}
	item := items[i]
	if item.IsSentinel() {
		return Symbol{}, false, nil
	}
	name, err := r.symbolName(item.SymID)
	if err != nil {
		return Symbol{}, false, err
	}
	objName, err := r.objectName(item.SrcID)
	if err != nil {
		return Symbol{}, false, err
	}
	return Symbol{ObjectName: objName, Name: name, Addr: item.Addr()}, true, nil
}

// taggedRecord returns the i-th NUL-terminated string in the
// tagged-object-names region, which is parallel to the sorted UUID
// table: record i corresponds to indexedUUID(i).
func (r *Reader) taggedRecord(i uint32) (string, error) {
	region, err := r.slice(r.header.TaggedObjectNamesStart, r.header.TaggedObjectNamesEnd-r.header.TaggedObjectNamesStart)
	if err != nil {
		return "", err
	}
	var idx uint32
	start := 0
	for pos := 0; pos < len(region); pos++ {
		if region[pos] != 0 {
			continue
		}
		if idx == i {
			return string(region[start:pos]), nil
		}
		idx++
		start = pos + 1
	}
	return "", errs.New("memdb.taggedRecord", errs.CodeBadMemDb, "tagged-object-names region has fewer records than the uuid table")
}

// LookupByObjectName resolves (name, arch) to a UUID via a linear scan
// of the tagged-object-names region, then delegates to LookupByUUID.
func (r *Reader) LookupByObjectName(name, arch string, addr uint64) (Symbol, bool, error) {
	want := name + ":" + arch
	for i := uint32(0); i < r.header.UuidsCount; i++ {
		tag, err := r.taggedRecord(i)
		if err != nil {
			return Symbol{}, false, err
		}
		if tag != want {
			continue
		}
		entry, err := r.indexedUUID(i)
		if err != nil {
			return Symbol{}, false, err
		}
		return r.LookupByUUID(entry.UUID, addr)
	}
	return Symbol{}, false, nil
}

// IterSymbols returns every symbol recorded for the variant identified
// by uuid, in on-disk (address-sorted) order, for diagnostic dumping.
func (r *Reader) IterSymbols(target [16]byte) ([]Symbol, error) {
	uidx, ok, err := r.findUUIDIndex(target)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	entry, err := r.indexedUUID(uidx)
	if err != nil {
		return nil, err
	}
	items, err := r.variantItems(uint32(entry.Idx))
	if err != nil {
		return nil, err
	}
	syms := make([]Symbol, 0, len(items))
	for _, item := range items {
		if item.IsSentinel() {
			continue
		}
		name, err := r.symbolName(item.SymID)
		if err != nil {
			return nil, err
		}
		objName, err := r.objectName(item.SrcID)
		if err != nil {
			return nil, err
		}
		syms = append(syms, Symbol{ObjectName: objName, Name: name, Addr: item.Addr()})
	}
	return syms, nil
}

// TaggedEntry is one (uuid, install name, arch) alias record, parallel
// to the sorted UUID table.
type TaggedEntry struct {
	UUID        [16]byte
	InstallName string
	Arch        string
}

// TaggedEntries returns every tagged-object alias record, for diagnostic
// enumeration: a dump tool can list every (uuid, object, arch) this
// MemDB knows about without guessing UUIDs up front.
func (r *Reader) TaggedEntries() ([]TaggedEntry, error) {
	out := make([]TaggedEntry, 0, r.header.UuidsCount)
	for i := uint32(0); i < r.header.UuidsCount; i++ {
		tag, err := r.taggedRecord(i)
		if err != nil {
			return nil, err
		}
		entry, err := r.indexedUUID(i)
		if err != nil {
			return nil, err
		}
		name, arch := tag, ""
		if idx := strings.LastIndexByte(tag, ':'); idx >= 0 {
			name, arch = tag[:idx], tag[idx+1:]
		}
		out = append(out, TaggedEntry{UUID: entry.UUID, InstallName: name, Arch: arch})
	}
	return out, nil
}

// FindUUIDFuzzy resolves a crash-report-style identifier to a UUID: if
// it parses as a UUID, it's returned as-is (subject to being present);
// otherwise the tagged-object-names region is scanned for a suffix or
// basename match.
func (r *Reader) FindUUIDFuzzy(nameOrUUID string) ([16]byte, bool, error) {
	if u, err := uuid.Parse(nameOrUUID); err == nil {
		var target [16]byte
		copy(target[:], u[:])
		_, ok, err := r.findUUIDIndex(target)
		if err != nil || !ok {
			return [16]byte{}, false, err
		}
		return target, true, nil
	}

	base := nameOrUUID
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	for i := uint32(0); i < r.header.UuidsCount; i++ {
		tag, err := r.taggedRecord(i)
		if err != nil {
			return [16]byte{}, false, err
		}
		if strings.HasSuffix(tag, nameOrUUID) || strings.HasPrefix(tag, base+":") {
			entry, err := r.indexedUUID(i)
			if err != nil {
				return [16]byte{}, false, err
			}
			return entry.UUID, true, nil
		}
	}
	return [16]byte{}, false, nil
}
