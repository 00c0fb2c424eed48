package memdb

import (
	"bytes"
	"io"
	"os"
	"sort"

	"github.com/coresymbols/symd/internal/constants"
	"github.com/coresymbols/symd/internal/errs"
	"github.com/coresymbols/symd/sdk"
	"github.com/ulikunitz/xz"
)

// SourceVariant is one architecture slice of an object, as seen by the
// writer. It carries just what the writer needs to index a variant;
// the Mach-O specifics (cpu subtype decoding, load-command parsing)
// live entirely in the collaborator that builds these.
type SourceVariant struct {
	Arch        string
	UUID        *[16]byte
	InstallName string
	VMAddr      uint64
	VMSize      uint64
}

// SourceSymbol is one (address, name) pair from a variant's defined
// __TEXT,__text symbols, address still absolute (not yet made relative
// to VMAddr — AddObject does that).
type SourceSymbol struct {
	Addr uint64
	Name string
}

// SourceObject is the writer's only dependency on an object reader: it
// never imports a Mach-O package directly.
type SourceObject interface {
	Variants() []SourceVariant
	Symbols(v SourceVariant) ([]SourceSymbol, error)
}

type variantBuild struct {
	uuid  [16]byte
	items []IndexItem
}

type taggedEntry struct {
	tag  string
	uuid [16]byte
}

// Writer accumulates one SDK's symbols across many objects and flushes
// them as a single MemDB file.
type Writer struct {
	info sdk.Info

	symbolIDs  map[string]uint32
	symbols    []string
	objNameIDs map[string]uint16
	objNames   []string

	uuidsSeen map[[16]byte]struct{}
	variants  []variantBuild
	tagged    []taggedEntry
}

// NewWriter starts a new MemDB build for info.
func NewWriter(info sdk.Info) *Writer {
	return &Writer{
		info:       info,
		symbolIDs:  make(map[string]uint32),
		objNameIDs: make(map[string]uint16),
		uuidsSeen:  make(map[[16]byte]struct{}),
	}
}

func (w *Writer) internSymbol(name string) uint32 {
	if id, ok := w.symbolIDs[name]; ok {
		return id
	}
	id := uint32(len(w.symbols))
	w.symbols = append(w.symbols, name)
	w.symbolIDs[name] = id
	return id
}

func (w *Writer) internObjectName(name string) (uint16, error) {
	if id, ok := w.objNameIDs[name]; ok {
		return id, nil
	}
	if len(w.objNames) >= 1<<16 {
		return 0, errs.NewSdk("memdb.AddObject", w.info.String(), errs.CodeBadMemDb, "too many distinct object names for a u16 src_id")
	}
	id := uint16(len(w.objNames))
	w.objNames = append(w.objNames, name)
	w.objNameIDs[name] = id
	return id, nil
}

// AddObject processes one object's variants: interning symbol and
// object-name strings, recording a tagged-object alias per unique
// variant UUID, and building each unique variant's address-sorted
// IndexItem run. Variants with no UUID can't be indexed and are
// skipped. A variant whose UUID was already seen (the same slice
// reachable via more than one path in the input tree) is skipped
// entirely: it adds no second tag, so only the first "<src>:<arch>"
// recorded for a UUID can be found by object name.
func (w *Writer) AddObject(objectPath string, obj SourceObject) error {
	for _, v := range obj.Variants() {
		if v.UUID == nil {
			continue
		}
		src := v.InstallName
		if src == "" {
			src = objectPath
		}
		tag := src + ":" + v.Arch

		_, seen := w.uuidsSeen[*v.UUID]
		if !seen {
			w.tagged = append(w.tagged, taggedEntry{tag: tag, uuid: *v.UUID})
			w.uuidsSeen[*v.UUID] = struct{}{}
		}
		if seen {
			continue
		}

		if v.VMAddr+v.VMSize >= 1<<constants.MaxRelativeAddrBits {
			return errs.NewSdk("memdb.AddObject", w.info.String(), errs.CodeBadMemDb, "variant address range exceeds 48 bits")
		}

		syms, err := obj.Symbols(v)
		if err != nil {
			return errs.WrapSdk("memdb.AddObject", w.info.String(), errs.CodeInternal, err)
		}

		items := make([]IndexItem, 0, len(syms)+1)
		for _, s := range syms {
			if s.Addr < v.VMAddr {
				continue // outside the text segment; not representable as a relative offset
			}
			symID := w.internSymbol(s.Name)
			srcID, err := w.internObjectName(src)
			if err != nil {
				return err
			}
			items = append(items, newIndexItem(s.Addr-v.VMAddr, srcID, symID))
		}
		if v.VMSize > 0 {
			srcID, err := w.internObjectName(src)
			if err != nil {
				return err
			}
			items = append(items, newIndexItem(v.VMSize, srcID, constants.SentinelSymID))
		}
		sort.Slice(items, func(i, j int) bool { return items[i].Addr() < items[j].Addr() })

		w.variants = append(w.variants, variantBuild{uuid: *v.UUID, items: items})
	}
	return nil
}

// Flush writes the accumulated build to sink as an uncompressed MemDB.
func (w *Writer) Flush(sink io.WriteSeeker) error {
	header := MemDbHeader{Version: constants.MemDBVersion}
	packed, err := packSdkInfo(w.info)
	if err != nil {
		return err
	}
	header.SdkInfo = packed

	if _, err := sink.Write(make([]byte, constants.HeaderSize)); err != nil {
		return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
	}

	// 2. variant IndexItem runs + StoredSlice table.
	variantSlices := make([]StoredSlice, len(w.variants))
	offset := uint32(constants.HeaderSize)
	for i, v := range w.variants {
		buf := make([]byte, len(v.items)*constants.IndexItemSize)
		for j, item := range v.items {
			putIndexItem(buf[j*constants.IndexItemSize:], item)
		}
		if _, err := sink.Write(buf); err != nil {
			return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
		}
		variantSlices[i] = StoredSlice{Offset: offset, Len: uint32(len(buf))}
		offset += uint32(len(buf))
	}
	header.VariantsStart = offset
	header.VariantsCount = uint32(len(variantSlices))
	for _, s := range variantSlices {
		buf := make([]byte, constants.StoredSliceSize)
		putStoredSlice(buf, s)
		if _, err := sink.Write(buf); err != nil {
			return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
		}
		offset += constants.StoredSliceSize
	}

	// 3. sorted UUID table, carrying the pre-sort variant index.
	type indexedPair struct {
		uuid [16]byte
		idx  uint16
	}
	pairs := make([]indexedPair, len(w.variants))
	for i, v := range w.variants {
		pairs[i] = indexedPair{uuid: v.uuid, idx: uint16(i)}
	}
	sort.Slice(pairs, func(i, j int) bool { return bytes.Compare(pairs[i].uuid[:], pairs[j].uuid[:]) < 0 })

	header.UuidsStart = offset
	header.UuidsCount = uint32(len(pairs))
	for _, p := range pairs {
		buf := make([]byte, constants.IndexedUUIDSize)
		putIndexedUuid(buf, IndexedUuid{UUID: p.uuid, Idx: p.idx})
		if _, err := sink.Write(buf); err != nil {
			return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
		}
		offset += constants.IndexedUUIDSize
	}

	// 4. tagged-object-names region, reordered to the same UUID sort so
	// the two tables stay parallel (one tag per unique indexed UUID).
	tagByUUID := make(map[[16]byte]string, len(w.tagged))
	for _, t := range w.tagged {
		if _, ok := tagByUUID[t.uuid]; !ok {
			tagByUUID[t.uuid] = t.tag
		}
	}
	header.TaggedObjectNamesStart = offset
	for _, p := range pairs {
		record := append([]byte(tagByUUID[p.uuid]), 0)
		if _, err := sink.Write(record); err != nil {
			return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
		}
		offset += uint32(len(record))
	}
	header.TaggedObjectNamesEnd = offset

	// 5. object names: raw bytes, then a StoredSlice table.
	nameSlices := make([]StoredSlice, len(w.objNames))
	for i, name := range w.objNames {
		nameSlices[i] = StoredSlice{Offset: offset, Len: uint32(len(name))}
		if _, err := sink.Write([]byte(name)); err != nil {
			return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
		}
		offset += uint32(len(name))
	}
	header.ObjectNamesStart = offset
	header.ObjectNamesCount = uint32(len(nameSlices))
	for _, s := range nameSlices {
		buf := make([]byte, constants.StoredSliceSize)
		putStoredSlice(buf, s)
		if _, err := sink.Write(buf); err != nil {
			return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
		}
		offset += constants.StoredSliceSize
	}

	// 6. symbols: raw bytes, then a StoredSlice table.
	symSlices := make([]StoredSlice, len(w.symbols))
	for i, name := range w.symbols {
		symSlices[i] = StoredSlice{Offset: offset, Len: uint32(len(name))}
		if _, err := sink.Write([]byte(name)); err != nil {
			return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
		}
		offset += uint32(len(name))
	}
	header.SymbolsStart = offset
	header.SymbolsCount = uint32(len(symSlices))
	for _, s := range symSlices {
		buf := make([]byte, constants.StoredSliceSize)
		putStoredSlice(buf, s)
		if _, err := sink.Write(buf); err != nil {
			return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
		}
	}

	// 7. seek to 0, write the finalized header.
	if _, err := sink.Seek(0, io.SeekStart); err != nil {
		return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
	}
	headerBuf := make([]byte, constants.HeaderSize)
	putHeader(headerBuf, &header)
	if _, err := sink.Write(headerBuf); err != nil {
		return errs.Wrap("memdb.Flush", errs.CodeInternal, err)
	}
	return nil
}

// FlushCompressed writes the build to a temporary seekable scratch
// file, then streams it through an XZ encoder into sink. The scratch
// file is always removed before returning, whether or not the flush
// succeeded, so a failed publish never leaves compression garbage
// behind.
func (w *Writer) FlushCompressed(sink io.Writer) error {
	scratch, err := os.CreateTemp("", "symd-memdb-*.scratch")
	if err != nil {
		return errs.Wrap("memdb.FlushCompressed", errs.CodeInternal, err)
	}
	defer os.Remove(scratch.Name())
	defer scratch.Close()

	if err := w.Flush(scratch); err != nil {
		return err
	}
	if _, err := scratch.Seek(0, io.SeekStart); err != nil {
		return errs.Wrap("memdb.FlushCompressed", errs.CodeInternal, err)
	}

	xw, err := xz.NewWriter(sink)
	if err != nil {
		return errs.Wrap("memdb.FlushCompressed", errs.CodeInternal, err)
	}
	if _, err := io.Copy(xw, scratch); err != nil {
		return errs.Wrap("memdb.FlushCompressed", errs.CodeInternal, err)
	}
	return xw.Close()
}

func packSdkInfo(info sdk.Info) (PackedSdkInfo, error) {
	var p PackedSdkInfo
	if len(info.Name) > constants.SdkInfoNameLen {
		return p, errs.NewSdk("memdb.packSdkInfo", info.String(), errs.CodeBadConfig, "sdk name exceeds 8 bytes")
	}
	if len(info.Build) > constants.SdkInfoBuildLen {
		return p, errs.NewSdk("memdb.packSdkInfo", info.String(), errs.CodeBadConfig, "sdk build exceeds 10 bytes")
	}
	if info.Major > 0xffff || info.Minor > 0xffff || info.Patch > 0xffff {
		return p, errs.NewSdk("memdb.packSdkInfo", info.String(), errs.CodeBadConfig, "sdk version component exceeds 16 bits")
	}
	copy(p.Name[:], info.Name)
	p.Major = uint16(info.Major)
	p.Minor = uint16(info.Minor)
	p.Patch = uint16(info.Patch)
	copy(p.Build[:], info.Build)
	return p, nil
}

func unpackSdkInfo(p PackedSdkInfo) sdk.Info {
	return sdk.Info{
		Name:  cString(p.Name[:]),
		Major: uint32(p.Major),
		Minor: uint32(p.Minor),
		Patch: uint32(p.Patch),
		Build: cString(p.Build[:]),
	}
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
