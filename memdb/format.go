// Package memdb implements the MemDB file format: a memory-mapped,
// read-only, self-contained binary encoding of one SDK's symbols, its
// writer, and its O(log n) address-to-symbol reader.
//
// On-disk layout, all integers little-endian, all
// structs packed with no padding between fields (each IndexItem record
// is followed by 2 zero bytes, see constants.IndexItemSize):
//
//	header (fixed offset 0)
//	variants index table: variants_count StoredSlices, each pointing at
//	    a run of IndexItems for one variant
//	UUID table: uuids_count IndexedUuid records, sorted ascending by UUID
//	tagged-object-names region: NUL-terminated "<src>:<arch>" records,
//	    parallel to the sorted UUID table
//	object-names StoredSlice table + raw bytes
//	symbols StoredSlice table + raw bytes
package memdb

import (
	"encoding/binary"

	"github.com/coresymbols/symd/internal/constants"
)

// MemDbHeader is the fixed 68-byte record at offset 0 of every MemDB file.
// All offsets are absolute byte offsets into the file; all counts are
// element counts.
type MemDbHeader struct {
	Version                uint32
	SdkInfo                PackedSdkInfo
	VariantsStart          uint32
	VariantsCount          uint32
	UuidsStart             uint32
	UuidsCount             uint32
	TaggedObjectNamesStart uint32
	TaggedObjectNamesEnd   uint32
	ObjectNamesStart       uint32
	ObjectNamesCount       uint32
	SymbolsStart           uint32
	SymbolsCount           uint32
}

// PackedSdkInfo is the on-disk encoding of sdk.Info: name is 8 ASCII
// bytes NUL-padded, build is 10 ASCII bytes NUL-padded (all-zero = no
// build), major/minor/patch are u16.
type PackedSdkInfo struct {
	Name  [constants.SdkInfoNameLen]byte
	Major uint16
	Minor uint16
	Patch uint16
	Build [constants.SdkInfoBuildLen]byte
}

// StoredSlice points at a run of bytes elsewhere in the file. The high
// bit of Len is reserved for a string-compression flag; this
// implementation never sets it on write and rejects it on read
// (no silent compression scheme).
type StoredSlice struct {
	Offset uint32
	Len    uint32
}

const storedSliceCompressedBit = 1 << 31

// ByteLen returns the slice's byte length with the reserved bit masked off.
func (s StoredSlice) ByteLen() uint32 {
	return s.Len &^ storedSliceCompressedBit
}

// IsCompressed reports whether the reserved high bit of Len is set.
func (s StoredSlice) IsCompressed() bool {
	return s.Len&storedSliceCompressedBit != 0
}

// IndexedUuid is one entry of the sorted UUID table: a 16-byte UUID plus
// an index into the variants table in original insertion order.
type IndexedUuid struct {
	UUID [16]byte
	Idx  uint16
}

// IndexItem is one packed symbol-table entry (14 bytes on disk: 12
// bytes of fields plus 2 zero padding bytes): a 48-bit address split
// across AddrLow/AddrHigh, a 16-bit index into object_names, and a
// 32-bit index into symbols.
type IndexItem struct {
	AddrLow  uint32
	AddrHigh uint16
	SrcID    uint16
	SymID    uint32
}

// Addr reconstructs the full 48-bit stored address.
func (ii IndexItem) Addr() uint64 {
	return uint64(ii.AddrHigh)<<32 | uint64(ii.AddrLow)
}

// IsSentinel reports whether this IndexItem is the terminal marker
// appended by the writer at a variant's vmsize.
func (ii IndexItem) IsSentinel() bool {
	return ii.SymID == constants.SentinelSymID
}

func newIndexItem(addr uint64, srcID uint16, symID uint32) IndexItem {
	return IndexItem{
		AddrLow:  uint32(addr & 0xffffffff),
		AddrHigh: uint16((addr >> 32) & 0xffff),
		SrcID:    srcID,
		SymID:    symID,
	}
}

// --- packed binary encode/decode -------------------------------------
//
// encoding/binary's struct-reflection Write/Read cannot express the
// 48-bit split address field of IndexItem, so every record type gets an
// explicit little-endian marshal/unmarshal pair, the same way the
// upstream pack hand-marshals fixed kernel ABI structs byte range by
// byte range rather than relying on reflection.

func putHeader(buf []byte, h *MemDbHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Version)
	putPackedSdkInfo(buf[4:4+packedSdkInfoBytes], &h.SdkInfo)
	o := 4 + packedSdkInfoBytes
	binary.LittleEndian.PutUint32(buf[o+0:o+4], h.VariantsStart)
	binary.LittleEndian.PutUint32(buf[o+4:o+8], h.VariantsCount)
	binary.LittleEndian.PutUint32(buf[o+8:o+12], h.UuidsStart)
	binary.LittleEndian.PutUint32(buf[o+12:o+16], h.UuidsCount)
	binary.LittleEndian.PutUint32(buf[o+16:o+20], h.TaggedObjectNamesStart)
	binary.LittleEndian.PutUint32(buf[o+20:o+24], h.TaggedObjectNamesEnd)
	binary.LittleEndian.PutUint32(buf[o+24:o+28], h.ObjectNamesStart)
	binary.LittleEndian.PutUint32(buf[o+28:o+32], h.ObjectNamesCount)
	binary.LittleEndian.PutUint32(buf[o+32:o+36], h.SymbolsStart)
	binary.LittleEndian.PutUint32(buf[o+36:o+40], h.SymbolsCount)
}

func getHeader(buf []byte) MemDbHeader {
	var h MemDbHeader
	h.Version = binary.LittleEndian.Uint32(buf[0:4])
	h.SdkInfo = getPackedSdkInfo(buf[4 : 4+packedSdkInfoBytes])
	o := 4 + packedSdkInfoBytes
	h.VariantsStart = binary.LittleEndian.Uint32(buf[o+0 : o+4])
	h.VariantsCount = binary.LittleEndian.Uint32(buf[o+4 : o+8])
	h.UuidsStart = binary.LittleEndian.Uint32(buf[o+8 : o+12])
	h.UuidsCount = binary.LittleEndian.Uint32(buf[o+12 : o+16])
	h.TaggedObjectNamesStart = binary.LittleEndian.Uint32(buf[o+16 : o+20])
	h.TaggedObjectNamesEnd = binary.LittleEndian.Uint32(buf[o+20 : o+24])
	h.ObjectNamesStart = binary.LittleEndian.Uint32(buf[o+24 : o+28])
	h.ObjectNamesCount = binary.LittleEndian.Uint32(buf[o+28 : o+32])
	h.SymbolsStart = binary.LittleEndian.Uint32(buf[o+32 : o+36])
	h.SymbolsCount = binary.LittleEndian.Uint32(buf[o+36 : o+40])
	return h
}

const packedSdkInfoBytes = constants.SdkInfoNameLen + 2 + 2 + 2 + constants.SdkInfoBuildLen

func putPackedSdkInfo(buf []byte, p *PackedSdkInfo) {
	copy(buf[0:constants.SdkInfoNameLen], p.Name[:])
	o := constants.SdkInfoNameLen
	binary.LittleEndian.PutUint16(buf[o:o+2], p.Major)
	binary.LittleEndian.PutUint16(buf[o+2:o+4], p.Minor)
	binary.LittleEndian.PutUint16(buf[o+4:o+6], p.Patch)
	copy(buf[o+6:o+6+constants.SdkInfoBuildLen], p.Build[:])
}

func getPackedSdkInfo(buf []byte) PackedSdkInfo {
	var p PackedSdkInfo
	copy(p.Name[:], buf[0:constants.SdkInfoNameLen])
	o := constants.SdkInfoNameLen
	p.Major = binary.LittleEndian.Uint16(buf[o : o+2])
	p.Minor = binary.LittleEndian.Uint16(buf[o+2 : o+4])
	p.Patch = binary.LittleEndian.Uint16(buf[o+4 : o+6])
	copy(p.Build[:], buf[o+6:o+6+constants.SdkInfoBuildLen])
	return p
}

func putStoredSlice(buf []byte, s StoredSlice) {
	binary.LittleEndian.PutUint32(buf[0:4], s.Offset)
	binary.LittleEndian.PutUint32(buf[4:8], s.Len)
}

func getStoredSlice(buf []byte) StoredSlice {
	return StoredSlice{
		Offset: binary.LittleEndian.Uint32(buf[0:4]),
		Len:    binary.LittleEndian.Uint32(buf[4:8]),
	}
}

func putIndexedUuid(buf []byte, u IndexedUuid) {
	copy(buf[0:16], u.UUID[:])
	binary.LittleEndian.PutUint16(buf[16:18], u.Idx)
}

func getIndexedUuid(buf []byte) IndexedUuid {
	var u IndexedUuid
	copy(u.UUID[:], buf[0:16])
	u.Idx = binary.LittleEndian.Uint16(buf[16:18])
	return u
}

func putIndexItem(buf []byte, ii IndexItem) {
	binary.LittleEndian.PutUint32(buf[0:4], ii.AddrLow)
	binary.LittleEndian.PutUint16(buf[4:6], ii.AddrHigh)
	binary.LittleEndian.PutUint16(buf[6:8], ii.SrcID)
	binary.LittleEndian.PutUint32(buf[8:12], ii.SymID)
}

func getIndexItem(buf []byte) IndexItem {
	return IndexItem{
		AddrLow:  binary.LittleEndian.Uint32(buf[0:4]),
		AddrHigh: binary.LittleEndian.Uint16(buf[4:6]),
		SrcID:    binary.LittleEndian.Uint16(buf[6:8]),
		SymID:    binary.LittleEndian.Uint32(buf[8:12]),
	}
}
