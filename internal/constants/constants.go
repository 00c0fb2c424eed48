// Package constants holds fixed values shared across the symd packages:
// the MemDB binary format's on-disk layout, and the defaults applied to a
// Config when a field is left unset.
package constants

import "time"

// MemDB format constants.
const (
	// MemDBVersion is the only header version this reader/writer accepts.
	// Forward compatibility is explicitly not promised.
	MemDBVersion = 2

	// SentinelSymID marks the terminal IndexItem appended to every
	// variant whose vmsize > 0; it never refers to a real symbols[] entry.
	SentinelSymID = 0xffffffff

	// IndexItemSize is the on-disk stride of one IndexItem record:
	// addr_low(4) + addr_high(2) + src_id(2) + sym_id(4) = 12 bytes of
	// fields, followed by 2 zero padding bytes.
	IndexItemSize = 14

	// IndexedUUIDSize is the packed on-disk size of one IndexedUuid record:
	// uuid(16) + idx(2).
	IndexedUUIDSize = 18

	// StoredSliceSize is the packed on-disk size of one StoredSlice record.
	StoredSliceSize = 8

	// SdkInfoNameLen is the fixed width of the NUL-padded SDK name field.
	SdkInfoNameLen = 8

	// SdkInfoBuildLen is the fixed width of the NUL-padded SDK build field.
	SdkInfoBuildLen = 10

	// packedSdkInfoSize: name(8) + major(2) + minor(2) + patch(2) + build(10).
	packedSdkInfoSize = SdkInfoNameLen + 2 + 2 + 2 + SdkInfoBuildLen

	// HeaderSize is the packed on-disk size of MemDbHeader: version(4) +
	// sdk_info + 10 start/count uint32 fields.
	HeaderSize = 4 + packedSdkInfoSize + 4*10

	// MaxRelativeAddrBits bounds vmaddr_offset+vmsize: addresses are stored
	// in 48 bits (addr_low uint32 + addr_high uint16).
	MaxRelativeAddrBits = 48
)

// Stash/sync defaults.
const (
	DefaultSyncInterval        = 60 * time.Second
	DefaultHealthcheckInterval = 30 * time.Second
	DefaultHealthcheckTTL      = 2 * time.Minute

	// UnhealthyMissingRatio is the (missing+different)/remote_total
	// threshold at or above which the stash reports unhealthy.
	UnhealthyMissingRatio = 0.10

	// MaxLookupBodyBytes caps a /lookup request body.
	MaxLookupBodyBytes = 2 << 20

	// SyncStateFilename is the stash's persisted sync-state file.
	SyncStateFilename = "sync.state"

	// TempStateSuffix marks a sync-state file mid-write before rename.
	TempStateSuffix = ".tempstate"

	// CompressedSuffix is appended to a published MemDB's local filename
	// to form its remote (bucket) key.
	CompressedSuffix = "z"

	// MemDBSuffix is the on-disk extension for an uncompressed MemDB.
	MemDBSuffix = ".memdb"
)

// DefaultServerThreadsMultiplier is applied to runtime.NumCPU() when
// ServerThreads is left unset in configuration.
const DefaultServerThreadsMultiplier = 1.25
