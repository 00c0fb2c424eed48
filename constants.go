package symd

import "github.com/coresymbols/symd/internal/constants"

// Re-exported so callers outside symd never need to import
// internal/constants directly.
const (
	MemDBVersion               = constants.MemDBVersion
	DefaultSyncInterval        = constants.DefaultSyncInterval
	DefaultHealthcheckInterval = constants.DefaultHealthcheckInterval
	DefaultHealthcheckTTL      = constants.DefaultHealthcheckTTL
	UnhealthyMissingRatio      = constants.UnhealthyMissingRatio
	MaxLookupBodyBytes         = constants.MaxLookupBodyBytes
)
