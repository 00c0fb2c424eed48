// Package sdk implements SdkInfo: the immutable descriptor of an Apple
// platform SDK release, its canonical filename codec, its on-disk
// "DeviceSupport" folder codec, and the fuzzy-match query used to
// resolve a loosely specified SDK id against a set of locally known
// SdkInfo values.
package sdk

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/coresymbols/symd/internal/errs"
)

// Info is the immutable descriptor of one SDK release.
type Info struct {
	Name  string
	Major uint32
	Minor uint32
	Patch uint32
	Build string // "" means no build recorded
}

// deviceSupportPlatforms maps a DeviceSupport folder's platform prefix to
// its canonical SdkInfo.Name. Extensible: add an entry here for any new
// platform folder Apple ships.
var deviceSupportPlatforms = map[string]string{
	"iOS DeviceSupport":     "iOS",
	"tvOS DeviceSupport":    "tvOS",
	"watchOS DeviceSupport": "watchOS",
}

// String returns the canonical filename without its ".memdb" extension —
// the "sdk_id" used throughout the HTTP API and sync.state.
func (i Info) String() string {
	version := fmt.Sprintf("%d.%d.%d", i.Major, i.Minor, i.Patch)
	if i.Build == "" {
		return fmt.Sprintf("%s_%s", i.Name, version)
	}
	return fmt.Sprintf("%s_%s_%s", i.Name, version, i.Build)
}

// Filename returns the canonical on-disk filename, e.g.
// "iOS_10.2.3_14C93.memdb".
func (i Info) Filename() string {
	return i.String() + ".memdb"
}

var filenamePattern = regexp.MustCompile(
	`^([A-Za-z][A-Za-z0-9]*)_(\d+)\.(\d+)\.(\d+)(?:_([A-Za-z0-9]+))?\.memdb$`,
)

// ParseFilename parses a canonical MemDB filename, e.g.
// "iOS_10.2.3_14C93.memdb", into its Info. The canonical Filename() of
// the result always round-trips back to the input.
func ParseFilename(filename string) (Info, error) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return Info{}, errs.New("sdk.ParseFilename", errs.CodeBadConfig, "not a canonical MemDB filename: "+filename)
	}

	major, _ := strconv.ParseUint(m[2], 10, 32)
	minor, _ := strconv.ParseUint(m[3], 10, 32)
	patch, _ := strconv.ParseUint(m[4], 10, 32)

	return Info{
		Name:  m[1],
		Major: uint32(major),
		Minor: uint32(minor),
		Patch: uint32(patch),
		Build: m[5],
	}, nil
}

// deviceSupportPattern matches the trailing two path components of a
// DeviceSupport folder: "<Platform> DeviceSupport/<M>.<m>[.p] (<BUILD>)[.zip]".
var deviceSupportPattern = regexp.MustCompile(
	`(?i)(?:^|[/\\])([^/\\]+ DeviceSupport)[/\\](\d+)\.(\d+)(?:\.(\d+))? \(([A-Za-z0-9]+)\)(?:\.zip)?$`,
)

// ParseDeviceSupportPath parses a "*/<Platform> DeviceSupport/<version>
// (<BUILD>)[.zip]" path into an Info. Patch defaults to 0 when the
// folder name omits it (e.g. "10.2 (14C92)").
func ParseDeviceSupportPath(path string) (Info, error) {
	normalized := strings.TrimSuffix(strings.TrimSuffix(path, "/"), "\\")
	m := deviceSupportPattern.FindStringSubmatch(normalized)
	if m == nil {
		return Info{}, errs.New("sdk.ParseDeviceSupportPath", errs.CodeBadConfig, "not a recognized DeviceSupport path: "+path)
	}

	platformDir := m[1]
	name, ok := deviceSupportPlatforms[platformDir]
	if !ok {
		// Fall back to the word preceding "DeviceSupport" so an unlisted
		// platform folder still parses instead of hard-failing.
		name = strings.TrimSuffix(platformDir, " DeviceSupport")
	}

	major, _ := strconv.ParseUint(m[2], 10, 32)
	minor, _ := strconv.ParseUint(m[3], 10, 32)
	var patch uint64
	if m[4] != "" {
		patch, _ = strconv.ParseUint(m[4], 10, 32)
	}

	return Info{
		Name:  name,
		Major: uint32(major),
		Minor: uint32(minor),
		Patch: uint32(patch),
		Build: m[5],
	}, nil
}

// Query is a loosely specified SDK id used to fuzzy-match against a set
// of locally known Info values: name/major/minor are required; patch
// and build may be wildcarded.
type Query struct {
	Name         string
	Major, Minor uint32
	Patch        uint32
	PatchAny     bool
	Build        string
	BuildAny     bool
}

var queryPattern = regexp.MustCompile(
	`^([A-Za-z][A-Za-z0-9]*)_(\d+)\.(\d+)\.(x|\d+)(?:_(\*|[A-Za-z0-9]+))?$`,
)

// ParseQuery parses a query id such as "iOS_10.2.x_*" or a fully
// specified "iOS_10.2.3_14C93" into a Query. "x" wildcards Patch; "*"
// wildcards Build; an omitted build segment also wildcards Build.
func ParseQuery(id string) (Query, error) {
	m := queryPattern.FindStringSubmatch(id)
	if m == nil {
		return Query{}, errs.New("sdk.ParseQuery", errs.CodeInvalidRequest, "malformed sdk id: "+id)
	}

	major, _ := strconv.ParseUint(m[2], 10, 32)
	minor, _ := strconv.ParseUint(m[3], 10, 32)

	q := Query{Name: m[1], Major: uint32(major), Minor: uint32(minor)}
	if m[4] == "x" {
		q.PatchAny = true
	} else {
		patch, _ := strconv.ParseUint(m[4], 10, 32)
		q.Patch = uint32(patch)
	}

	switch m[5] {
	case "", "*":
		q.BuildAny = true
	default:
		q.Build = m[5]
	}
	return q, nil
}

// Candidate reports whether info shares q's name and major version — the
// coarse filter applied before ranking. Minor/patch/build only affect
// ranking, not eligibility: a query for 10.2.x still considers a locally
// known 10.3.0 as a (lower-ranked) candidate.
func (q Query) Candidate(info Info) bool {
	return q.Name == info.Name && q.Major == info.Major
}

// Rank sorts candidates best-match-first for q, mutating the slice
// in-place and returning it. Ordering: smallest minor distance from q
// first; then, among equal minor distance, an exact build match beats a
// non-match; then an exact patch match beats a non-match; finally the
// newest patch wins ties (spec scenario: querying "iOS_10.2.x_*" against
// 10.2.1/10.2.3/10.3.0 yields 10.2.3, then 10.2.1, then 10.3.0).
func (q Query) Rank(candidates []Info) []Info {
	minorDistance := func(i Info) uint32 {
		if i.Minor >= q.Minor {
			return i.Minor - q.Minor
		}
		return q.Minor - i.Minor
	}
	buildRank := func(i Info) int {
		if !q.BuildAny && q.Build == i.Build {
			return 0
		}
		return 1
	}
	patchRank := func(i Info) int {
		if !q.PatchAny && q.Patch == i.Patch {
			return 0
		}
		return 1
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if da, db := minorDistance(ca), minorDistance(cb); da != db {
			return da < db
		}
		if ba, bb := buildRank(ca), buildRank(cb); ba != bb {
			return ba < bb
		}
		if pa, pb := patchRank(ca), patchRank(cb); pa != pb {
			return pa < pb
		}
		return ca.Patch > cb.Patch
	})
	return candidates
}
