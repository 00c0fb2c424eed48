package sdk

import "testing"

func TestFilenameRoundTrip(t *testing.T) {
	info, err := ParseFilename("iOS_10.2.3_14C93.memdb")
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	want := Info{Name: "iOS", Major: 10, Minor: 2, Patch: 3, Build: "14C93"}
	if info != want {
		t.Errorf("parsed = %+v, want %+v", info, want)
	}
	if got := info.Filename(); got != "iOS_10.2.3_14C93.memdb" {
		t.Errorf("Filename() = %q, want round-trip to input", got)
	}
}

func TestFilenameRoundTripNoBuild(t *testing.T) {
	info := Info{Name: "macOS", Major: 14, Minor: 0, Patch: 0}
	filename := info.Filename()
	if filename != "macOS_14.0.0.memdb" {
		t.Errorf("Filename() = %q, want macOS_14.0.0.memdb", filename)
	}

	reparsed, err := ParseFilename(filename)
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if reparsed != info {
		t.Errorf("round-trip = %+v, want %+v", reparsed, info)
	}
}

func TestParseFilenameRejectsGarbage(t *testing.T) {
	if _, err := ParseFilename("not-a-memdb-name.txt"); err == nil {
		t.Error("expected ParseFilename to reject a non-canonical filename")
	}
}

func TestParseDeviceSupportPathWithoutPatch(t *testing.T) {
	info, err := ParseDeviceSupportPath("/Users/dev/Library/Developer/Xcode/iOS DeviceSupport/10.2 (14C92)")
	if err != nil {
		t.Fatalf("ParseDeviceSupportPath: %v", err)
	}
	want := Info{Name: "iOS", Major: 10, Minor: 2, Patch: 0, Build: "14C92"}
	if info != want {
		t.Errorf("parsed = %+v, want %+v", info, want)
	}
}

func TestParseDeviceSupportPathWithPatchAndZip(t *testing.T) {
	info, err := ParseDeviceSupportPath("/tmp/tvOS DeviceSupport/2.2.3 (14C93).zip")
	if err != nil {
		t.Fatalf("ParseDeviceSupportPath: %v", err)
	}
	want := Info{Name: "tvOS", Major: 2, Minor: 2, Patch: 3, Build: "14C93"}
	if info != want {
		t.Errorf("parsed = %+v, want %+v", info, want)
	}
}

func TestParseDeviceSupportPathRejectsUnmatched(t *testing.T) {
	if _, err := ParseDeviceSupportPath("/tmp/not-a-device-support-path"); err == nil {
		t.Error("expected rejection of a non-DeviceSupport path")
	}
}

func TestParseQueryWildcards(t *testing.T) {
	q, err := ParseQuery("iOS_10.2.x_*")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if q.Name != "iOS" || q.Major != 10 || q.Minor != 2 || !q.PatchAny || !q.BuildAny {
		t.Errorf("parsed query = %+v", q)
	}
}

func TestParseQueryExact(t *testing.T) {
	q, err := ParseQuery("iOS_10.2.3_14C93")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if q.PatchAny || q.Patch != 3 || q.BuildAny || q.Build != "14C93" {
		t.Errorf("parsed query = %+v", q)
	}
}

func TestFuzzyMatchOrdering(t *testing.T) {
	local := []Info{
		{Name: "iOS", Major: 10, Minor: 2, Patch: 1, Build: "14D27"},
		{Name: "iOS", Major: 10, Minor: 2, Patch: 3, Build: "14C93"},
		{Name: "iOS", Major: 10, Minor: 3, Patch: 0, Build: "14E8"},
	}

	q, err := ParseQuery("iOS_10.2.x_*")
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}

	var candidates []Info
	for _, info := range local {
		if q.Candidate(info) {
			candidates = append(candidates, info)
		}
	}
	ranked := q.Rank(candidates)

	want := []Info{local[1], local[0], local[2]}
	if len(ranked) != len(want) {
		t.Fatalf("ranked = %+v, want %+v", ranked, want)
	}
	for i := range want {
		if ranked[i] != want[i] {
			t.Errorf("ranked[%d] = %+v, want %+v", i, ranked[i], want[i])
		}
	}
}
