package memdb

import (
	"bytes"
	"testing"

	"github.com/coresymbols/symd/sdk"
	"github.com/google/uuid"
)

// fakeObject is a test double for SourceObject, standing in for a
// parsed Mach-O file without needing real binary bytes.
type fakeObject struct {
	variants []SourceVariant
	symbols  map[string][]SourceSymbol // keyed by the variant's raw UUID bytes
}

func (f *fakeObject) Variants() []SourceVariant { return f.variants }

func (f *fakeObject) Symbols(v SourceVariant) ([]SourceSymbol, error) {
	return f.symbols[string(v.UUID[:])], nil
}

func mustUUID(s string) [16]byte {
	u, err := uuid.Parse(s)
	if err != nil {
		panic(err)
	}
	var out [16]byte
	copy(out[:], u[:])
	return out
}

func buildTrivialMemDB(t *testing.T) *Reader {
	t.Helper()
	uuid := mustUUID("fe6d76d4-8c3a-3a9a-9f63-f4a475501f1b")

	obj := &fakeObject{
		variants: []SourceVariant{{
			Arch:        "arm64e",
			UUID:        &uuid,
			InstallName: "/usr/lib/lib.dylib",
			VMAddr:      0x195A84000,
			VMSize:      0x23000,
		}},
		symbols: map[string][]SourceSymbol{
			string(uuid[:]): {
				{Addr: 0x195A86090, Name: "_foo"},
				{Addr: 0x195A86100, Name: "_bar"},
			},
		},
	}

	w := NewWriter(sdk.Info{Name: "iOS", Major: 10, Minor: 2, Patch: 3, Build: "14C93"})
	if err := w.AddObject("/usr/lib/lib.dylib", obj); err != nil {
		t.Fatalf("AddObject: %v", err)
	}

	var buf bytes.Buffer
	sink := &seekableBuffer{buf: &buf}
	if err := w.Flush(sink); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r, err := Open(buf.Bytes())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func TestScenario1TrivialMemDB(t *testing.T) {
	r := buildTrivialMemDB(t)
	uuid := mustUUID("fe6d76d4-8c3a-3a9a-9f63-f4a475501f1b")

	cases := []struct {
		addr     uint64
		wantName string
		wantOK   bool
	}{
		{0x2090, "_foo", true},
		{0x20FF, "_foo", true},
		{0x2100, "_bar", true},
		{0x22FFF, "_bar", true},
		{0x23000, "", false},
	}
	for _, tc := range cases {
		sym, ok, err := r.LookupByUUID(uuid, tc.addr)
		if err != nil {
			t.Fatalf("LookupByUUID(0x%x): %v", tc.addr, err)
		}
		if ok != tc.wantOK {
			t.Fatalf("LookupByUUID(0x%x) ok = %v, want %v", tc.addr, ok, tc.wantOK)
		}
		if ok && sym.Name != tc.wantName {
			t.Errorf("LookupByUUID(0x%x) = %q, want %q", tc.addr, sym.Name, tc.wantName)
		}
		if ok && sym.ObjectName != "/usr/lib/lib.dylib" {
			t.Errorf("LookupByUUID(0x%x) object = %q, want /usr/lib/lib.dylib", tc.addr, sym.ObjectName)
		}
	}
}

func TestLookupByObjectName(t *testing.T) {
	r := buildTrivialMemDB(t)
	sym, ok, err := r.LookupByObjectName("/usr/lib/lib.dylib", "arm64e", 0x2090)
	if err != nil {
		t.Fatalf("LookupByObjectName: %v", err)
	}
	if !ok || sym.Name != "_foo" {
		t.Errorf("LookupByObjectName = %+v, ok=%v, want _foo", sym, ok)
	}
}

func TestLookupUnknownUUID(t *testing.T) {
	r := buildTrivialMemDB(t)
	other := mustUUID("00000000-0000-0000-0000-000000000000")
	_, ok, err := r.LookupByUUID(other, 0)
	if err != nil {
		t.Fatalf("LookupByUUID: %v", err)
	}
	if ok {
		t.Error("expected LookupByUUID to report not-found for an unindexed UUID")
	}
}

func TestIterSymbolsOrder(t *testing.T) {
	r := buildTrivialMemDB(t)
	uuid := mustUUID("fe6d76d4-8c3a-3a9a-9f63-f4a475501f1b")
	syms, err := r.IterSymbols(uuid)
	if err != nil {
		t.Fatalf("IterSymbols: %v", err)
	}
	if len(syms) != 2 || syms[0].Name != "_foo" || syms[1].Name != "_bar" {
		t.Errorf("IterSymbols = %+v, want [_foo _bar]", syms)
	}
}

func TestVariantDeduplicationAcrossAliases(t *testing.T) {
	uuid := mustUUID("11111111-1111-1111-1111-111111111111")
	obj := &fakeObject{
		variants: []SourceVariant{
			{Arch: "arm64", UUID: &uuid, InstallName: "/usr/lib/dup.dylib", VMAddr: 0x1000, VMSize: 0x100},
			{Arch: "arm64", UUID: &uuid, InstallName: "/usr/lib/dup.dylib", VMAddr: 0x1000, VMSize: 0x100},
		},
		symbols: map[string][]SourceSymbol{
			string(uuid[:]): {{Addr: 0x1010, Name: "_once"}},
		},
	}
	w := NewWriter(sdk.Info{Name: "iOS", Major: 10, Minor: 0, Patch: 0})
	if err := w.AddObject("a", obj); err != nil {
		t.Fatalf("AddObject first: %v", err)
	}
	if err := w.AddObject("a", obj); err != nil {
		t.Fatalf("AddObject second: %v", err)
	}
	if len(w.variants) != 1 {
		t.Errorf("variants built = %d, want 1 (deduplicated by uuid)", len(w.variants))
	}
}

func TestHeaderVersionRejected(t *testing.T) {
	r := buildTrivialMemDB(t)
	buf := append([]byte(nil), r.data...)
	buf[0] = 99 // corrupt the version field (little-endian low byte)
	if _, err := Open(buf); err == nil {
		t.Error("expected Open to reject a mismatched version")
	}
}

func TestTruncatedBufferRejectedNotPanicked(t *testing.T) {
	r := buildTrivialMemDB(t)
	truncated := r.data[:len(r.data)-1]
	r2, err := Open(truncated)
	if err != nil {
		// header itself may still parse; the failure should surface on lookup.
		return
	}
	uuid := mustUUID("fe6d76d4-8c3a-3a9a-9f63-f4a475501f1b")
	if _, _, err := r2.LookupByUUID(uuid, 0x2090); err == nil {
		t.Error("expected a bounds error reading from a truncated buffer")
	}
}

// seekableBuffer adapts a *bytes.Buffer into an io.WriteSeeker the way
// the writer's Flush requires, without needing a real temp file for
// in-memory tests.
type seekableBuffer struct {
	buf *bytes.Buffer
	pos int
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if s.pos < s.buf.Len() {
		// overwrite in place (used only for the header rewrite at offset 0)
		data := s.buf.Bytes()
		n := copy(data[s.pos:], p)
		s.pos += n
		if n < len(p) {
			s.buf.Write(p[n:])
			s.pos += len(p) - n
		}
		return len(p), nil
	}
	n, err := s.buf.Write(p)
	s.pos += n
	return n, err
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	if whence == 0 {
		s.pos = int(offset)
	}
	return int64(s.pos), nil
}
