package machoreader

import (
	"debug/macho"
	"encoding/binary"
	"testing"
)

func TestArchName(t *testing.T) {
	tests := []struct {
		cpuType, cpuSubtype uint32
		want                string
	}{
		{cpuTypeArm64, 0, "arm64"},
		{cpuTypeArm64, 2, "arm64e"},
		{cpuTypeArm, 9, "armv7"},
		{cpuTypeArm, 11, "armv7s"},
		{cpuTypeX8664, 3, "x86_64"},
		{cpuTypeX86, 3, "i386"},
	}
	for _, tt := range tests {
		if got := archName(tt.cpuType, tt.cpuSubtype); got != tt.want {
			t.Errorf("archName(0x%x,0x%x) = %q, want %q", tt.cpuType, tt.cpuSubtype, got, tt.want)
		}
	}
}

func TestArchNameMasksCapabilityBits(t *testing.T) {
	// high bits (e.g. pointer-auth ABI flags) must not change the name.
	const ptrAuthABI = 0x80000000
	if got := archName(cpuTypeArm64, 2|ptrAuthABI); got != "arm64e" {
		t.Errorf("archName with capability bits set = %q, want arm64e", got)
	}
}

// buildSegment constructs a *macho.Segment using only its exported
// fields — debug/macho's file-backed fields (sr, ReaderAt) stay nil,
// which is fine since Symbols/variantFromFile never call .Data() on it.
func buildSegment(name string, addr, memsz uint64) *macho.Segment {
	return &macho.Segment{
		SegmentHeader: macho.SegmentHeader{Name: name, Addr: addr, Memsz: memsz},
	}
}

func rawLoadUUID(uuid [16]byte) macho.LoadBytes {
	buf := make([]byte, 24)
	le := func(b []byte, v uint32) {
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
		b[3] = byte(v >> 24)
	}
	le(buf[0:4], lcUUID)
	le(buf[4:8], 24)
	copy(buf[8:24], uuid[:])
	return macho.LoadBytes(buf)
}

func rawLoadIDDylib(name string) macho.LoadBytes {
	le := func(b []byte, v uint32) {
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
		b[3] = byte(v >> 24)
	}
	const nameOffset = 24
	buf := make([]byte, nameOffset+len(name)+1)
	le(buf[0:4], lcIDDylib)
	le(buf[4:8], uint32(len(buf)))
	le(buf[8:12], nameOffset)
	copy(buf[nameOffset:], name)
	return macho.LoadBytes(buf)
}

func TestVariantFromFileExtractsTextRangeUUIDAndInstallName(t *testing.T) {
	uuid := [16]byte{0xfe, 0x6d, 0x76, 0xd4, 0x8c, 0x3a, 0x3a, 0x9a, 0x9f, 0x63, 0xf4, 0xa4, 0x75, 0x50, 0x1f, 0x1b}

	f := &macho.File{
		ByteOrder: binary.LittleEndian,
		Loads: []macho.Load{
			buildSegment("__TEXT", 0x195A84000, 0x23000),
			rawLoadUUID(uuid),
			rawLoadIDDylib("/usr/lib/libfoo.dylib"),
		},
	}

	v, ok := variantFromFile(f, cpuTypeArm64, 0)
	if !ok {
		t.Fatal("variantFromFile returned ok=false")
	}
	if v.TextVMAddr != 0x195A84000 || v.TextVMSize != 0x23000 {
		t.Errorf("text range = (0x%x, 0x%x), want (0x195A84000, 0x23000)", v.TextVMAddr, v.TextVMSize)
	}
	if v.UUID == nil || *v.UUID != uuid {
		t.Errorf("UUID = %v, want %v", v.UUID, uuid)
	}
	if v.InstallName != "/usr/lib/libfoo.dylib" {
		t.Errorf("InstallName = %q, want /usr/lib/libfoo.dylib", v.InstallName)
	}
}

func TestVariantFromFileMissingTextSegment(t *testing.T) {
	f := &macho.File{ByteOrder: binary.LittleEndian}
	if _, ok := variantFromFile(f, cpuTypeArm64, 0); ok {
		t.Error("expected variantFromFile to report no usable variant without __TEXT")
	}
}
