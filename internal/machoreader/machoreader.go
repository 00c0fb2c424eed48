// Package machoreader extracts the handful of facts symdbuild needs out
// of a Mach-O object: its variants (one per architecture slice), each
// variant's UUID, install name, and __TEXT range, and the defined
// symbols in __TEXT,__text. It leans on the standard library's
// debug/macho for fat/thin container parsing and symbol table decoding,
// and hand-parses the load commands stdlib treats as opaque bytes
// (LC_UUID, LC_ID_DYLIB) plus the cpu subtype names stdlib doesn't know.
package machoreader

import (
	"debug/macho"
	"fmt"

	"github.com/coresymbols/symd/internal/errs"
)

// Variant is one architecture slice of a Mach-O object.
type Variant struct {
	CPUType     uint32
	CPUSubtype  uint32
	UUID        *[16]byte // nil if the slice carries no LC_UUID
	InstallName string    // "" if the slice carries no LC_ID_DYLIB
	TextVMAddr  uint64
	TextVMSize  uint64

	idx int // index into object.files; not part of the public contract
}

// Arch returns the human-readable architecture name for the variant,
// e.g. "arm64e", "armv7s", "x86_64".
func (v Variant) Arch() string {
	return archName(v.CPUType, v.CPUSubtype)
}

// Symbol is one defined text symbol.
type Symbol struct {
	Addr uint64
	Name string
}

// SymbolIter yields a variant's defined __TEXT,__text symbols in
// whatever order the symbol table stored them; callers that need
// address order should sort.
type SymbolIter struct {
	syms []Symbol
	i    int
}

// Next advances the iterator, returning false once exhausted.
func (it *SymbolIter) Next() bool {
	it.i++
	return it.i <= len(it.syms)
}

// Symbol returns the current entry. Valid only after Next returns true.
func (it *SymbolIter) Symbol() Symbol {
	return it.syms[it.i-1]
}

// Object is a parsed Mach-O file: a fat binary with several variants, or
// a thin one with exactly one.
type Object interface {
	Variants() []Variant
	Symbols(v Variant) (*SymbolIter, error)
}

type object struct {
	variants []Variant
	files    map[int]*macho.File
}

func (o *object) Variants() []Variant { return o.variants }

func (o *object) Symbols(v Variant) (*SymbolIter, error) {
	f, ok := o.files[v.idx]
	if !ok {
		return nil, errs.New("machoreader.Symbols", errs.CodeUnknownArchitecture,
			"variant does not belong to this object")
	}
	if f.Symtab == nil {
		return &SymbolIter{}, nil
	}

	textSect := findSegment(f, "__TEXT")
	if textSect == nil {
		return &SymbolIter{}, nil
	}
	sectIndex := -1
	for i, sec := range f.Sections {
		if sec.Seg == "__TEXT" && sec.Name == "__text" {
			sectIndex = i + 1 // nlist n_sect is 1-based
			break
		}
	}
	if sectIndex == -1 {
		return &SymbolIter{}, nil
	}

	var syms []Symbol
	for _, s := range f.Symtab.Syms {
		if s.Type&nTypeStab != 0 {
			continue // debugging symbol, not a real entry
		}
		if s.Type&nTypeType != nTypeSect {
			continue // undefined, absolute, or indirect — not resolvable here
		}
		if int(s.Sect) != sectIndex {
			continue
		}
		syms = append(syms, Symbol{Addr: s.Value, Name: s.Name})
	}
	return &SymbolIter{syms: syms}, nil
}

// nlist type-field constants (mach-o/nlist.h); debug/macho exposes the
// raw Type byte but none of the bits that classify it.
const (
	nTypeStab = 0xe0 // if any of these bits are set, a symbolic debugging entry
	nTypeType = 0x0e // mask for the N_TYPE field
	nTypeSect = 0x0e // N_SECT: defined in the section given by n_sect
	nTypeExt  = 0x01 // N_EXT: external symbol
)

// Open parses path as a Mach-O fat or thin object.
func Open(path string) (Object, error) {
	if fat, err := macho.OpenFat(path); err == nil {
		return fromFat(fat)
	}
	f, err := macho.Open(path)
	if err != nil {
		return nil, errs.Wrap("machoreader.Open", errs.CodeMissingArchitecture, err)
	}
	return fromThin(f)
}

func fromFat(fat *macho.FatFile) (Object, error) {
	files := make(map[int]*macho.File)
	var variants []Variant
	for i, arch := range fat.Arches {
		v, ok := variantFromFile(arch.File, uint32(arch.Cpu), arch.SubCpu)
		if !ok {
			continue
		}
		v.idx = i
		variants = append(variants, v)
		files[i] = arch.File
	}
	if len(variants) == 0 {
		return nil, errs.New("machoreader.Open", errs.CodeMissingArchitecture,
			"fat object has no slice with a usable __TEXT segment")
	}
	return &object{variants: variants, files: files}, nil
}

func fromThin(f *macho.File) (Object, error) {
	v, ok := variantFromFile(f, uint32(f.Cpu), f.SubCpu)
	if !ok {
		return nil, errs.New("machoreader.Open", errs.CodeMissingArchitecture,
			"object has no usable __TEXT segment")
	}
	v.idx = 0
	return &object{variants: []Variant{v}, files: map[int]*macho.File{0: f}}, nil
}

func variantFromFile(f *macho.File, cpuType, cpuSubtype uint32) (Variant, bool) {
	seg := findSegment(f, "__TEXT")
	if seg == nil {
		return Variant{}, false
	}

	v := Variant{
		CPUType:     cpuType,
		CPUSubtype:  cpuSubtype,
		TextVMAddr:  seg.Addr,
		TextVMSize:  seg.Memsz,
		UUID:        findUUID(f),
		InstallName: findInstallName(f),
	}
	return v, true
}

func findSegment(f *macho.File, name string) *macho.Segment {
	for _, l := range f.Loads {
		if seg, ok := l.(*macho.Segment); ok && seg.Name == name {
			return seg
		}
	}
	return nil
}

// Mach-O load command constants not parsed into a structured type by
// debug/macho.
const (
	lcUUID    = 0x1b
	lcIDDylib = 0x0d
)

// findUUID hand-scans the raw load commands for LC_UUID, which
// debug/macho leaves as opaque LoadBytes.
func findUUID(f *macho.File) *[16]byte {
	for _, l := range f.Loads {
		raw, ok := l.(macho.LoadBytes)
		if !ok {
			continue
		}
		if len(raw) < 24 {
			continue
		}
		cmd := f.ByteOrder.Uint32(raw[0:4])
		if cmd != lcUUID {
			continue
		}
		var uuid [16]byte
		copy(uuid[:], raw[8:24])
		return &uuid
	}
	return nil
}

// findInstallName hand-parses LC_ID_DYLIB, the dylib's own install name
// — distinct from LC_LOAD_DYLIB (a dependency), which debug/macho does
// parse into *macho.Dylib.
func findInstallName(f *macho.File) string {
	for _, l := range f.Loads {
		raw, ok := l.(macho.LoadBytes)
		if !ok {
			continue
		}
		if len(raw) < 24 {
			continue
		}
		cmd := f.ByteOrder.Uint32(raw[0:4])
		if cmd != lcIDDylib {
			continue
		}
		nameOffset := f.ByteOrder.Uint32(raw[8:12])
		if int(nameOffset) >= len(raw) {
			continue
		}
		return cString(raw[nameOffset:])
	}
	return ""
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// cpu type constants, mirrored from mach-o/machine.h; debug/macho.Cpu
// only names six coarse architectures and has no subtype constants at
// all, so subtype-level names (arm64 vs arm64e, armv7 vs armv7s) have
// to be hand-tabulated here.
const (
	cpuArchABI64   = 0x01000000
	cpuArchABI6432 = 0x02000000
	cpuArchMask    = 0xff000000

	cpuTypeX86   = 7
	cpuTypeX8664 = cpuTypeX86 | cpuArchABI64
	cpuTypeArm   = 12
	cpuTypeArm64 = cpuTypeArm | cpuArchABI64
	cpuTypeArm64_32 = cpuTypeArm | cpuArchABI6432
)

const cpuSubtypeMask = 0x00ffffff // low bits, excluding capability flags

var armSubtypeNames = map[uint32]string{
	0:  "armv4t",
	5:  "armv4t",
	6:  "armv6",
	7:  "armv5tej",
	8:  "xscale",
	9:  "armv7",
	10: "armv7f",
	11: "armv7s",
	12: "armv7k",
	13: "armv8",
	14: "armv6m",
	15: "armv7m",
	16: "armv7em",
	17: "armv8m",
}

var arm64SubtypeNames = map[uint32]string{
	0: "arm64",
	1: "arm64v8",
	2: "arm64e",
}

// archName renders a (cputype, cpusubtype) pair the way symbolication
// tooling names architectures, e.g. "arm64e", "armv7s", "x86_64".
func archName(cpuType, cpuSubtype uint32) string {
	subtype := cpuSubtype & cpuSubtypeMask
	switch cpuType {
	case cpuTypeX86:
		return "i386"
	case cpuTypeX8664:
		return "x86_64"
	case cpuTypeArm:
		if name, ok := armSubtypeNames[subtype]; ok {
			return name
		}
		return "arm"
	case cpuTypeArm64:
		if name, ok := arm64SubtypeNames[subtype]; ok {
			return name
		}
		return "arm64"
	case cpuTypeArm64_32:
		return "arm64_32"
	default:
		return fmt.Sprintf("unknown(0x%x,0x%x)", cpuType, cpuSubtype)
	}
}
