// Command symdbuild builds a MemDB file from a directory of Mach-O
// objects (typically an extracted "<Platform> DeviceSupport/<version>
// (<build>)" folder), or dumps an existing MemDB's contents for
// inspection.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/coresymbols/symd/internal/machoreader"
	"github.com/coresymbols/symd/memdb"
	"github.com/coresymbols/symd/sdk"
)

func main() {
	var (
		dump   = flag.String("dump", "", "dump the contents of an existing MemDB file and exit")
		output = flag.String("o", "", "output MemDB path (defaults to <sdk_id>.memdb in the current directory)")
		sdkID  = flag.String("sdk", "", "override SDK id inference from the input path")
	)
	flag.Parse()

	if *dump != "" {
		if err := dumpMemDB(*dump); err != nil {
			log.Fatalf("symdbuild: %v", err)
		}
		return
	}

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: symdbuild [-o output.memdb] [-sdk name_major.minor.patch_build] <DeviceSupport folder>")
		os.Exit(2)
	}
	root := flag.Arg(0)

	info, err := resolveSdkInfo(root, *sdkID)
	if err != nil {
		log.Fatalf("symdbuild: %v", err)
	}

	out := *output
	if out == "" {
		out = info.Filename()
	}

	if err := build(root, info, out); err != nil {
		log.Fatalf("symdbuild: %v", err)
	}
	fmt.Printf("wrote %s\n", out)
}

func resolveSdkInfo(root, override string) (sdk.Info, error) {
	if override != "" {
		return sdk.ParseFilename(override + ".memdb")
	}
	return sdk.ParseDeviceSupportPath(root)
}

// build walks root, opens every regular file as a candidate Mach-O
// object, and adds each one's indexable variants to a fresh MemDB
// writer. Files that aren't Mach-O objects (or carry no LC_UUID slice)
// are skipped rather than treated as fatal — a DeviceSupport tree is
// full of plists, caches, and other non-object files alongside the
// dylibs that matter.
func build(root string, info sdk.Info, out string) error {
	w := memdb.NewWriter(info)
	added := 0

	err := filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		obj, openErr := machoreader.Open(path)
		if openErr != nil {
			return nil // not a Mach-O object; skip
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if addErr := w.AddObject(rel, &machoSourceObject{obj}); addErr != nil {
			log.Printf("symdbuild: skipping %s: %v", path, addErr)
			return nil
		}
		added++
		return nil
	})
	if err != nil {
		return err
	}
	log.Printf("symdbuild: indexed %d object(s) for %s", added, info.String())

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	return w.Flush(f)
}

// machoSourceObject adapts machoreader.Object (the build-time Mach-O
// collaborator) to memdb.SourceObject (the writer's dependency), the
// seam between Mach-O parsing and MemDB indexing.
type machoSourceObject struct {
	obj machoreader.Object
}

func (m *machoSourceObject) Variants() []memdb.SourceVariant {
	variants := m.obj.Variants()
	out := make([]memdb.SourceVariant, len(variants))
	for i, v := range variants {
		out[i] = memdb.SourceVariant{
			Arch:        v.Arch(),
			UUID:        v.UUID,
			InstallName: v.InstallName,
			VMAddr:      v.TextVMAddr,
			VMSize:      v.TextVMSize,
		}
	}
	return out
}

func (m *machoSourceObject) Symbols(sv memdb.SourceVariant) ([]memdb.SourceSymbol, error) {
	for _, v := range m.obj.Variants() {
		if v.Arch() != sv.Arch || !sameUUID(v.UUID, sv.UUID) {
			continue
		}
		it, err := m.obj.Symbols(v)
		if err != nil {
			return nil, err
		}
		var syms []memdb.SourceSymbol
		for it.Next() {
			s := it.Symbol()
			syms = append(syms, memdb.SourceSymbol{Addr: s.Addr, Name: s.Name})
		}
		return syms, nil
	}
	return nil, nil
}

func sameUUID(a, b *[16]byte) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// dumpMemDB opens path and prints every (uuid, arch, addr, object,
// symbol) tuple it can reach via the tagged-object-name table, mirroring
// the upstream service's own memdbdump debugging tool.
func dumpMemDB(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	r, err := memdb.Open(data)
	if err != nil {
		return err
	}

	info := r.Info()
	fmt.Printf("sdk: %s\n", info.String())

	entries, err := r.TaggedEntries()
	if err != nil {
		return err
	}

	seen := make(map[[16]byte]bool)
	count := 0
	for _, entry := range entries {
		if seen[entry.UUID] {
			continue
		}
		seen[entry.UUID] = true

		syms, err := r.IterSymbols(entry.UUID)
		if err != nil {
			log.Printf("symdbuild: dump: uuid %x: %v", entry.UUID, err)
			continue
		}
		for _, sym := range syms {
			fmt.Printf("%x\t%s\t0x%x\t%s\t%s\n", entry.UUID, entry.Arch, sym.Addr, sym.ObjectName, sym.Name)
			count++
		}
	}
	fmt.Printf("# %d symbol(s) across %d object(s)\n", count, len(seen))
	return nil
}
