package symtab

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blakesmith/ar"
)

type testSym struct {
	name  string
	info  byte
	shndx uint16
	size  uint64
}

type testSection struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	data  []byte
	size  uint64 // NOBITS only
	link  uint32
	info  uint32
	ent   uint64
}

func strtab(names []string) ([]byte, map[string]uint32) {
	buf := []byte{0}
	idx := map[string]uint32{"": 0}
	for _, n := range names {
		if _, ok := idx[n]; ok {
			continue
		}
		idx[n] = uint32(len(buf))
		buf = append(buf, n...)
		buf = append(buf, 0)
	}
	return buf, idx
}

// buildObject writes a little-endian ELF64 relocatable holding .data, .tbss
// and .text plus a symbol table with the given symbols.
func buildObject(t *testing.T, syms []testSym) []byte {
	t.Helper()
	le := binary.LittleEndian

	var symNames []string
	for _, s := range syms {
		symNames = append(symNames, s.name)
	}
	strData, strIdx := strtab(symNames)

	symData := make([]byte, 24) // null symbol
	for _, s := range syms {
		var ent [24]byte
		le.PutUint32(ent[0:], strIdx[s.name])
		ent[4] = s.info
		le.PutUint16(ent[6:], s.shndx)
		le.PutUint64(ent[16:], s.size)
		symData = append(symData, ent[:]...)
	}

	sections := []testSection{
		{}, // SHN_UNDEF
		{name: ".data", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_WRITE, data: make([]byte, 8)},
		{name: ".tbss", typ: elf.SHT_NOBITS, flags: elf.SHF_ALLOC | elf.SHF_WRITE | elf.SHF_TLS, size: 8},
		{name: ".text", typ: elf.SHT_PROGBITS, flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, data: make([]byte, 8)},
		{name: ".symtab", typ: elf.SHT_SYMTAB, data: symData, link: 5, info: 1, ent: 24},
		{name: ".strtab", typ: elf.SHT_STRTAB, data: strData},
		{name: ".shstrtab", typ: elf.SHT_STRTAB},
	}
	var secNames []string
	for _, s := range sections[1:] {
		secNames = append(secNames, s.name)
	}
	shstr, shIdx := strtab(secNames)
	sections[6].data = shstr

	body := make([]byte, 64)
	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		if i == 0 || s.typ == elf.SHT_NOBITS {
			continue
		}
		for len(body)%8 != 0 {
			body = append(body, 0)
		}
		offsets[i] = uint64(len(body))
		body = append(body, s.data...)
	}
	for len(body)%8 != 0 {
		body = append(body, 0)
	}
	shoff := uint64(len(body))

	for i, s := range sections {
		var sh [64]byte
		if i != 0 {
			size := uint64(len(s.data))
			if s.typ == elf.SHT_NOBITS {
				size = s.size
			}
			le.PutUint32(sh[0:], shIdx[s.name])
			le.PutUint32(sh[4:], uint32(s.typ))
			le.PutUint64(sh[8:], uint64(s.flags))
			le.PutUint64(sh[24:], offsets[i])
			le.PutUint64(sh[32:], size)
			le.PutUint32(sh[40:], s.link)
			le.PutUint32(sh[44:], s.info)
			le.PutUint64(sh[48:], 1)
			le.PutUint64(sh[56:], s.ent)
		}
		body = append(body, sh[:]...)
	}

	copy(body[0:], elf.ELFMAG)
	body[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	body[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	body[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	le.PutUint16(body[16:], uint16(elf.ET_REL))
	le.PutUint16(body[18:], uint16(elf.EM_X86_64))
	le.PutUint32(body[20:], uint32(elf.EV_CURRENT))
	le.PutUint64(body[40:], shoff)
	le.PutUint16(body[52:], 64) // ehsize
	le.PutUint16(body[58:], 64) // shentsize
	le.PutUint16(body[60:], uint16(len(sections)))
	le.PutUint16(body[62:], 6) // shstrndx
	return body
}

func info(bind elf.SymBind, typ elf.SymType) byte {
	return elf.ST_INFO(bind, typ)
}

var sampleSyms = []testSym{
	{name: "counter", info: info(elf.STB_GLOBAL, elf.STT_OBJECT), shndx: 1, size: 4},
	{name: "per_thread", info: info(elf.STB_GLOBAL, elf.STT_TLS), shndx: 2, size: 4},
	{name: "main", info: info(elf.STB_GLOBAL, elf.STT_FUNC), shndx: 3, size: 8},
	{name: "shared_common", info: info(elf.STB_GLOBAL, elf.STT_OBJECT), shndx: uint16(elf.SHN_COMMON), size: 16},
	{name: "external", info: info(elf.STB_GLOBAL, elf.STT_NOTYPE), shndx: uint16(elf.SHN_UNDEF)},
}

func checkSampleSymbols(t *testing.T, syms []Symbol, member string) {
	t.Helper()
	if len(syms) != 3 {
		t.Fatalf("symbols = %+v", syms)
	}
	want := []Symbol{
		{Section: ".data", Name: "counter", Size: 4},
		{Section: ".tbss", Name: "per_thread", Size: 4, TLS: true},
		{Section: "*COM*", Name: "shared_common", Size: 16, Common: true},
	}
	for i, w := range want {
		got := syms[i]
		if got.Section != w.Section || got.Name != w.Name || got.Size != w.Size || got.TLS != w.TLS || got.Common != w.Common || got.Member != member {
			t.Errorf("symbol %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestReadObject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.o")
	if err := os.WriteFile(path, buildObject(t, sampleSyms), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	syms, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	checkSampleSymbols(t, syms, "")
	if got := syms[0].String(); got != path+": .data: counter" {
		t.Fatalf("String = %q", got)
	}
}

func TestReadArchive(t *testing.T) {
	obj := buildObject(t, sampleSyms)
	var buf bytes.Buffer
	w := ar.NewWriter(&buf)
	if err := w.WriteGlobalHeader(); err != nil {
		t.Fatalf("global header: %v", err)
	}
	members := []struct {
		name string
		data []byte
	}{
		{"README", []byte("text\n")},
		{"a.o/", obj},
	}
	for _, m := range members {
		data := m.data
		if len(data)%2 != 0 {
			data = append(data, '\n')
		}
		hdr := &ar.Header{Name: m.name, ModTime: time.Unix(0, 0), Mode: 0o644, Size: int64(len(data))}
		if err := w.WriteHeader(hdr); err != nil {
			t.Fatalf("header: %v", err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	path := filepath.Join(t.TempDir(), "lib.a")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	syms, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	checkSampleSymbols(t, syms, "a.o")
	if got := syms[0].Location(); got != path+"(a.o)" {
		t.Fatalf("Location = %q", got)
	}
}

func TestReadFileRejectsOtherInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadFile(path); !errors.Is(err, ErrNotObject) {
		t.Fatalf("expected ErrNotObject, got %v", err)
	}
}

func TestMemberName(t *testing.T) {
	table := []byte("very_long_object_name.o/\nother.o/\n")
	cases := map[string]string{
		"short.o/": "short.o",
		"plain.o":  "plain.o",
		"/0":       "very_long_object_name.o",
		"/25":      "other.o",
		"/999":     "/999",
	}
	for in, want := range cases {
		if got := memberName(in, table); got != want {
			t.Errorf("memberName(%q) = %q, want %q", in, got, want)
		}
	}
}
