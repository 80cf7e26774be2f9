// Package symtab lists the data symbols defined by ELF objects and ar
// archives. It is an audit aid for rewrite results: a variable that still
// lives in .data or .bss after a rewrite was not made thread-local.
package symtab

import (
	"bufio"
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/blakesmith/ar"
)

var archiveMagic = []byte("!<arch>\n")

// ErrNotObject is returned for inputs that are neither ELF nor ar.
var ErrNotObject = errors.New("not an ELF object or ar archive")

// Symbol is one defined data symbol.
type Symbol struct {
	File    string
	Member  string // archive member, "" for plain objects
	Section string // "*COM*" for common symbols
	Name    string
	Size    uint64
	TLS     bool
	Common  bool
}

// Location renders file or file(member).
func (s Symbol) Location() string {
	if s.Member == "" {
		return s.File
	}
	return s.File + "(" + s.Member + ")"
}

func (s Symbol) String() string {
	return fmt.Sprintf("%s: %s: %s", s.Location(), s.Section, s.Name)
}

// ReadFile inspects an object file or an archive. For archives the symbols
// of every readable member are returned together with a joined error for
// the members that could not be read.
func ReadFile(path string) ([]Symbol, error) {
	// #nosec G304 -- path is given by the user
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(len(archiveMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	switch {
	case bytes.Equal(head, archiveMagic):
		return ReadArchive(br, path)
	case bytes.HasPrefix(head, []byte(elf.ELFMAG)):
		return ReadObject(f, path, "")
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrNotObject)
	}
}

// ReadObject lists the defined data symbols of one ELF object.
func ReadObject(r io.ReaderAt, file, member string) ([]Symbol, error) {
	ef, err := elf.NewFile(r)
	if err != nil {
		return nil, err
	}
	defer ef.Close()

	syms, err := ef.Symbols()
	if err != nil {
		if errors.Is(err, elf.ErrNoSymbols) {
			return nil, nil
		}
		return nil, err
	}

	var out []Symbol
	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		typ := elf.ST_TYPE(s.Info)
		if typ == elf.STT_SECTION || typ == elf.STT_FILE || typ == elf.STT_FUNC {
			continue
		}
		sym := Symbol{File: file, Member: member, Name: s.Name, Size: s.Size}
		switch {
		case s.Section == elf.SHN_UNDEF || s.Section == elf.SHN_ABS:
			continue
		case s.Section == elf.SHN_COMMON:
			sym.Section = "*COM*"
			sym.Common = true
		case int(s.Section) < len(ef.Sections):
			sec := ef.Sections[s.Section]
			if !isDataSection(sec) {
				continue
			}
			sym.Section = sec.Name
			sym.TLS = sec.Flags&elf.SHF_TLS != 0 || typ == elf.STT_TLS
		default:
			continue
		}
		out = append(out, sym)
	}
	return out, nil
}

// isDataSection: allocated and writable, which covers .data, .bss, their
// thread-local twins and the named variants compilers emit per symbol.
func isDataSection(sec *elf.Section) bool {
	return sec.Flags&elf.SHF_ALLOC != 0 && sec.Flags&elf.SHF_WRITE != 0 && sec.Flags&elf.SHF_EXECINSTR == 0
}

// ReadArchive lists the data symbols of every ELF member of an ar archive.
// The symbol index and non-ELF members are skipped.
func ReadArchive(r io.Reader, file string) ([]Symbol, error) {
	rd := ar.NewReader(r)
	var (
		out       []Symbol
		errs      []error
		longNames []byte
	)
	for {
		hdr, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			break
		}
		data, err := io.ReadAll(rd)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", file, err))
			break
		}

		name := strings.TrimSpace(hdr.Name)
		switch name {
		case "/", "/SYM64/", "__.SYMDEF", "__.SYMDEF SORTED":
			continue
		case "//":
			longNames = data
			continue
		}
		name = memberName(name, longNames)
		if !bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
			continue
		}
		syms, err := ReadObject(bytes.NewReader(data), file, name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s(%s): %w", file, name, err))
			continue
		}
		out = append(out, syms...)
	}
	return out, errors.Join(errs...)
}

// memberName resolves GNU long names ("/123" into the "//" table) and
// strips the GNU terminator slash.
func memberName(name string, longNames []byte) string {
	if strings.HasPrefix(name, "/") && len(name) > 1 {
		if off, err := strconv.Atoi(name[1:]); err == nil && off >= 0 && off < len(longNames) {
			rest := longNames[off:]
			if end := bytes.IndexByte(rest, '\n'); end >= 0 {
				rest = rest[:end]
			}
			return strings.TrimSuffix(string(rest), "/")
		}
	}
	return strings.TrimSuffix(name, "/")
}
