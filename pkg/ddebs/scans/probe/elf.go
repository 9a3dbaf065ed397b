// Package probe reads build IDs out of ELF files.
package probe

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
)

// ntGNUBuildID is the note type of a GNU build ID note.
const ntGNUBuildID = 3

var elfMagic = []byte(elf.ELFMAG)

// ELF reports the GNU build ID of ELF files. Files that are not ELF, and ELF
// files without a 20 byte build ID, report no identifier.
type ELF struct{}

// Probe returns the hex build ID of the named file, or "" if it has none. An
// error means the file looked like ELF but could not be read.
func (ELF) Probe(fsys fs.FS, name string) (string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		// Shorter than an ELF header, so not a binary.
		return "", nil
	}
	if !bytes.Equal(magic[:], elfMagic) {
		return "", nil
	}

	ra, err := readerAt(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	ef, err := elf.NewFile(ra)
	if err != nil {
		return "", fmt.Errorf("parsing ELF %s: %w", name, err)
	}
	defer ef.Close()

	id, err := buildID(ef)
	if err != nil {
		return "", fmt.Errorf("reading notes of %s: %w", name, err)
	}
	if len(id) != 20 {
		return "", nil
	}
	return hex.EncodeToString(id), nil
}

func readerAt(f fs.File) (io.ReaderAt, error) {
	if ra, ok := f.(io.ReaderAt); ok {
		return ra, nil
	}
	if s, ok := f.(io.Seeker); ok {
		if _, err := s.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		b, err := io.ReadAll(f)
		return bytes.NewReader(b), err
	}
	return nil, fmt.Errorf("file is neither seekable nor random access")
}

func buildID(f *elf.File) ([]byte, error) {
	if s := f.Section(".note.gnu.build-id"); s != nil {
		data, err := s.Data()
		if err != nil {
			return nil, err
		}
		if id := findBuildID(data, f.ByteOrder); id != nil {
			return id, nil
		}
	}
	for _, s := range f.Sections {
		if s.Type != elf.SHT_NOTE {
			continue
		}
		data, err := s.Data()
		if err != nil {
			return nil, err
		}
		if id := findBuildID(data, f.ByteOrder); id != nil {
			return id, nil
		}
	}
	// Section headers can be stripped; the note segment survives.
	for _, p := range f.Progs {
		if p.Type != elf.PT_NOTE {
			continue
		}
		data, err := io.ReadAll(p.Open())
		if err != nil {
			return nil, err
		}
		if id := findBuildID(data, f.ByteOrder); id != nil {
			return id, nil
		}
	}
	return nil, nil
}

// findBuildID walks a note section looking for the GNU build ID note.
func findBuildID(data []byte, order binary.ByteOrder) []byte {
	for len(data) >= 12 {
		namesz := uint64(order.Uint32(data[0:4]))
		descsz := uint64(order.Uint32(data[4:8]))
		typ := order.Uint32(data[8:12])
		data = data[12:]

		nameEnd := align4(namesz)
		if nameEnd > uint64(len(data)) {
			return nil
		}
		name := data[:namesz]
		data = data[nameEnd:]

		if descsz > uint64(len(data)) {
			return nil
		}
		desc := data[:descsz]
		data = data[min(align4(descsz), uint64(len(data))):]

		if typ == ntGNUBuildID && string(name) == "GNU\x00" {
			return desc
		}
	}
	return nil
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}
