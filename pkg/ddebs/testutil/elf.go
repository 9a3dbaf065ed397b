package testutil

import (
	"encoding/binary"
	"encoding/hex"
)

// ELFWithBuildID returns the bytes of a minimal little-endian ELF64 shared
// object whose only content is a .note.gnu.build-id section carrying the given
// hex build ID.
func ELFWithBuildID(id string) []byte {
	desc, err := hex.DecodeString(id)
	if err != nil {
		panic(err)
	}
	le := binary.LittleEndian

	note := make([]byte, 0, 16+len(desc))
	note = le.AppendUint32(note, 4)
	note = le.AppendUint32(note, uint32(len(desc)))
	note = le.AppendUint32(note, 3) // NT_GNU_BUILD_ID
	note = append(note, "GNU\x00"...)
	note = append(note, desc...)
	for len(note)%4 != 0 {
		note = append(note, 0)
	}

	shstrtab := []byte("\x00.note.gnu.build-id\x00.shstrtab\x00")

	const ehsize, shentsize = 64, 64
	noteOff := uint64(ehsize)
	strOff := noteOff + uint64(len(note))
	shOff := (strOff + uint64(len(shstrtab)) + 7) &^ 7

	out := make([]byte, 0, shOff+3*shentsize)
	// e_ident
	out = append(out, 0x7f, 'E', 'L', 'F', 2 /* 64-bit */, 1 /* LE */, 1 /* version */, 0)
	out = append(out, make([]byte, 8)...)
	out = le.AppendUint16(out, 3)  // ET_DYN
	out = le.AppendUint16(out, 62) // EM_X86_64
	out = le.AppendUint32(out, 1)  // EV_CURRENT
	out = le.AppendUint64(out, 0)  // e_entry
	out = le.AppendUint64(out, 0)  // e_phoff
	out = le.AppendUint64(out, shOff)
	out = le.AppendUint32(out, 0) // e_flags
	out = le.AppendUint16(out, ehsize)
	out = le.AppendUint16(out, 56) // e_phentsize
	out = le.AppendUint16(out, 0)  // e_phnum
	out = le.AppendUint16(out, shentsize)
	out = le.AppendUint16(out, 3) // e_shnum
	out = le.AppendUint16(out, 2) // e_shstrndx

	out = append(out, note...)
	out = append(out, shstrtab...)
	for uint64(len(out)) < shOff {
		out = append(out, 0)
	}

	section := func(name, typ uint32, off, size, align uint64) {
		out = le.AppendUint32(out, name)
		out = le.AppendUint32(out, typ)
		out = le.AppendUint64(out, 0) // sh_flags
		out = le.AppendUint64(out, 0) // sh_addr
		out = le.AppendUint64(out, off)
		out = le.AppendUint64(out, size)
		out = le.AppendUint32(out, 0) // sh_link
		out = le.AppendUint32(out, 0) // sh_info
		out = le.AppendUint64(out, align)
		out = le.AppendUint64(out, 0) // sh_entsize
	}
	section(0, 0, 0, 0, 0)
	section(1, 7 /* SHT_NOTE */, noteOff, uint64(len(note)), 4)
	section(20, 3 /* SHT_STRTAB */, strOff, uint64(len(shstrtab)), 1)
	return out
}
