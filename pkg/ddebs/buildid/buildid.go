// Package buildid validates GNU build IDs and converts them to the form crash
// reporters use as a module's debug identifier.
//
// Crash reporters store the first 16 bytes of the build ID in a GUID struct, so
// the first three groups (4, 2 and 2 bytes) come out byte-swapped, and an age
// nibble of 0 is appended. The conversion is lossy: bytes past the 16th are
// dropped.
package buildid

import (
	"encoding/hex"
	"slices"
	"strings"

	"github.com/storacha/ddebsyms/pkg/ddebs/types"
)

const (
	// RawLen is the length of a hex-encoded SHA-1 build ID as printed by
	// readelf.
	RawLen = 40
	// NormalizedLen is the length of a normalized debug identifier.
	NormalizedLen = 33
)

// Valid reports whether raw is a 40 character hexadecimal build ID.
func Valid(raw string) bool {
	if len(raw) != RawLen {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}

// Normalize converts a raw build ID into its debug identifier form.
func Normalize(raw string) (string, error) {
	if !Valid(raw) {
		return "", types.ErrInvalidBuildID{ID: raw}
	}
	b, _ := hex.DecodeString(raw)

	guid := make([]byte, 0, 16)
	guid = append(guid, reversed(b[0:4])...)
	guid = append(guid, reversed(b[4:6])...)
	guid = append(guid, reversed(b[6:8])...)
	guid = append(guid, b[8:16]...)

	return strings.ToUpper(hex.EncodeToString(guid)) + "0", nil
}

// Canonical maps either representation of an identifier to the normalized
// form, which is the key of the build ID index. Raw build IDs are normalized;
// already-normalized identifiers are upper-cased.
func Canonical(id string) (string, error) {
	switch len(id) {
	case RawLen:
		return Normalize(id)
	case NormalizedLen:
		if _, err := hex.DecodeString(id[:NormalizedLen-1]); err != nil || !isHexDigit(id[NormalizedLen-1]) {
			return "", types.ErrInvalidBuildID{ID: id}
		}
		return strings.ToUpper(id), nil
	default:
		return "", types.ErrInvalidBuildID{ID: id}
	}
}

func reversed(b []byte) []byte {
	out := slices.Clone(b)
	slices.Reverse(out)
	return out
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}
