package buildid_test

import (
	"testing"

	"github.com/storacha/ddebsyms/pkg/ddebs/buildid"
	"github.com/storacha/ddebsyms/pkg/ddebs/types"
	"github.com/stretchr/testify/require"
)

const raw = "99c2106c44189e354e1826aa285a0ccf7cbdf726"

func TestNormalize(t *testing.T) {
	t.Run("permutes the GUID groups, upper-cases and appends the age", func(t *testing.T) {
		got, err := buildid.Normalize(raw)
		require.NoError(t, err)
		require.Equal(t, "6C10C2991844359E4E1826AA285A0CCF0", got)
		require.Len(t, got, buildid.NormalizedLen)
	})

	t.Run("is deterministic", func(t *testing.T) {
		a, err := buildid.Normalize(raw)
		require.NoError(t, err)
		b, err := buildid.Normalize(raw)
		require.NoError(t, err)
		require.Equal(t, a, b)
	})

	t.Run("ignores input case", func(t *testing.T) {
		upper, err := buildid.Normalize("99C2106C44189E354E1826AA285A0CCF7CBDF726")
		require.NoError(t, err)
		lower, err := buildid.Normalize(raw)
		require.NoError(t, err)
		require.Equal(t, lower, upper)
	})

	t.Run("rejects malformed IDs", func(t *testing.T) {
		for _, bad := range []string{"", "abc", raw[:39], raw + "00", "zz" + raw[2:]} {
			_, err := buildid.Normalize(bad)
			require.ErrorAs(t, err, &types.ErrInvalidBuildID{}, bad)
		}
	})
}

func TestCanonical(t *testing.T) {
	t.Run("maps raw and normalized forms to the same key", func(t *testing.T) {
		fromRaw, err := buildid.Canonical(raw)
		require.NoError(t, err)
		fromNormalized, err := buildid.Canonical("6c10c2991844359e4e1826aa285a0ccf0")
		require.NoError(t, err)
		require.Equal(t, fromRaw, fromNormalized)
	})

	t.Run("rejects other lengths", func(t *testing.T) {
		_, err := buildid.Canonical("6C10C2991844359E")
		require.Error(t, err)
	})

	t.Run("rejects non-hex normalized identifiers", func(t *testing.T) {
		_, err := buildid.Canonical("6C10C2991844359E4E1826AA285A0CCFX")
		require.Error(t, err)
	})
}
