// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAFSplitMerge_RoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		hash    string
		stripes int
		key     []byte
	}{
		{"sha256-4stripes", "sha256", 4, bytes32(0x11)},
		{"sha512-4000stripes-small-key", "sha512", 4000, []byte{1, 2, 3, 4}},
		{"whirlpool-7stripes", "whirlpool", 7, bytes32(0x42)},
		{"sha256-1stripe", "sha256", 1, bytes32(0x7f)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			split, err := AFSplit(tc.key, tc.stripes, tc.hash)
			require.NoError(t, err)
			require.Len(t, split, tc.stripes*len(tc.key))

			merged, err := AFMerge(split, tc.stripes, len(tc.key), tc.hash)
			require.NoError(t, err)
			require.Equal(t, tc.key, merged)
		})
	}
}

func TestAFMerge_WrongLengthIsBadArgument(t *testing.T) {
	_, err := AFMerge(make([]byte, 10), 4, 32, "sha256")
	require.ErrorIs(t, err, ErrBadArgument)
}

func TestAFMerge_UnknownHashIsNotFound(t *testing.T) {
	_, err := AFMerge(make([]byte, 128), 4, 32, "md5-does-not-exist")
	require.ErrorIs(t, err, ErrNotFound)
}

func bytes32(b byte) []byte {
	out := make([]byte, 32)
	for i := range out {
		out[i] = b ^ byte(i)
	}
	return out
}
