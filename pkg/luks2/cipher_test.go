// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEncryption(t *testing.T) {
	cipherName, mode, ok := splitEncryption("aes-xts-plain64")
	require.True(t, ok)
	assert.Equal(t, "aes", cipherName)
	assert.Equal(t, "xts-plain64", mode)

	_, _, ok = splitEncryption("no-dash-here-wait-yes-there-is")
	require.True(t, ok)

	_, _, ok = splitEncryption("malformed")
	require.False(t, ok)
}

func TestLookupCipher(t *testing.T) {
	_, err := lookupCipher("aes")
	require.NoError(t, err)

	_, err = lookupCipher("CAMELLIA")
	require.NoError(t, err, "cipher names are matched case-insensitively")

	_, err = lookupCipher("serpent")
	require.ErrorIs(t, err, ErrBadArgument)
}

func TestDecryptSectors_RejectsNonMultipleOfSectorSize(t *testing.T) {
	xc, err := xtsCipher("aes-xts-plain64", make([]byte, 32))
	require.NoError(t, err)

	err = decryptSectors(xc, make([]byte, 600), 512, 0)
	require.ErrorIs(t, err, ErrBadArgument)
}

func TestXtsCipher_EncryptDecryptRoundTrip(t *testing.T) {
	key := bytes32(0x03)
	xc, err := xtsCipher("aes-xts-plain64", key)
	require.NoError(t, err)

	plaintext := make([]byte, 512)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	ciphertext := make([]byte, 512)
	xc.Encrypt(ciphertext, plaintext, 7)

	decrypted := make([]byte, 512)
	copy(decrypted, ciphertext)
	require.NoError(t, decryptSectors(xc, decrypted, 512, 7))
	require.Equal(t, plaintext, decrypted)
}
