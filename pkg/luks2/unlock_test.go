// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeTotalSectors_DynamicSegment(t *testing.T) {
	// Scenario 6: 20 MiB device, segment.offset = 16 MiB, sector_size = 512,
	// source log_sector_size = 9. Expect offset_sectors = 32768,
	// log_sector_size = 9, total_sectors = 8192.
	const (
		deviceSizeBytes = 20 * 1024 * 1024
		segmentOffset   = 16 * 1024 * 1024
	)

	device := make([]byte, deviceSizeBytes)
	f := newFakeReaderAtFile(t, device)
	defer f.cleanup()

	file := openForTest(t, f.path)
	defer func() { _ = file.Close() }()

	segment := &Segment{
		Offset:        segmentOffset,
		Dynamic:       true,
		SectorSize:    512,
		LogSectorSize: 9,
	}
	offsetSectors := segment.Offset / int64(segment.SectorSize)
	require.EqualValues(t, 32768, offsetSectors)

	total, err := computeTotalSectors(segment, file, offsetSectors)
	require.NoError(t, err)
	require.EqualValues(t, 8192, total)
}

func TestComputeTotalSectors_FixedSegment(t *testing.T) {
	segment := &Segment{SizeRaw: "1048576", LogSectorSize: 9}
	total, err := computeTotalSectors(segment, nil, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2048, total)
}

func TestComputeTotalSectors_NonNumericSizeIsBadArgument(t *testing.T) {
	segment := &Segment{SizeRaw: "not-a-number", LogSectorSize: 9}
	_, err := computeTotalSectors(segment, nil, 0)
	require.ErrorIs(t, err, ErrBadArgument)
}

func TestPassphraseSource_KeyFileVerbatimIncludingNUL(t *testing.T) {
	raw := []byte{'a', 'b', 0x00, 'c'}
	src := PassphraseSource{KeyFile: raw}

	got, err := src.resolve()
	require.NoError(t, err)
	require.Equal(t, raw, got, "key-file passphrases keep embedded NUL bytes verbatim")
}

func TestPassphraseSource_PromptTruncatesAtNUL(t *testing.T) {
	src := PassphraseSource{
		Prompt: func() ([]byte, error) {
			return []byte{'a', 'b', 0x00, 'c', 'd'}, nil
		},
	}

	got, err := src.resolve()
	require.NoError(t, err)
	require.Equal(t, []byte{'a', 'b'}, got, "terminal passphrases truncate at the first NUL like a C string")
}

func TestPassphraseSource_PromptCapsAtMaxLength(t *testing.T) {
	long := bytes.Repeat([]byte{'x'}, MaxPassphraseLength+10)
	src := PassphraseSource{
		Prompt: func() ([]byte, error) { return long, nil },
	}

	got, err := src.resolve()
	require.NoError(t, err)
	require.Len(t, got, MaxPassphraseLength)
}

// buildUnlockDevice lays out a full header+metadata+keyslot-area device for
// RecoverKey-level tests.
func buildUnlockDevice(t *testing.T, keyslotsJSON, segmentsJSON, digestsJSON string, areas map[int64][]byte) []byte {
	t.Helper()

	jsonText := `{"keyslots":` + keyslotsJSON + `,"segments":` + segmentsJSON + `,"digests":` + digestsJSON + `}`
	device := buildDevice(t, 10, 9, "unlock-test-uuid", jsonText)

	maxOffset := int64(len(device))
	for offset, area := range areas {
		if offset+int64(len(area)) > maxOffset {
			maxOffset = offset + int64(len(area))
		}
	}
	if maxOffset > int64(len(device)) {
		grown := make([]byte, maxOffset)
		copy(grown, device)
		device = grown
	}
	for offset, area := range areas {
		copy(device[offset:], area)
	}
	return device
}

func TestRecoverKey_WrongPassphraseExhaustsToAccessDenied(t *testing.T) {
	passphrase := []byte("the real passphrase")
	masterKey := bytes32(0x21)

	keyslot, area := keyslotAreaFixture(t, passphrase, masterKey, KDFPbkdf2)
	digest := makeDigestFixture(t, masterKey)

	keyslot.Area.Offset += 2 * testHdrSize
	keyslotsJSON := keyslotJSON(keyslot)
	segmentsJSON := `{"0":{"type":"crypt","offset":"0","size":"512","encryption":"aes-xts-plain64","sector_size":512}}`
	digestsJSON := digestJSON(digest, []int{0}, []int{0})

	device := buildUnlockDevice(t, keyslotsJSON, segmentsJSON, digestsJSON, map[int64][]byte{
		keyslot.Area.Offset: area,
	})

	f := newFakeReaderAtFile(t, device)
	defer f.cleanup()

	opts := UnlockOptions{Device: f.path, MappedName: "test-map"}
	src := PassphraseSource{KeyFile: []byte("definitely wrong")}

	var out bytes.Buffer
	_, err := RecoverKey(opts, src, &out)
	require.ErrorIs(t, err, ErrAccessDenied)
	require.ErrorIs(t, err, ErrInvalidPassphrase)
}

func TestRecoverKey_AllPriorityZeroSkipsEveryKeyslot(t *testing.T) {
	passphrase := []byte("irrelevant, priority 0 never tries the kdf")
	masterKey := bytes32(0x77)

	keyslot, area := keyslotAreaFixture(t, passphrase, masterKey, KDFPbkdf2)
	keyslot.Priority = 0
	keyslot.Area.Offset += 2 * testHdrSize
	digest := makeDigestFixture(t, masterKey)

	keyslotsJSON := keyslotJSON(keyslot)
	segmentsJSON := `{"0":{"type":"crypt","offset":"0","size":"512","encryption":"aes-xts-plain64","sector_size":512}}`
	digestsJSON := digestJSON(digest, []int{0}, []int{0})

	device := buildUnlockDevice(t, keyslotsJSON, segmentsJSON, digestsJSON, map[int64][]byte{
		keyslot.Area.Offset: area,
	})

	f := newFakeReaderAtFile(t, device)
	defer f.cleanup()

	opts := UnlockOptions{Device: f.path, MappedName: "test-map"}
	src := PassphraseSource{KeyFile: passphrase}

	var out bytes.Buffer
	_, err := RecoverKey(opts, src, &out)
	require.ErrorIs(t, err, ErrAccessDenied, "a priority-0 slot must never open, even with the correct passphrase")
}
