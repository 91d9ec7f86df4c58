// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// readBinaryHeaderAt reads and byte-decodes one fixed 4096-byte header copy
// at the given offset (§3: big-endian multi-byte fields).
func readBinaryHeaderAt(src io.ReaderAt, offset int64) (*BinaryHeader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := src.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("%w: reading header at offset %d: %v", ErrIo, offset, err)
	}

	var hdr BinaryHeader
	if err := binary.Read(bytes.NewReader(buf), binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("%w: decoding header: %v", ErrIo, err)
	}
	return &hdr, nil
}

func validHeader(hdr *BinaryHeader, magic string) bool {
	return bytes.Equal(hdr.Magic[:], []byte(magic)) && hdr.Version == Version
}

// SelectHeader implements §4.A: read both header copies, validate each,
// and pick the authoritative one by seqid (ties resolve to primary).
//
// matched is false (with err nil) exactly when check_uuid was supplied and
// did not match — the probe-path "no match" outcome, distinct from a hard
// failure.
func SelectHeader(src io.ReaderAt, checkBoot bool, checkUUID string) (hdr *BinaryHeader, offset uint64, matched bool, err error) {
	primary, err := readBinaryHeaderAt(src, 0)
	if err != nil {
		return nil, 0, false, err
	}
	if !validHeader(primary, PrimaryMagic) {
		return nil, 0, false, fmt.Errorf("%w: primary header magic/version invalid", ErrBadSignature)
	}

	secondary, err := readBinaryHeaderAt(src, int64(primary.HeaderSize))
	if err != nil {
		return nil, 0, false, err
	}
	if !validHeader(secondary, SecondaryMagic) {
		return nil, 0, false, fmt.Errorf("%w: secondary header magic/version invalid", ErrBadSignature)
	}

	selected := primary
	selectedOffset := uint64(0)
	if secondary.SequenceID > primary.SequenceID {
		selected = secondary
		selectedOffset = primary.HeaderSize
	}

	if checkBoot {
		return nil, 0, false, fmt.Errorf("%w: boot-mode unlock is not supported by this core", ErrBadArgument)
	}

	if checkUUID != "" {
		want, err := uuid.Parse(checkUUID)
		if err != nil {
			return nil, 0, false, fmt.Errorf("%w: check_uuid %q is not a UUID: %v", ErrBadArgument, checkUUID, err)
		}
		if headerUUID(selected) != want {
			return nil, 0, false, nil
		}
	}

	return selected, selectedOffset, true, nil
}

// headerUUID parses the header's NUL-padded ASCII UUID field, returning the
// zero UUID for a header that carries none (legitimate on freshly formatted
// volumes that predate this check, never on a bootable LUKS2 volume).
func headerUUID(hdr *BinaryHeader) uuid.UUID {
	raw := string(bytes.TrimRight(hdr.UUID[:], "\x00"))
	if raw == "" {
		return uuid.UUID{}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}
	}
	return id
}

// readJSONMetadataText reads the null-terminated JSON area immediately
// following a selected header copy (§3, §4.F step 1).
func readJSONMetadataText(src io.ReaderAt, hdr *BinaryHeader, headerOffset uint64) ([]byte, error) {
	if hdr.HeaderSize <= HeaderSize {
		return nil, fmt.Errorf("%w: hdr_size %d does not exceed fixed header size", ErrBadArgument, hdr.HeaderSize)
	}
	jsonLen := hdr.HeaderSize - HeaderSize

	buf := make([]byte, jsonLen)
	if _, err := src.ReadAt(buf, int64(headerOffset)+HeaderSize); err != nil {
		return nil, fmt.Errorf("%w: reading JSON metadata: %v", ErrIo, err)
	}

	nul := bytes.IndexByte(buf, 0)
	if nul == -1 {
		return nil, fmt.Errorf("%w: JSON metadata is not NUL-terminated", ErrBadArgument)
	}
	return buf[:nul], nil
}

// VolumeInfoFromHeader extracts diagnostic fields from a selected header
// copy, without touching keyslots/digests.
func VolumeInfoFromHeader(hdr *BinaryHeader, offset uint64) *VolumeInfo {
	id := headerUUID(hdr)
	return &VolumeInfo{
		UUID:       id.String(),
		Label:      string(bytes.TrimRight(hdr.Label[:], "\x00")),
		Version:    int(hdr.Version),
		SequenceID: hdr.SequenceID,
		HeaderSize: hdr.HeaderSize,
		Offset:     offset,
	}
}
