// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"unsafe"

	"golang.org/x/sys/unix"
)

// UnlockOptions configures one RecoverKey/Scan attempt. There is no global
// state: every field the driver needs travels explicitly through this
// struct, matching the teacher's FormatOptions/AddKeyOptions pattern of
// plain option structs.
type UnlockOptions struct {
	// Device is the backing block device or plain file the segment data
	// lives on (and the keyslot areas, when no detached header is set).
	Device string

	// DetachedHeaderPath, if set, is read instead of Device for the binary
	// header, JSON metadata and keyslot areas (a detached-header LUKS2 volume).
	DetachedHeaderPath string

	// MappedName is the device-mapper name to create on success.
	MappedName string
}

// PassphraseSource resolves the credential for one unlock attempt,
// preserving the embedded-NUL asymmetry §9 requires: a key file is used
// verbatim including any NUL bytes; a terminal read is truncated at the
// first NUL and capped at MaxPassphraseLength, mirroring a C string.
type PassphraseSource struct {
	// KeyFile, if non-nil, is used verbatim and takes priority over Prompt.
	KeyFile []byte

	// Prompt performs the actual (out-of-scope) terminal read and returns
	// the raw bytes typed, no-echo, up to the caller's own buffer size.
	Prompt func() ([]byte, error)
}

func (p PassphraseSource) resolve() ([]byte, error) {
	if p.KeyFile != nil {
		return p.KeyFile, nil
	}
	raw, err := p.Prompt()
	if err != nil {
		return nil, fmt.Errorf("%w: reading passphrase: %v", ErrIo, err)
	}
	if len(raw) > MaxPassphraseLength {
		raw = raw[:MaxPassphraseLength]
	}
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return raw, nil
}

// openHeaderSource opens the file the binary header and JSON metadata are
// read from: the detached header file when configured, otherwise the
// backing device itself.
func (o UnlockOptions) openHeaderSource() (*os.File, error) {
	path := o.Device
	if o.DetachedHeaderPath != "" {
		path = o.DetachedHeaderPath
	}
	if err := ValidateDevicePath(path); err != nil {
		return nil, err
	}
	f, err := os.Open(path) // #nosec G304 -- path validated above
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIo, err)
	}
	return f, nil
}

// RecoverKey is recover_key (§4.F): orchestrate header selection, metadata
// parsing, keyslot enumeration, and downstream device programming. On
// success it returns the index of the keyslot that opened and writes the
// §6 success message to out.
func RecoverKey(opts UnlockOptions, passphrase PassphraseSource, out io.Writer) (int, error) {
	headerSrc, err := opts.openHeaderSource()
	if err != nil {
		return 0, err
	}
	defer func() { _ = headerSrc.Close() }()

	hdr, headerOffset, matched, err := SelectHeader(headerSrc, false, "")
	if err != nil {
		return 0, err
	}
	if !matched {
		return 0, fmt.Errorf("%w: header probe did not match", ErrNotFound)
	}
	debugLog.Debugf("selected header at offset %d, seqid %d", headerOffset, hdr.SequenceID)

	jsonText, err := readJSONMetadataText(headerSrc, hdr, headerOffset)
	if err != nil {
		return 0, err
	}
	meta, err := parseMetadata(jsonText)
	if err != nil {
		return 0, err
	}

	pass, err := passphrase.resolve()
	if err != nil {
		return 0, err
	}
	defer clearBytes(pass)

	if opts.DetachedHeaderPath != "" {
		if err := ValidateDevicePath(opts.Device); err != nil {
			return 0, err
		}
	}
	dataSrc, err := os.Open(opts.Device) // #nosec G304 -- validated by openHeaderSource or below
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIo, err)
	}
	defer func() { _ = dataSrc.Close() }()

	volumeUUID := headerUUID(hdr).String()
	n := meta.KeyslotCount()

	for i := 0; i < n; i++ {
		keyslot, digest, segment, err := resolveKeyslot(meta, i)
		if err != nil {
			debugLog.Debugf("slot %d: bind failed, skipping: %v", i, err)
			continue
		}
		if keyslot.Priority == 0 {
			debugLog.Debugf("slot %d: priority 0, skipping", keyslot.ID)
			continue
		}

		offsetSectors := segment.Offset / int64(segment.SectorSize)
		totalSectors, err := computeTotalSectors(segment, dataSrc, offsetSectors)
		if err != nil {
			debugLog.Debugf("slot %d: segment sizing failed, skipping: %v", keyslot.ID, err)
			continue
		}

		disk := newSoftwareDisk()
		masterKey, err := decryptKey(keyslot, pass, disk, headerSrc)
		if err != nil {
			debugLog.Debugf("slot %d: kdf/decrypt failed, skipping: %v", keyslot.ID, err)
			continue
		}

		if err := verifyKey(digest, masterKey); err != nil {
			clearBytes(masterKey)
			debugLog.Debugf("slot %d: digest mismatch, skipping", keyslot.ID)
			continue
		}

		fmt.Fprintf(out, "Slot %d opened\n", keyslot.ID)

		descr := Descriptor{
			UUID:          volumeUUID,
			OffsetSectors: uint64(offsetSectors),
			LogSectorSize: segment.LogSectorSize,
			TotalSectors:  totalSectors,
		}
		dm := NewDMCryptDisk(opts.Device, uint64(offsetSectors), descr)
		cipherName, modeWithIV, ok := splitEncryption(segment.Encryption)
		if !ok {
			clearBytes(masterKey)
			return 0, fmt.Errorf("%w: malformed segment encryption %q", ErrBadArgument, segment.Encryption)
		}
		if err := dm.SetCipher(cipherName, modeWithIV); err != nil {
			clearBytes(masterKey)
			return 0, err
		}
		if err := dm.SetKey(masterKey); err != nil {
			clearBytes(masterKey)
			return 0, err
		}
		if err := dm.Create(opts.MappedName); err != nil {
			clearBytes(masterKey)
			return 0, err
		}
		clearBytes(masterKey)

		return keyslot.ID, nil
	}

	return 0, fmt.Errorf("%w: %v", ErrAccessDenied, ErrInvalidPassphrase)
}

// computeTotalSectors is §4.F step 5.
func computeTotalSectors(segment *Segment, dataSrc *os.File, offsetSectors int64) (uint64, error) {
	if segment.Dynamic {
		deviceSize, err := deviceSize(dataSrc)
		if err != nil {
			return 0, err
		}
		return uint64(deviceSize)>>segment.LogSectorSize - uint64(offsetSectors), nil
	}

	sizeBytes, err := strconv.ParseInt(segment.SizeRaw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: segment size %q is not numeric", ErrBadArgument, segment.SizeRaw)
	}
	return uint64(sizeBytes) >> segment.LogSectorSize, nil
}

// deviceSize returns the size in bytes of a block device (via the
// BLKGETSIZE64 ioctl) or a regular file (via stat), matching the teacher's
// getBlockDeviceSize.
func deviceSize(f *os.File) (int64, error) {
	var size int64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size))) // #nosec G103 -- ioctl requires unsafe.Pointer
	if errno == 0 {
		return size, nil
	}

	stat, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIo, err)
	}
	return stat.Size(), nil
}

// Scan is the probe-path registered backend method (§4.A step 4-5, §4.F.2,
// §7: "scan() converts errors to 'no match' and clears the error channel").
// It never returns an error; a false result means "not this device" for
// any reason at all.
func Scan(opts UnlockOptions, checkUUID string) bool {
	headerSrc, err := opts.openHeaderSource()
	if err != nil {
		return false
	}
	defer func() { _ = headerSrc.Close() }()

	_, _, matched, err := SelectHeader(headerSrc, false, checkUUID)
	if err != nil || !matched {
		return false
	}
	return true
}
