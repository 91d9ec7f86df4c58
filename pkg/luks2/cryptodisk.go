// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"fmt"
	"strings"

	"github.com/anatol/devmapper.go"
)

// Descriptor mirrors the cryptodisk framework's struct fields named in §6:
// uuid, modname, offset_sectors, log_sector_size, total_sectors.
type Descriptor struct {
	UUID          string
	ModName       string
	OffsetSectors uint64
	LogSectorSize uint
	TotalSectors  uint64
}

// CryptoDisk is the narrow interface the core consumes from the enclosing
// cryptodisk framework (§1 out-of-scope, §6 external interfaces): set the
// cipher, set the key, and (for the in-memory keyslot-area step of §4.E)
// decrypt sectors through it.
type CryptoDisk interface {
	SetCipher(cipherName, modeWithIV string) error
	SetKey(key []byte) error
	Decrypt(buf []byte, startSector uint64, logSectorSize uint) error
	Descriptor() *Descriptor
}

// softwareDisk is a pure-software CryptoDisk used to decrypt the keyslot
// area in-process (§4.E step 6); it never touches a kernel device and is
// also the double the unit test suite uses in place of real device-mapper.
type softwareDisk struct {
	descr      Descriptor
	cipherName string
	key        []byte
}

func newSoftwareDisk() *softwareDisk {
	return &softwareDisk{}
}

func (d *softwareDisk) SetCipher(cipherName, modeWithIV string) error {
	d.cipherName = cipherName
	d.descr.ModName = cipherName + "-" + modeWithIV
	return nil
}

func (d *softwareDisk) SetKey(key []byte) error {
	d.key = key
	return nil
}

func (d *softwareDisk) Decrypt(buf []byte, startSector uint64, logSectorSize uint) error {
	xc, err := xtsCipher(d.descr.ModName, d.key)
	if err != nil {
		return err
	}
	return decryptSectors(xc, buf, 1<<logSectorSize, startSector)
}

func (d *softwareDisk) Descriptor() *Descriptor {
	return &d.descr
}

// DMCryptDisk is the real downstream decrypting block device: a Linux
// device-mapper "crypt" target, created and loaded via
// github.com/anatol/devmapper.go once the master key has been recovered
// and verified. It satisfies CryptoDisk so the unlock driver programs it
// with the same SetCipher/SetKey calls named in §4.F step 7; Decrypt is
// never called on it because the kernel decrypts transparently once the
// mapping is loaded.
type DMCryptDisk struct {
	descr         Descriptor
	cipherName    string
	modeWithIV    string
	key           []byte
	backendDevice string
	backendOffset uint64
}

// NewDMCryptDisk prepares a descriptor for a downstream device backed by
// backendDevice, covering the sector range the unlock driver computed in
// §4.F step 5; the mapping's name is given later, to Create.
func NewDMCryptDisk(backendDevice string, backendOffsetSectors uint64, descr Descriptor) *DMCryptDisk {
	return &DMCryptDisk{
		descr:         descr,
		backendDevice: backendDevice,
		backendOffset: backendOffsetSectors,
	}
}

func (d *DMCryptDisk) SetCipher(cipherName, modeWithIV string) error {
	d.cipherName = cipherName
	d.modeWithIV = modeWithIV
	return nil
}

func (d *DMCryptDisk) SetKey(key []byte) error {
	d.key = key
	return nil
}

func (d *DMCryptDisk) Decrypt([]byte, uint64, uint) error {
	return fmt.Errorf("%w: DMCryptDisk decrypts transparently in-kernel once loaded", ErrBadArgument)
}

func (d *DMCryptDisk) Descriptor() *Descriptor {
	return &d.descr
}

// Create installs the device-mapper mapping, completing §4.F step 7 and
// giving the caller a transparently-decrypting block device at
// /dev/mapper/<name>.
func (d *DMCryptDisk) Create(name string) error {
	if d.cipherName == "" || len(d.key) == 0 {
		return fmt.Errorf("%w: cipher and key must be set before Create", ErrBadArgument)
	}

	table := devmapper.CryptTable{
		Start:         0,
		Length:        d.descr.TotalSectors * (1 << d.descr.LogSectorSize),
		BackendDevice: d.backendDevice,
		BackendOffset: d.backendOffset * (1 << d.descr.LogSectorSize),
		Encryption:    d.cipherName + "-" + d.modeWithIV,
		Key:           d.key,
		SectorSize:    1 << d.descr.LogSectorSize,
	}

	uuid := fmt.Sprintf("CRYPT-LUKS2-%s-%s", strings.ReplaceAll(d.descr.UUID, "-", ""), name)
	if err := devmapper.CreateAndLoad(name, uuid, 0, table); err != nil {
		return fmt.Errorf("%w: device-mapper create failed: %v", ErrIo, err)
	}
	return nil
}
