// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// fakeReaderAtFile is a regular file standing in for a block device so
// ValidateDevicePath's device-or-regular-file check is satisfied.
type fakeReaderAtFile struct {
	path string
}

func (f *fakeReaderAtFile) cleanup() {
	_ = os.Remove(f.path)
}

func newFakeReaderAtFile(t *testing.T, data []byte) *fakeReaderAtFile {
	t.Helper()

	path := filepath.Join(t.TempDir(), "device.img")
	require := func(err error) {
		if err != nil {
			t.Fatalf("writing fixture device: %v", err)
		}
	}
	require(os.WriteFile(path, data, 0o600))

	return &fakeReaderAtFile{path: path}
}

func openForTest(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path) // #nosec G304 -- test fixture path
	if err != nil {
		t.Fatalf("opening fixture device: %v", err)
	}
	return f
}

// keyslotJSON renders one metadata.keyslots child matching ks, for a
// JSON document containing exactly one keyslot at key "0".
func keyslotJSON(ks *Keyslot) string {
	var kdf string
	switch ks.KDF.Kind {
	case KDFArgon2i, KDFArgon2id:
		typ := "argon2i"
		if ks.KDF.Kind == KDFArgon2id {
			typ = "argon2id"
		}
		kdf = fmt.Sprintf(`{"type":%q,"time":%d,"memory":%d,"cpus":%d,"salt":%q}`,
			typ, ks.KDF.Time, ks.KDF.Memory, ks.KDF.CPUs, ks.KDF.Salt)
	default:
		kdf = fmt.Sprintf(`{"type":"pbkdf2","hash":%q,"iterations":%d,"salt":%q}`,
			ks.KDF.Hash, ks.KDF.Iterations, ks.KDF.Salt)
	}

	return fmt.Sprintf(`{"0":{"type":"luks2","key_size":%d,"priority":%d,
		"area":{"type":"raw","offset":%d,"size":%d,"encryption":%q,"key_size":%d},
		"kdf":%s,
		"af":{"type":"luks1","stripes":%d,"hash":%q}}}`,
		ks.KeySize, ks.Priority,
		ks.Area.Offset, ks.Area.Size, ks.Area.Encryption, ks.Area.KeySize,
		kdf,
		ks.AF.Stripes, ks.AF.Hash)
}

// digestJSON renders one metadata.digests child at key "0" referencing the
// given keyslot and segment indices.
func digestJSON(d *Digest, keyslots, segments []int) string {
	return fmt.Sprintf(`{"0":{"type":"pbkdf2","keyslots":%s,"segments":%s,"hash":%q,"iterations":%d,"salt":%q,"digest":%q}}`,
		intArrayJSON(keyslots), intArrayJSON(segments), d.Hash, d.Iterations, d.Salt, d.Digest)
}

func intArrayJSON(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}
