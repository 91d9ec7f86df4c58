// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const keyslotAreaSectorSize = 512

func decodeBase64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrBadArgument, err)
	}
	return b, nil
}

// decodeBase64Into is base64 decode with the destination-capacity check
// §8 names explicitly ("Base64 decode rejects strings whose decoded length
// exceeds the destination buffer").
func decodeBase64Into(s string, maxLen int) ([]byte, error) {
	b, err := decodeBase64(s)
	if err != nil {
		return nil, err
	}
	if len(b) > maxLen {
		return nil, fmt.Errorf("%w: decoded length %d exceeds buffer of %d", ErrBadArgument, len(b), maxLen)
	}
	return b, nil
}

// decryptKey is decrypt_key (§4.E): derive the area key, decrypt the
// keyslot area, anti-forensic-merge it, and return the candidate master
// key. src is the backing device or detached header file.
func decryptKey(keyslot *Keyslot, passphrase []byte, disk CryptoDisk, src io.ReaderAt) ([]byte, error) {
	salt, err := decodeBase64(keyslot.KDF.Salt)
	if err != nil {
		return nil, err
	}

	switch keyslot.KDF.Kind {
	case KDFArgon2i, KDFArgon2id:
		return nil, fmt.Errorf("%w", ErrArgon2Unsupported)
	case KDFPbkdf2:
		// fall through
	default:
		return nil, fmt.Errorf("%w: unknown kdf kind", ErrBadArgument)
	}

	hashFunc, err := lookupHash(keyslot.KDF.Hash)
	if err != nil {
		return nil, err
	}
	areaKey := pbkdf2.Key(passphrase, salt, keyslot.KDF.Iterations, keyslot.Area.KeySize, hashFunc)
	defer clearBytes(areaKey)

	cipherName, modeWithIV, ok := splitEncryption(keyslot.Area.Encryption)
	if !ok {
		return nil, fmt.Errorf("%w: malformed area encryption %q", ErrBadArgument, keyslot.Area.Encryption)
	}
	if err := disk.SetCipher(cipherName, modeWithIV); err != nil {
		return nil, err
	}
	if err := disk.SetKey(areaKey); err != nil {
		return nil, err
	}

	if keyslot.Area.Size%keyslotAreaSectorSize != 0 {
		return nil, fmt.Errorf("%w: area size %d is not a multiple of %d", ErrBadArgument, keyslot.Area.Size, keyslotAreaSectorSize)
	}
	areaBuf := make([]byte, keyslot.Area.Size)
	defer clearBytes(areaBuf)
	if _, err := src.ReadAt(areaBuf, keyslot.Area.Offset); err != nil {
		return nil, fmt.Errorf("%w: reading keyslot area: %v", ErrIo, err)
	}

	if err := disk.Decrypt(areaBuf, 0, log2(keyslotAreaSectorSize)); err != nil {
		return nil, err
	}

	afSize := keyslot.AF.Stripes * keyslot.KeySize
	if afSize > len(areaBuf) {
		return nil, fmt.Errorf("%w: keyslot area too small for af material", ErrBadArgument)
	}
	masterKey, err := AFMerge(areaBuf[:afSize], keyslot.AF.Stripes, keyslot.KeySize, keyslot.AF.Hash)
	if err != nil {
		return nil, err
	}

	return masterKey, nil
}
