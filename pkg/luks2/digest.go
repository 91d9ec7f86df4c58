// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// verifyKey is verify_key (§4.G): recompute the digest over candidate and
// compare it, constant-time, against the stored digest.
func verifyKey(digest *Digest, candidate []byte) error {
	expected, err := decodeBase64(digest.Digest)
	if err != nil {
		return err
	}
	salt, err := decodeBase64(digest.Salt)
	if err != nil {
		return err
	}

	hashFunc, err := lookupHash(digest.Hash)
	if err != nil {
		return err
	}

	computed := pbkdf2.Key(candidate, salt, digest.Iterations, len(expected), hashFunc)
	defer clearBytes(computed)

	if !ConstantTimeEqual(computed, expected) {
		return fmt.Errorf("%w: %v", ErrAccessDenied, ErrInvalidPassphrase)
	}
	return nil
}
