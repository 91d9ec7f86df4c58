// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import "fmt"

// resolveKeyslot is get_keyslot(root, i): binds a keyslot to the digest and
// segment it is cross-referenced with via bitfield membership (§4.C).
//
// Tie-break: first match in the metadata's document iteration order, not
// numeric index order — this is why parsing walks jsonValue.Child() rather
// than a Go map.
func resolveKeyslot(meta *Metadata, i int) (*Keyslot, *Digest, *Segment, error) {
	keyslot, err := parseKeyslotAt(meta, i)
	if err != nil {
		return nil, nil, nil, err
	}

	var digest *Digest
	for d := 0; d < meta.digests.Len(); d++ {
		cand, err := parseDigestAt(meta, d)
		if err != nil {
			continue // forward-compatible: skip ill-formed digests, don't abort
		}
		if cand.HasKeyslot(keyslot.ID) {
			digest = cand
			break
		}
	}
	if digest == nil {
		return nil, nil, nil, fmt.Errorf("%w: no digest references keyslot %d", ErrNotFound, keyslot.ID)
	}

	var segment *Segment
	for s := 0; s < meta.segments.Len(); s++ {
		cand, err := parseSegmentAt(meta, s)
		if err != nil {
			continue
		}
		if digest.HasSegment(cand.ID) {
			segment = cand
			break
		}
	}
	if segment == nil {
		return nil, nil, nil, fmt.Errorf("%w: no segment referenced by digest %d", ErrNotFound, digest.ID)
	}

	return keyslot, digest, segment, nil
}
