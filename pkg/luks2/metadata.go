// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"fmt"
	"strconv"
)

// Metadata is the parsed JSON document: three object sections the graph
// resolver cross-references, plus the order-preserving root for Get/Child.
type Metadata struct {
	root     *jsonValue
	keyslots *jsonValue
	segments *jsonValue
	digests  *jsonValue
}

// parseMetadata decodes the JSON text found after a selected header copy.
func parseMetadata(jsonText []byte) (*Metadata, error) {
	root, err := parseJSONValue(jsonText)
	if err != nil {
		return nil, err
	}

	keyslots, _ := root.Get("keyslots")
	segments, _ := root.Get("segments")
	digests, _ := root.Get("digests")
	if keyslots == nil || segments == nil || digests == nil {
		return nil, fmt.Errorf("%w: metadata missing keyslots/segments/digests", ErrBadArgument)
	}

	return &Metadata{root: root, keyslots: keyslots, segments: segments, digests: digests}, nil
}

// KeyslotCount is get_size(root.keyslots).
func (m *Metadata) KeyslotCount() int {
	return m.keyslots.Len()
}

func reqString(v *jsonValue, key string) (string, error) {
	child, ok := v.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: missing field %q", ErrBadArgument, key)
	}
	s, ok := child.AsString()
	if !ok {
		return "", fmt.Errorf("%w: field %q is not a string", ErrBadArgument, key)
	}
	return s, nil
}

func reqInt64(v *jsonValue, key string) (int64, error) {
	child, ok := v.Get(key)
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrBadArgument, key)
	}
	if n, ok := child.AsInt64(); ok {
		return n, nil
	}
	// LUKS2 stores several integer fields (offset/size) as decimal strings.
	if s, ok := child.AsString(); ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: field %q is not numeric: %v", ErrBadArgument, key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: field %q is not an integer", ErrBadArgument, key)
}

func reqObject(v *jsonValue, key string) (*jsonValue, error) {
	child, ok := v.Get(key)
	if !ok || child.kind != jsonObject {
		return nil, fmt.Errorf("%w: missing object field %q", ErrBadArgument, key)
	}
	return child, nil
}

// parseKeyslotAt decodes the i-th child of root.keyslots into a Keyslot,
// recovering its numeric ID from the child's own document key (§4.C step 1).
func parseKeyslotAt(root *Metadata, i int) (*Keyslot, error) {
	key, v, ok := root.keyslots.Child(i)
	if !ok {
		return nil, fmt.Errorf("%w: no keyslot at index %d", ErrNotFound, i)
	}
	id, err := strconv.Atoi(key)
	if err != nil {
		return nil, fmt.Errorf("%w: non-numeric keyslot key %q", ErrBadArgument, key)
	}
	ks, err := parseKeyslot(v)
	if err != nil {
		return nil, err
	}
	ks.ID = id
	return ks, nil
}

// parseKeyslot is parse_keyslot (§4.B), strict on every required field.
func parseKeyslot(v *jsonValue) (*Keyslot, error) {
	typ, err := reqString(v, "type")
	if err != nil {
		return nil, err
	}
	if typ != "luks2" {
		return nil, fmt.Errorf("%w: unsupported keyslot type %q", ErrBadArgument, typ)
	}

	keySize, err := reqInt64(v, "key_size")
	if err != nil {
		return nil, err
	}

	priority := 1
	if pv, ok := v.Get("priority"); ok {
		p, ok := pv.AsInt64()
		if !ok {
			return nil, fmt.Errorf("%w: priority is not an integer", ErrBadArgument)
		}
		priority = int(p)
	}

	area, err := reqObject(v, "area")
	if err != nil {
		return nil, err
	}
	areaType, err := reqString(area, "type")
	if err != nil {
		return nil, err
	}
	if areaType != "raw" {
		return nil, fmt.Errorf("%w: unsupported area type %q", ErrBadArgument, areaType)
	}
	areaOffset, err := reqInt64(area, "offset")
	if err != nil {
		return nil, err
	}
	areaSize, err := reqInt64(area, "size")
	if err != nil {
		return nil, err
	}
	areaEncryption, err := reqString(area, "encryption")
	if err != nil {
		return nil, err
	}
	areaKeySize, err := reqInt64(area, "key_size")
	if err != nil {
		return nil, err
	}

	kdf, err := reqObject(v, "kdf")
	if err != nil {
		return nil, err
	}
	kdfRecord, err := parseKDF(kdf)
	if err != nil {
		return nil, err
	}

	af, err := reqObject(v, "af")
	if err != nil {
		return nil, err
	}
	afType, err := reqString(af, "type")
	if err != nil {
		return nil, err
	}
	if afType != "luks1" {
		return nil, fmt.Errorf("%w: unsupported af type %q", ErrBadArgument, afType)
	}
	afStripes, err := reqInt64(af, "stripes")
	if err != nil {
		return nil, err
	}
	afHash, err := reqString(af, "hash")
	if err != nil {
		return nil, err
	}

	return &Keyslot{
		KeySize:  int(keySize),
		Priority: priority,
		Area: KeyslotArea{
			Offset:     areaOffset,
			Size:       areaSize,
			Encryption: areaEncryption,
			KeySize:    int(areaKeySize),
		},
		KDF: *kdfRecord,
		AF: AntiForensic{
			Stripes: int(afStripes),
			Hash:    afHash,
		},
	}, nil
}

// parseKDF decodes the kdf.type tagged union (§4.B, §9).
func parseKDF(v *jsonValue) (*KDF, error) {
	typ, err := reqString(v, "type")
	if err != nil {
		return nil, err
	}

	switch typ {
	case "pbkdf2":
		hash, err := reqString(v, "hash")
		if err != nil {
			return nil, err
		}
		iterations, err := reqInt64(v, "iterations")
		if err != nil {
			return nil, err
		}
		salt, err := reqString(v, "salt")
		if err != nil {
			return nil, err
		}
		return &KDF{Kind: KDFPbkdf2, Hash: hash, Iterations: int(iterations), Salt: salt}, nil

	case "argon2i", "argon2id":
		t, err := reqInt64(v, "time")
		if err != nil {
			return nil, err
		}
		mem, err := reqInt64(v, "memory")
		if err != nil {
			return nil, err
		}
		cpus, err := reqInt64(v, "cpus")
		if err != nil {
			return nil, err
		}
		salt, err := reqString(v, "salt")
		if err != nil {
			return nil, err
		}
		kind := KDFArgon2i
		if typ == "argon2id" {
			kind = KDFArgon2id
		}
		return &KDF{Kind: kind, Time: int(t), Memory: int(mem), CPUs: int(cpus), Salt: salt}, nil

	default:
		return nil, fmt.Errorf("%w: unsupported kdf type %q", ErrBadArgument, typ)
	}
}

// parseSegmentAt decodes the i-th child of root.segments, recovering its ID
// from the document key the same way parseKeyslotAt does.
func parseSegmentAt(root *Metadata, i int) (*Segment, error) {
	key, v, ok := root.segments.Child(i)
	if !ok {
		return nil, fmt.Errorf("%w: no segment at index %d", ErrNotFound, i)
	}
	id, err := strconv.Atoi(key)
	if err != nil {
		return nil, fmt.Errorf("%w: non-numeric segment key %q", ErrBadArgument, key)
	}
	seg, err := parseSegment(v)
	if err != nil {
		return nil, err
	}
	seg.ID = id
	return seg, nil
}

// parseSegment is parse_segment (§4.B).
func parseSegment(v *jsonValue) (*Segment, error) {
	typ, err := reqString(v, "type")
	if err != nil {
		return nil, err
	}
	if typ != "crypt" {
		return nil, fmt.Errorf("%w: unsupported segment type %q", ErrBadArgument, typ)
	}

	offset, err := reqInt64(v, "offset")
	if err != nil {
		return nil, err
	}
	size, err := reqString(v, "size")
	if err != nil {
		return nil, err
	}
	encryption, err := reqString(v, "encryption")
	if err != nil {
		return nil, err
	}
	sectorSize, err := reqInt64(v, "sector_size")
	if err != nil {
		return nil, err
	}
	if sectorSize < 512 || sectorSize&(sectorSize-1) != 0 {
		return nil, fmt.Errorf("%w: sector_size %d is not a power of two >= 512", ErrBadArgument, sectorSize)
	}

	return &Segment{
		Offset:        offset,
		SizeRaw:       size,
		Dynamic:       size == "dynamic",
		Encryption:    encryption,
		SectorSize:    int(sectorSize),
		LogSectorSize: log2(uint(sectorSize)),
	}, nil
}

// parseDigestAt decodes the i-th child of root.digests, folding its
// keyslots/segments index arrays into 64-bit bitmasks (§3 invariants).
func parseDigestAt(root *Metadata, i int) (*Digest, error) {
	key, v, ok := root.digests.Child(i)
	if !ok {
		return nil, fmt.Errorf("%w: no digest at index %d", ErrNotFound, i)
	}
	id, err := strconv.Atoi(key)
	if err != nil {
		return nil, fmt.Errorf("%w: non-numeric digest key %q", ErrBadArgument, key)
	}
	d, err := parseDigest(v)
	if err != nil {
		return nil, err
	}
	d.ID = id
	return d, nil
}

// parseDigest is parse_digest (§4.B).
func parseDigest(v *jsonValue) (*Digest, error) {
	typ, err := reqString(v, "type")
	if err != nil {
		return nil, err
	}
	if typ != "pbkdf2" {
		return nil, fmt.Errorf("%w: unsupported digest type %q", ErrBadArgument, typ)
	}

	salt, err := reqString(v, "salt")
	if err != nil {
		return nil, err
	}
	digestVal, err := reqString(v, "digest")
	if err != nil {
		return nil, err
	}
	hash, err := reqString(v, "hash")
	if err != nil {
		return nil, err
	}
	iterations, err := reqInt64(v, "iterations")
	if err != nil {
		return nil, err
	}

	keyslotsMask, err := foldIndexBitmask(v, "keyslots")
	if err != nil {
		return nil, err
	}
	segmentsMask, err := foldIndexBitmask(v, "segments")
	if err != nil {
		return nil, err
	}

	return &Digest{
		Keyslots:   keyslotsMask,
		Segments:   segmentsMask,
		Hash:       hash,
		Iterations: int(iterations),
		Salt:       salt,
		Digest:     digestVal,
	}, nil
}

// foldIndexBitmask reads an array of decimal-string indices and folds them
// into a 64-bit bitmask, rejecting any index >= 64 (§9: "the source code
// uses unchecked shifts here"; this implementation rejects instead).
func foldIndexBitmask(v *jsonValue, key string) (uint64, error) {
	arr, ok := v.Get(key)
	if !ok || arr.kind != jsonArray {
		return 0, fmt.Errorf("%w: missing array field %q", ErrBadArgument, key)
	}

	var mask uint64
	for i := 0; i < arr.Len(); i++ {
		_, child, _ := arr.Child(i)
		s, ok := child.AsString()
		if !ok {
			return 0, fmt.Errorf("%w: %s[%d] is not a string index", ErrBadArgument, key, i)
		}
		idx, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %s[%d] = %q is not numeric", ErrBadArgument, key, i, s)
		}
		if idx < 0 || idx > 63 {
			return 0, fmt.Errorf("%w: %s index %d exceeds the 64-bit bitmask domain", ErrBadArgument, key, idx)
		}
		mask |= 1 << uint(idx)
	}
	return mask, nil
}

// log2 returns the base-2 logarithm of a power-of-two value.
func log2(v uint) uint {
	var n uint
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}
