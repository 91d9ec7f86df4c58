// Copyright (c) 2025 Jeremy Hahn
//
// SPDX-License-Identifier: Apache-2.0

package luks2

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// jsonValue is an order-preserving JSON value tree.
//
// encoding/json unmarshals objects into Go maps, whose iteration order is
// randomized on every run. The metadata decoder and graph resolver need the
// *document* order of "keyslots"/"segments"/"digests" members (keyslot trial
// order, first-match tie-break in §4.C), so this type is built by streaming
// json.Decoder.Token() instead of unmarshaling into a map.
type jsonValue struct {
	kind    jsonKind
	object  []jsonMember // kind == jsonObject, in document order
	array   []*jsonValue // kind == jsonArray
	str     string       // kind == jsonString
	num     json.Number  // kind == jsonNumber
	boolean bool         // kind == jsonBool
}

type jsonKind int

const (
	jsonNull jsonKind = iota
	jsonObject
	jsonArray
	jsonString
	jsonNumber
	jsonBool
)

type jsonMember struct {
	key   string
	value *jsonValue
}

// parseJSONValue builds an order-preserving tree from a JSON document.
func parseJSONValue(data []byte) (*jsonValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := decodeJSONValue(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArgument, err)
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder) (*jsonValue, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeJSONValueFromToken(dec, tok)
}

func decodeJSONValueFromToken(dec *json.Decoder, tok json.Token) (*jsonValue, error) {
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			v := &jsonValue{kind: jsonObject}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string: %v", keyTok)
				}
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				v.object = append(v.object, jsonMember{key: key, value: child})
			}
			if _, err := dec.Token(); err != nil { // consume '}'
				return nil, err
			}
			return v, nil
		case '[':
			v := &jsonValue{kind: jsonArray}
			for dec.More() {
				child, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				v.array = append(v.array, child)
			}
			if _, err := dec.Token(); err != nil { // consume ']'
				return nil, err
			}
			return v, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %v", t)
		}
	case string:
		return &jsonValue{kind: jsonString, str: t}, nil
	case json.Number:
		return &jsonValue{kind: jsonNumber, num: t}, nil
	case bool:
		return &jsonValue{kind: jsonBool, boolean: t}, nil
	case nil:
		return &jsonValue{kind: jsonNull}, nil
	default:
		return nil, fmt.Errorf("unexpected token %v (%T)", t, t)
	}
}

// Get is get_value(obj, key): the member of an object named key, or
// (nil, false) if absent. Not defined for non-object values.
func (v *jsonValue) Get(key string) (*jsonValue, bool) {
	if v == nil || v.kind != jsonObject {
		return nil, false
	}
	for _, m := range v.object {
		if m.key == key {
			return m.value, true
		}
	}
	return nil, false
}

// Child is get_child(obj, i): the i-th child in document order, along with
// its key when obj is an object (the "null key on a child returns the
// child's own key" recovery named in §6). Array children report key "".
func (v *jsonValue) Child(i int) (key string, value *jsonValue, ok bool) {
	if v == nil {
		return "", nil, false
	}
	switch v.kind {
	case jsonObject:
		if i < 0 || i >= len(v.object) {
			return "", nil, false
		}
		return v.object[i].key, v.object[i].value, true
	case jsonArray:
		if i < 0 || i >= len(v.array) {
			return "", nil, false
		}
		return "", v.array[i], true
	default:
		return "", nil, false
	}
}

// Len is get_size(obj): the number of children of an object or array.
func (v *jsonValue) Len() int {
	if v == nil {
		return 0
	}
	switch v.kind {
	case jsonObject:
		return len(v.object)
	case jsonArray:
		return len(v.array)
	default:
		return 0
	}
}

// AsString is get_string.
func (v *jsonValue) AsString() (string, bool) {
	if v == nil || v.kind != jsonString {
		return "", false
	}
	return v.str, true
}

// AsInt64 is get_int64.
func (v *jsonValue) AsInt64() (int64, bool) {
	if v == nil || v.kind != jsonNumber {
		return 0, false
	}
	n, err := v.num.Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

// AsUint64 is get_uint64.
func (v *jsonValue) AsUint64() (uint64, bool) {
	if v == nil || v.kind != jsonNumber {
		return 0, false
	}
	// json.Number has no Uint64 accessor; round-trip through the decimal text.
	var n uint64
	if _, err := fmt.Sscanf(v.num.String(), "%d", &n); err != nil {
		return 0, false
	}
	return n, true
}
