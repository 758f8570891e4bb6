/*
 * Copyright (c) 2020 Siemens AG
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of
 * this software and associated documentation files (the "Software"), to deal in
 * the Software without restriction, including without limitation the rights to
 * use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
 * the Software, and to permit persons to whom the Software is furnished to do so,
 * subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
 * FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
 * COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
 * IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
 * CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 *
 * Author(s): Jonas Plum
 */

package keyfind

import (
	"encoding/binary"
	"encoding/json"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
	"github.com/spf13/afero"
	"github.com/tidwall/gjson"

	"github.com/forensicanalysis/wechatdump/decrypt"
	"github.com/forensicanalysis/wechatdump/process"
)

// Offsets maps a version tag to module relative offsets of account metadata
// in memory; the last element is the offset of the database key pointer.
// Reading the key through a known offset is a fast path that skips the full
// memory scan. The offsets are reverse engineered per client build and are
// maintained in an external JSON file, so the built-in table stays empty.
type Offsets map[string][]int64

var builtinOffsets = Offsets{}

// offsetsSchema describes the external offsets file: an object mapping
// version tags to integer arrays.
var offsetsSchema = []byte(`{
	"type": "object",
	"additionalProperties": {
		"type": "array",
		"items": {"type": "integer"}
	}
}`)

// LoadOffsets merges the offsets file at path over the built-in table. An
// empty path returns the built-in table unchanged.
func LoadOffsets(fs afero.Fs, path string) (Offsets, error) {
	merged := Offsets{}
	if err := mergo.Merge(&merged, builtinOffsets); err != nil {
		return nil, err
	}
	if path == "" {
		return merged, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}

	schema := &jsonschema.RootSchema{}
	if err := json.Unmarshal(offsetsSchema, schema); err != nil {
		return nil, errors.Wrap(err, "unmarshal offsets schema")
	}
	valErrs, err := schema.ValidateBytes(data)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	if len(valErrs) > 0 {
		return nil, errors.Errorf("invalid offsets file %s: %s", path, valErrs[0])
	}

	user := Offsets{}
	gjson.ParseBytes(data).ForEach(func(version, offsets gjson.Result) bool {
		var list []int64
		for _, v := range offsets.Array() {
			list = append(list, v.Int())
		}
		user[version.String()] = list
		return true
	})

	if err := mergo.Merge(&merged, user, mergo.WithOverride); err != nil {
		return nil, err
	}
	return merged, nil
}

// KeyOffset returns the key pointer offset for a version, if known.
func (o Offsets) KeyOffset(version string) (int64, bool) {
	offsets, ok := o[version]
	if !ok || len(offsets) == 0 {
		return 0, false
	}
	return offsets[len(offsets)-1], true
}

// ReadKeyAtOffset follows the key pointer stored at base+offset and returns
// the key bytes it points to. The result is a candidate like any other and
// must still be validated.
func ReadKeyAtOffset(mem process.Memory, base uintptr, offset int64) ([]byte, error) {
	raw, err := mem.ReadAt(base+uintptr(offset), 8)
	if err != nil {
		return nil, err
	}
	ptr := binary.LittleEndian.Uint64(raw)
	if ptr < minHeapAddr || ptr > maxHeapAddr {
		return nil, process.ErrAddressNotMapped
	}
	return mem.ReadAt(uintptr(ptr), decrypt.KeySize)
}
