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

package process

import (
	"context"
	"sort"

	"github.com/spf13/afero"
)

// DumpRegion is one mapped span of a synthetic memory image.
type DumpRegion struct {
	Base uintptr
	Data []byte
}

// Dump implements Memory over in-memory byte slices. It substitutes live
// process access in tests and serves saved memory dumps for offline key
// recovery.
type Dump struct {
	regions []DumpRegion
}

// NewDump builds a Dump from the given regions, ordered by base address.
func NewDump(regions ...DumpRegion) *Dump {
	sorted := make([]DumpRegion, len(regions))
	copy(sorted, regions)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	return &Dump{regions: sorted}
}

// LoadDump reads a raw memory dump file as a single region mapped at base.
func LoadDump(fs afero.Fs, path string, base uintptr) (*Dump, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	return NewDump(DumpRegion{Base: base, Data: data}), nil
}

func (d *Dump) Regions(ctx context.Context) ([]Region, error) {
	regions := make([]Region, 0, len(d.regions))
	for _, r := range d.regions {
		regions = append(regions, Region{Base: r.Base, Size: len(r.Data), Private: true})
	}
	return regions, nil
}

func (d *Dump) Read(r Region) ([]byte, error) {
	return d.ReadAt(r.Base, r.Size)
}

func (d *Dump) ReadAt(addr uintptr, n int) ([]byte, error) {
	for _, r := range d.regions {
		if addr >= r.Base && addr+uintptr(n) <= r.Base+uintptr(len(r.Data)) {
			buf := make([]byte, n)
			copy(buf, r.Data[addr-r.Base:])
			return buf, nil
		}
	}
	return nil, ErrAddressNotMapped
}

func (d *Dump) Close() error { return nil }
