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

// Package keyfind scans process memory for database key candidates and
// validates them against a sample page, a generate-and-test search with
// early exit on the first validated key.
package keyfind

import (
	"bytes"
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/forensicanalysis/wechatdump/decrypt"
	"github.com/forensicanalysis/wechatdump/process"
)

// pointer values outside this range never point at heap allocated keys
const (
	minHeapAddr = 0x10000
	maxHeapAddr = 0x7fffffffffff
)

// Candidate is an unverified byte sequence hypothesized to be the key.
// Base and Offset record where it was found, for diagnostics only.
type Candidate struct {
	Key      []byte
	Base     uintptr
	Offset   int
	Anchored bool
}

// Finder produces key candidates from the memory regions of one process.
// Within each region, anchored candidates are yielded before unanchored
// aligned windows to minimize validation cost, and no two candidates of one
// pass overlap.
type Finder struct {
	Mem    process.Memory
	Params decrypt.Parameters
	Log    *logrus.Logger
}

// Candidates streams candidates into out until the region sequence is
// exhausted or ctx is done. Regions that became unreadable mid scan are
// skipped with a warning; a vanished process aborts the scan. Zero emitted
// candidates is a normal outcome, not an error.
func (f *Finder) Candidates(ctx context.Context, out chan<- Candidate) error {
	log := f.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	regions, err := f.Mem.Regions(ctx)
	if err != nil {
		return err
	}

	for _, region := range regions {
		if region.Size < decrypt.KeySize {
			continue
		}
		data, err := f.Mem.Read(region)
		if err != nil {
			if errors.Is(err, process.ErrProcessExited) {
				return err
			}
			log.WithField("base", region.Base).Warnf("skipping unreadable region: %v", err)
			continue
		}
		if err := f.scanRegion(ctx, region, data, out); err != nil {
			return err
		}
	}
	return nil
}

func (f *Finder) scanRegion(ctx context.Context, region process.Region, data []byte, out chan<- Candidate) error {
	var taken intervals

	if len(f.Params.Anchor) > 0 {
		if err := f.anchoredPass(ctx, region, data, &taken, out); err != nil {
			return err
		}
	}
	return f.alignedPass(ctx, region, data, taken, out)
}

// anchoredPass emits a candidate for every anchor pattern occurrence. With a
// pointer anchor the eight bytes before the marker hold a little endian
// address of the key, which is read through the memory capability because it
// usually lives in a different region.
func (f *Finder) anchoredPass(ctx context.Context, region process.Region, data []byte, taken *intervals, out chan<- Candidate) error {
	anchor := f.Params.Anchor
	for idx := bytes.Index(data, anchor); idx != -1; {
		var key []byte

		if f.Params.PointerAnchor {
			if idx >= 8 {
				ptr := binary.LittleEndian.Uint64(data[idx-8 : idx])
				if ptr > minHeapAddr && ptr < maxHeapAddr {
					key, _ = f.Mem.ReadAt(uintptr(ptr), decrypt.KeySize)
				}
				*taken = append(*taken, interval{idx - 8, idx + len(anchor)})
			}
		} else if idx+len(anchor)+decrypt.KeySize <= len(data) {
			key = append([]byte(nil), data[idx+len(anchor):idx+len(anchor)+decrypt.KeySize]...)
			*taken = append(*taken, interval{idx, idx + len(anchor) + decrypt.KeySize})
		}

		if key != nil {
			if err := emit(ctx, out, Candidate{Key: key, Base: region.Base, Offset: idx, Anchored: true}); err != nil {
				return err
			}
		}

		next := bytes.Index(data[idx+len(anchor):], anchor)
		if next == -1 {
			break
		}
		idx += len(anchor) + next
	}
	return nil
}

// alignedPass emits every key sized aligned window as a low confidence
// candidate, skipping windows that overlap an anchored hit and windows of
// uniform bytes, which are never key material.
func (f *Finder) alignedPass(ctx context.Context, region process.Region, data []byte, taken intervals, out chan<- Candidate) error {
	for off := 0; off+decrypt.KeySize <= len(data); off += decrypt.KeySize {
		if taken.overlaps(off, off+decrypt.KeySize) || uniform(data[off:off+decrypt.KeySize]) {
			continue
		}
		key := append([]byte(nil), data[off:off+decrypt.KeySize]...)
		if err := emit(ctx, out, Candidate{Key: key, Base: region.Base, Offset: off}); err != nil {
			return err
		}
	}
	return nil
}

func emit(ctx context.Context, out chan<- Candidate, c Candidate) error {
	select {
	case out <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// uniform reports whether every byte equals the first, e.g. zero filled or
// pattern filled allocator memory.
func uniform(b []byte) bool {
	for _, c := range b[1:] {
		if c != b[0] {
			return false
		}
	}
	return true
}

type interval struct{ start, end int }

type intervals []interval

func (is intervals) overlaps(start, end int) bool {
	for _, i := range is {
		if start < i.end && i.start < end {
			return true
		}
	}
	return false
}
