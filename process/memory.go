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

	"github.com/pkg/errors"
)

// ErrAddressNotMapped is returned when an address is not inside any mapped
// region of the inspected memory.
var ErrAddressNotMapped = errors.New("address not mapped")

// ErrUnsupportedPlatform is returned by Open on platforms without live
// process memory access. Decryption and offline dump scanning stay available.
var ErrUnsupportedPlatform = errors.New("live process memory access is only supported on windows")

// Region is a contiguous committed, readable span of a process address
// space. Its content is read on demand and never retained past inspection.
type Region struct {
	Base    uintptr
	Size    int
	Private bool // backed by private (heap) pages rather than a mapped file
}

// Memory is the capability to inspect one address space. Regions reflects
// the state at the moment of the call: the target mutates its own memory
// continuously, so a second call may observe different regions.
type Memory interface {
	// Regions lists the committed, readable regions, ordered by address.
	Regions(ctx context.Context) ([]Region, error)
	// Read copies a whole region into caller owned memory. A region that
	// became inaccessible returns an error; callers skip it with a warning.
	Read(r Region) ([]byte, error)
	// ReadAt copies n bytes starting at an arbitrary address, used to follow
	// pointers found next to anchor patterns.
	ReadAt(addr uintptr, n int) ([]byte, error)
	Close() error
}
