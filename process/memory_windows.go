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

//go:build windows

package process

import (
	"context"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const (
	memPrivate = 0x20000

	// Regions larger than this are skipped to bound single read size.
	maxRegionSize = 256 * 1024 * 1024

	readableMask = windows.PAGE_READONLY | windows.PAGE_READWRITE |
		windows.PAGE_WRITECOPY | windows.PAGE_EXECUTE_READ |
		windows.PAGE_EXECUTE_READWRITE | windows.PAGE_EXECUTE_WRITECOPY
)

type winMemory struct {
	handle windows.Handle
}

// Open acquires read access to the address space of pid.
func Open(pid int32) (Memory, error) {
	handle, err := windows.OpenProcess(
		windows.PROCESS_VM_READ|windows.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return nil, errors.Wrap(ErrAccessDenied, err.Error())
	}
	return &winMemory{handle: handle}, nil
}

func (m *winMemory) Regions(ctx context.Context) ([]Region, error) {
	var regions []Region
	var addr uintptr
	for {
		select {
		case <-ctx.Done():
			return regions, ctx.Err()
		default:
		}

		var mbi windows.MemoryBasicInformation
		if err := windows.VirtualQueryEx(m.handle, addr, &mbi, unsafe.Sizeof(mbi)); err != nil {
			break // no more regions
		}
		next := mbi.BaseAddress + mbi.RegionSize
		if next <= addr {
			break
		}
		addr = next

		if mbi.State != windows.MEM_COMMIT ||
			mbi.Protect&windows.PAGE_GUARD != 0 ||
			mbi.Protect&readableMask == 0 ||
			mbi.RegionSize > maxRegionSize {
			continue
		}
		regions = append(regions, Region{
			Base:    mbi.BaseAddress,
			Size:    int(mbi.RegionSize),
			Private: mbi.Type == memPrivate,
		})
	}

	if len(regions) == 0 && !m.stillActive() {
		return nil, ErrProcessExited
	}
	return regions, nil
}

func (m *winMemory) Read(r Region) ([]byte, error) {
	return m.ReadAt(r.Base, r.Size)
}

func (m *winMemory) ReadAt(addr uintptr, n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.Errorf("invalid read size %d", n)
	}
	buf := make([]byte, n)
	if err := windows.ReadProcessMemory(m.handle, addr, &buf[0], uintptr(n), nil); err != nil {
		if !m.stillActive() {
			return nil, ErrProcessExited
		}
		return nil, errors.Wrapf(err, "read of %d bytes at 0x%x failed", n, addr)
	}
	return buf, nil
}

func (m *winMemory) stillActive() bool {
	var code uint32
	if err := windows.GetExitCodeProcess(m.handle, &code); err != nil {
		return false
	}
	return code == windows.STILL_ACTIVE
}

func (m *winMemory) Close() error {
	return windows.CloseHandle(m.handle)
}
