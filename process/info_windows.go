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
	"fmt"
	"strings"
	"unsafe"

	"golang.org/x/sys/windows"
)

// keyModules are the client libraries whose base address anchors the
// version specific key offsets. 3.x loads WeChatWin.dll, 4.x Weixin.dll.
var keyModules = []string{"WeChatWin.dll", "Weixin.dll"}

// platformFileVersion reads the product version from the executable's
// resource metadata.
func platformFileVersion(exe string) (string, error) {
	var zero windows.Handle
	size, err := windows.GetFileVersionInfoSize(exe, &zero)
	if err != nil {
		return "", err
	}

	info := make([]byte, size)
	if err := windows.GetFileVersionInfo(exe, 0, size, unsafe.Pointer(&info[0])); err != nil {
		return "", err
	}

	var fixed *windows.VS_FIXEDFILEINFO
	fixedLen := uint32(unsafe.Sizeof(*fixed))
	if err := windows.VerQueryValue(unsafe.Pointer(&info[0]), `\`, unsafe.Pointer(&fixed), &fixedLen); err != nil {
		return "", err
	}

	return fmt.Sprintf("%d.%d.%d.%d",
		(fixed.FileVersionMS>>16)&0xffff,
		fixed.FileVersionMS&0xffff,
		(fixed.FileVersionLS>>16)&0xffff,
		fixed.FileVersionLS&0xffff), nil
}

// platformModuleBase returns the base address of the client's key carrying
// module, or 0 if it cannot be resolved. Offset based key lookup is a fast
// path only, so failures here are not fatal.
func platformModuleBase(pid int32) uintptr {
	snapshot, err := windows.CreateToolhelp32Snapshot(
		windows.TH32CS_SNAPMODULE|windows.TH32CS_SNAPMODULE32, uint32(pid))
	if err != nil {
		return 0
	}
	defer windows.CloseHandle(snapshot)

	var entry windows.ModuleEntry32
	entry.Size = uint32(windows.SizeofModuleEntry32)
	for err = windows.Module32First(snapshot, &entry); err == nil; err = windows.Module32Next(snapshot, &entry) {
		name := windows.UTF16ToString(entry.Module[:])
		for _, module := range keyModules {
			if strings.EqualFold(name, module) {
				return entry.ModBaseAddr
			}
		}
	}
	return 0
}
