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

// Package process locates running WeChat client instances and provides read
// access to their memory. The concrete OS mechanism is hidden behind the
// Memory interface so tests can substitute synthetic memory dumps.
package process

import (
	"context"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound is returned when no matching process is running. This is
	// an expected outcome, callers may retry later.
	ErrNotFound = errors.New("no matching process is running")
	// ErrAccessDenied is returned when the OS refuses process enumeration or
	// memory read access.
	ErrAccessDenied = errors.New("process access denied")
	// ErrProcessExited is returned when the target terminates mid scan.
	ErrProcessExited = errors.New("target process exited")
)

// DefaultNames are the image names of WeChat desktop clients: 3.x ships as
// WeChat.exe, 4.x as Weixin.exe.
var DefaultNames = []string{"WeChat.exe", "Weixin.exe"}

// dataDirMarkers are directory names that separate the account directory
// from the database files below it.
var dataDirMarkers = map[string]bool{"Msg": true, "db_storage": true}

var versionPattern = regexp.MustCompile(`\d+\.\d+\.\d+\.\d+`)

// Info describes one running client instance.
type Info struct {
	PID        int32
	Name       string
	Exe        string
	Version    string // best effort version tag, e.g. "3.9.8.25"
	Account    string // account directory name, e.g. "wxid_..."
	DataDir    string // directory that contains the encrypted databases
	ModuleBase uintptr
}

// Locator finds running client instances.
type Locator struct {
	Names []string // image names to match, DefaultNames if empty
	Log   *logrus.Logger
}

// Find enumerates running processes and returns an Info for every matching
// instance. It fails with ErrNotFound if nothing matches and ErrAccessDenied
// if enumeration is refused.
func (l *Locator) Find(ctx context.Context) ([]Info, error) {
	names := l.Names
	if len(names) == 0 {
		names = DefaultNames
	}
	log := l.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrAccessDenied, err.Error())
	}

	var infos []Info
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || !matches(name, names) {
			continue
		}

		info := Info{PID: p.Pid, Name: name}
		info.Exe, _ = p.ExeWithContext(ctx)

		if files, err := p.OpenFilesWithContext(ctx); err == nil {
			paths := make([]string, 0, len(files))
			for _, f := range files {
				paths = append(paths, f.Path)
			}
			info.DataDir, info.Account = dataDirFromOpenFiles(paths)
		} else {
			log.WithField("pid", p.Pid).Debugf("open file enumeration failed: %v", err)
		}

		info.Version = resolveVersion(info.Exe, name)
		info.ModuleBase = platformModuleBase(p.Pid)

		log.WithFields(logrus.Fields{"pid": info.PID, "version": info.Version}).
			Debug("found client instance")
		infos = append(infos, info)
	}

	if len(infos) == 0 {
		return nil, ErrNotFound
	}
	return infos, nil
}

func matches(name string, names []string) bool {
	for _, n := range names {
		if strings.EqualFold(name, n) {
			return true
		}
	}
	return false
}

// dataDirFromOpenFiles derives the account data directory from the database
// files the client holds open. Paths look like
// ...\WeChat Files\wxid_x\Msg\Media.db (3.x) or
// ...\xwechat_files\wxid_x\db_storage\message\message_0.db (4.x).
func dataDirFromOpenFiles(paths []string) (dataDir, account string) {
	for _, path := range paths {
		if !strings.HasSuffix(path, ".db") {
			continue
		}
		path = strings.TrimPrefix(path, `\\?\`)
		normalized := strings.ReplaceAll(path, `\`, "/")
		parts := strings.Split(normalized, "/")
		for i, part := range parts {
			if dataDirMarkers[part] && i > 0 {
				return strings.Join(parts[:i], "/"), parts[i-1]
			}
		}
	}
	return "", ""
}

// resolveVersion tags an instance with a best effort version: executable
// resource metadata where the platform supports it, then a version-looking
// path segment, then the major generation implied by the image name.
func resolveVersion(exe, name string) string {
	if exe != "" {
		if v, err := platformFileVersion(exe); err == nil && v != "" {
			return v
		}
		if v := versionPattern.FindString(exe); v != "" {
			return v
		}
	}
	if strings.EqualFold(name, "Weixin.exe") {
		return "4"
	}
	return "3"
}
