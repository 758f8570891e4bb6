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

package wechatdump

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/wechatdump/decrypt"
	"github.com/forensicanalysis/wechatdump/keyfind"
	"github.com/forensicanalysis/wechatdump/process"
)

// coreDatabasePattern matches the encrypted databases worth decrypting.
// MicroMsg holds the address book, MSG and MediaMSG the numbered message and
// media shards, the OpenIM files the work account variants.
var coreDatabasePattern = regexp.MustCompile(`^(MicroMsg|MSG|MediaMSG|OpenIMContact|OpenIMMedia|message_|contact_|media_)\d*\.db$`)

// sampleCandidates are checked in order when picking the database to
// validate key candidates against. MicroMsg exists for every account.
var sampleCandidates = []string{
	"Msg/MicroMsg.db",
	"Msg/MSG0.db",
	"Msg/Media.db",
	"db_storage/message/message_0.db",
	"db_storage/contact/contact.db",
}

// accountDirSkip lists subdirectories of the client data root that are not
// account directories.
var accountDirSkip = map[string]bool{"All Users": true, "Applet": true, "WMPF": true}

// DecryptPrefix is prepended to every decrypted file name, so decrypted
// output is never mistaken for an original database.
const DecryptPrefix = "de_"

// Session bundles the state of one recovery run. Sessions hold no key
// material; recovered keys are returned to the caller and forgotten.
type Session struct {
	FS          afero.Fs
	Log         *logrus.Logger
	Names       []string        // process image names, process.DefaultNames if empty
	ScanTimeout time.Duration   // wall clock budget for one memory scan, 0 means none
	Offsets     keyfind.Offsets // optional per version key offsets, tried before scanning
}

// NewSession returns a Session operating on the OS filesystem.
func NewSession() *Session {
	return &Session{FS: afero.NewOsFs(), Log: logrus.StandardLogger()}
}

func (s *Session) fs() afero.Fs {
	if s.FS == nil {
		return afero.NewOsFs()
	}
	return s.FS
}

func (s *Session) log() *logrus.Logger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

// Processes lists running client instances.
func (s *Session) Processes(ctx context.Context) ([]process.Info, error) {
	locator := &process.Locator{Names: s.Names, Log: s.Log}
	return locator.Find(ctx)
}

// RecoverKey extracts the database key of one running instance from its
// memory. A known per version offset is tried first; otherwise the full
// region scan runs, bounded by ScanTimeout. Every candidate, including the
// offset fast path, is validated against a sample page before it is
// returned.
func (s *Session) RecoverKey(ctx context.Context, info process.Info) ([]byte, decrypt.Parameters, error) {
	params, err := decrypt.ParametersFor(info.Version)
	if err != nil {
		return nil, decrypt.Parameters{}, err
	}

	samplePath, err := s.findSample(info.DataDir)
	if err != nil {
		return nil, params, err
	}
	sample, err := decrypt.ReadSample(s.fs(), samplePath, params)
	if err != nil {
		return nil, params, err
	}

	mem, err := process.Open(info.PID)
	if err != nil {
		return nil, params, err
	}
	defer mem.Close() // nolint:errcheck

	if key := s.keyFromOffset(mem, info, sample, params); key != nil {
		return key, params, nil
	}

	if s.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.ScanTimeout)
		defer cancel()
	}

	key, err := keyfind.Search(ctx, mem, sample, params, s.log())
	if err != nil {
		return nil, params, err
	}
	return key, params, nil
}

// keyFromOffset follows a known module relative offset to the key. Failures
// are expected for unknown builds and only logged.
func (s *Session) keyFromOffset(mem process.Memory, info process.Info, sample []byte, params decrypt.Parameters) []byte {
	offset, ok := s.Offsets.KeyOffset(info.Version)
	if !ok || info.ModuleBase == 0 {
		return nil
	}
	key, err := keyfind.ReadKeyAtOffset(mem, info.ModuleBase, offset)
	if err != nil {
		s.log().Debugf("key offset for %s not usable: %v", info.Version, err)
		return nil
	}
	if !decrypt.ValidateKey(sample, key, params) {
		s.log().Debugf("key at known offset did not validate, falling back to scan")
		return nil
	}
	return key
}

// findSample picks an encrypted database under dataDir to validate key
// candidates against.
func (s *Session) findSample(dataDir string) (string, error) {
	if dataDir == "" {
		return "", errors.Wrap(process.ErrNotFound, "no data directory")
	}
	for _, candidate := range sampleCandidates {
		p := filepath.Join(dataDir, candidate)
		if ok, _ := afero.Exists(s.fs(), p); ok {
			return p, nil
		}
	}

	databases, err := s.findDatabases(dataDir)
	if err != nil {
		return "", err
	}
	if len(databases) == 0 {
		return "", errors.Wrapf(process.ErrNotFound, "no encrypted database under %s", dataDir)
	}
	return databases[0], nil
}

func (s *Session) findDatabases(dataDir string) ([]string, error) {
	var databases []string
	err := afero.Walk(s.fs(), dataDir, func(p string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return nil // nolint:nilerr
		}
		if coreDatabasePattern.MatchString(fi.Name()) {
			databases = append(databases, p)
		}
		return nil
	})
	return databases, err
}

// Result is the outcome of decrypting one database file.
type Result struct {
	Path   string // source file
	Output string // written file, empty on failure
	Err    error
}

// DecryptDatabases decrypts every core database under dataDir into outDir,
// mirroring the relative layout and prefixing file names with "de_". One
// corrupt database does not stop the batch; per file outcomes are returned.
func (s *Session) DecryptDatabases(dataDir, outDir string, key []byte, params decrypt.Parameters) ([]Result, error) {
	databases, err := s.findDatabases(dataDir)
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, src := range databases {
		// src comes from afero.Walk and carries OS separators
		rel, err := filepath.Rel(dataDir, src)
		if err != nil {
			return nil, err
		}
		dst := filepath.Join(outDir, filepath.Dir(rel), DecryptPrefix+filepath.Base(rel))

		if err := s.fs().MkdirAll(filepath.Dir(dst), 0750); err != nil {
			return nil, err
		}
		err = decrypt.DecryptFile(s.fs(), src, dst, key, params)
		result := Result{Path: src, Err: err}
		if err == nil {
			result.Output = dst
		} else {
			s.log().WithField("database", src).Warnf("decryption failed: %v", err)
		}
		results = append(results, result)
	}
	return results, nil
}

// DataDirs lists the account data directories below a client data root,
// e.g. the wxid_* directories under "WeChat Files". Shared directories like
// "All Users" are skipped.
func DataDirs(fs afero.Fs, root string) ([]string, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() || accountDirSkip[entry.Name()] {
			continue
		}
		dirs = append(dirs, filepath.Join(root, entry.Name()))
	}
	return dirs, nil
}
