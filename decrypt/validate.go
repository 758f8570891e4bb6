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

package decrypt

import (
	"crypto/hmac"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// ErrKeyNotFound is returned when every candidate key failed validation
// against the sample page. It is a terminal outcome of a scan, not a crash.
var ErrKeyNotFound = errors.New("no candidate key validated against the database")

// ReadSample reads the first page of an encrypted database. The first page
// carries the salt and is enough to validate key candidates without touching
// the rest of the file.
func ReadSample(fs afero.Fs, path string, p Parameters) ([]byte, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sample := make([]byte, p.PageSize)
	if _, err := io.ReadFull(f, sample); err != nil {
		return nil, errors.Wrap(err, "sample smaller than one page")
	}
	return sample, nil
}

// ValidateKey tests a single candidate against the first page of an
// encrypted database. Correctness is defined entirely by the integrity tag
// verifying, not by any structural property of the candidate itself.
// Malformed samples fail validation instead of panicking.
func ValidateKey(sample, candidate []byte, p Parameters) bool {
	if len(candidate) != KeySize || len(sample) < p.PageSize {
		return false
	}

	salt := sample[:SaltSize]
	_, macKey := DeriveKeys(candidate, salt, p)

	reserveOff := p.PageSize - p.Reserve()
	stored := sample[reserveOff+ivSize : reserveOff+ivSize+p.MACSize]
	tag := pageTag(macKey, sample[SaltSize:reserveOff+ivSize], 1, p)
	return hmac.Equal(tag, stored)
}

// FirstValidKey tries candidates in order and returns the first one that
// validates against the sample page, or ErrKeyNotFound after exhausting the
// list.
func FirstValidKey(sample []byte, candidates [][]byte, p Parameters) ([]byte, error) {
	for _, candidate := range candidates {
		if ValidateKey(sample, candidate, p) {
			return candidate, nil
		}
	}
	return nil, ErrKeyNotFound
}
