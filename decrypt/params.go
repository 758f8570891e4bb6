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

// Package decrypt turns encrypted WeChat database files into plain SQLite
// files. The on-disk format is an SQLCipher style container: a 16 byte salt
// followed by fixed size pages, each ending in a reserve area that holds the
// page IV and a keyed integrity tag. Cryptographic parameters differ between
// client generations and are modeled as a closed set of Parameters variants.
package decrypt

import (
	"crypto/sha1" // #nosec
	"crypto/sha512"
	"hash"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnsupportedVersion is returned for version tags without known
// cryptographic parameters. Guessing parameters would produce plausible
// looking but corrupt plaintext, so unknown versions fail closed.
var ErrUnsupportedVersion = errors.New("unsupported application version")

const (
	// SaltSize is the length of the key derivation salt that replaces the
	// SQLite header in the first page of an encrypted database.
	SaltSize = 16
	// KeySize is the length of the database password recovered from process
	// memory and of the derived page cipher key.
	KeySize = 32

	ivSize       = 16
	macSaltXOR   = 0x3a
	macKeyRounds = 2
)

// sqliteHeader is the first 16 bytes of every plain SQLite database file.
var sqliteHeader = append([]byte("SQLite format 3"), 0)

// Parameters is the version specific constant set needed to derive keys and
// to locate the IV and integrity tag inside each page.
type Parameters struct {
	Version    string
	PageSize   int
	Iterations int              // PBKDF2 rounds for the page cipher key
	Hash       func() hash.Hash // PBKDF2 PRF and integrity tag algorithm
	MACSize    int              // stored tag length, trailing the IV

	// Anchor is a byte marker that precedes key material in process memory,
	// nil if no anchor is known for the version. PointerAnchor indicates
	// that the eight bytes before the anchor hold a little endian pointer
	// to the key instead of the key following the anchor directly.
	Anchor        []byte
	PointerAnchor bool
}

// Reserve returns the number of trailing bytes per page: IV plus tag, padded
// to the cipher block size.
func (p Parameters) Reserve() int {
	reserve := ivSize + p.MACSize
	if reserve%ivSize != 0 {
		reserve = (reserve/ivSize + 1) * ivSize
	}
	return reserve
}

// v4KeyPattern marks the heap structure that holds the database key in 4.x
// clients. The eight bytes before it are a little endian pointer to the key.
var v4KeyPattern = []byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x20, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x2f, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// V3 are the parameters of 3.x clients, compatible with SQLCipher 3 defaults.
// No reliable memory anchor is known for this generation, so candidates are
// produced from aligned windows.
var V3 = Parameters{
	Version:    "3",
	PageSize:   4096,
	Iterations: 64000,
	Hash:       sha1.New,
	MACSize:    sha1.Size,
}

// V4 are the parameters of 4.x clients, compatible with SQLCipher 4 defaults.
var V4 = Parameters{
	Version:       "4",
	PageSize:      4096,
	Iterations:    256000,
	Hash:          sha512.New,
	MACSize:       sha512.Size,
	Anchor:        v4KeyPattern,
	PointerAnchor: true,
}

// ParametersFor maps a detected version tag (e.g. "3.9.8.25") to its
// cryptographic parameters. Unknown versions return ErrUnsupportedVersion.
func ParametersFor(version string) (Parameters, error) {
	major := version
	if i := strings.Index(version, "."); i > 0 {
		major = version[:i]
	}
	switch major {
	case "3":
		return V3, nil
	case "4":
		return V4, nil
	}
	return Parameters{}, errors.Wrap(ErrUnsupportedVersion, version)
}
