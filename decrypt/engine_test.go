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
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1" // #nosec
	"errors"
	"math/rand"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testParams keeps key derivation cheap so tests stay fast.
var testParams = Parameters{
	Version:    "test",
	PageSize:   512,
	Iterations: 10,
	Hash:       sha1.New,
	MACSize:    sha1.Size,
}

// encryptDatabase builds an encrypted database image and the plaintext image
// Decrypt is expected to produce for it.
func encryptDatabase(t *testing.T, password []byte, pageCount int, p Parameters) (enc, want []byte) {
	t.Helper()
	rng := rand.New(rand.NewSource(42))

	enc = make([]byte, pageCount*p.PageSize)
	want = make([]byte, pageCount*p.PageSize)

	salt := make([]byte, SaltSize)
	rng.Read(salt)
	copy(enc, salt)
	copy(want, sqliteHeader)

	key, macKey := DeriveKeys(password, salt, p)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)

	for i := 0; i < pageCount; i++ {
		start := i * p.PageSize
		content := start
		if i == 0 {
			content = SaltSize
		}
		reserveOff := start + p.PageSize - p.Reserve()

		rng.Read(want[content:reserveOff])
		iv := make([]byte, ivSize)
		rng.Read(iv)

		cipher.NewCBCEncrypter(block, iv).CryptBlocks(enc[content:reserveOff], want[content:reserveOff])
		copy(enc[reserveOff:], iv)
		tag := pageTag(macKey, enc[content:reserveOff+ivSize], uint32(i+1), p)
		copy(enc[reserveOff+ivSize:], tag)

		// reserve bytes survive decryption verbatim
		copy(want[reserveOff:start+p.PageSize], enc[reserveOff:start+p.PageSize])
	}
	return enc, want
}

func TestDecrypt(t *testing.T) {
	password := []byte("0123456789abcdef0123456789abcdef")
	enc, want := encryptDatabase(t, password, 3, testParams)

	out, err := Decrypt(enc, password, testParams)
	require.NoError(t, err)
	assert.Equal(t, want, out)
	assert.Equal(t, []byte("SQLite format 3\x00"), out[:SaltSize])
}

func TestDecryptWrongKey(t *testing.T) {
	enc, _ := encryptDatabase(t, []byte("right password right password !"), 2, testParams)

	out, err := Decrypt(enc, []byte("wrong password wrong password !"), testParams)
	assert.True(t, errors.Is(err, ErrIntegrityMismatch))
	assert.Nil(t, out)
}

func TestDecryptCorruptPage(t *testing.T) {
	password := []byte("0123456789abcdef0123456789abcdef")
	enc, _ := encryptDatabase(t, password, 3, testParams)

	// flip one ciphertext byte in the second page
	enc[testParams.PageSize+7] ^= 0xff

	out, err := Decrypt(enc, password, testParams)
	assert.True(t, errors.Is(err, ErrIntegrityMismatch))
	assert.Contains(t, err.Error(), "page 2")
	assert.Nil(t, out)
}

func TestDecryptCorruptTag(t *testing.T) {
	password := []byte("0123456789abcdef0123456789abcdef")
	enc, _ := encryptDatabase(t, password, 3, testParams)

	// flip one byte inside the stored integrity tag of the second page
	reserveOff := 2*testParams.PageSize - testParams.Reserve()
	enc[reserveOff+ivSize+3] ^= 0x01

	out, err := Decrypt(enc, password, testParams)
	assert.True(t, errors.Is(err, ErrIntegrityMismatch))
	assert.Contains(t, err.Error(), "page 2")
	assert.Nil(t, out)
}

func TestDecryptBadSize(t *testing.T) {
	password := []byte("0123456789abcdef0123456789abcdef")

	_, err := Decrypt(make([]byte, 100), password, testParams)
	assert.Error(t, err)

	_, err = Decrypt(make([]byte, testParams.PageSize+1), password, testParams)
	assert.Error(t, err)
}

func TestDecryptFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	password := []byte("0123456789abcdef0123456789abcdef")
	enc, want := encryptDatabase(t, password, 2, testParams)
	require.NoError(t, afero.WriteFile(fs, "/in/MSG0.db", enc, 0644))

	err := DecryptFile(fs, "/in/MSG0.db", "/out/de_MSG0.db", password, testParams)
	require.NoError(t, err)

	out, err := afero.ReadFile(fs, "/out/de_MSG0.db")
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestDecryptFileNoPartialOutput(t *testing.T) {
	fs := afero.NewMemMapFs()
	password := []byte("0123456789abcdef0123456789abcdef")
	enc, _ := encryptDatabase(t, password, 3, testParams)
	enc[2*testParams.PageSize] ^= 0xff // corrupt the last page only
	require.NoError(t, afero.WriteFile(fs, "/in/MSG0.db", enc, 0644))

	err := DecryptFile(fs, "/in/MSG0.db", "/out/de_MSG0.db", password, testParams)
	assert.True(t, errors.Is(err, ErrIntegrityMismatch))

	exists, err := afero.Exists(fs, "/out/de_MSG0.db")
	require.NoError(t, err)
	assert.False(t, exists, "no output may be written for a corrupt database")
}
