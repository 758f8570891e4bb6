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
	"crypto/hmac"
	"encoding/binary"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"golang.org/x/crypto/pbkdf2"
)

// ErrIntegrityMismatch is returned when the recomputed integrity tag of a
// page does not match the stored tag. The file is either corrupted or was
// decrypted with the wrong key; no output is written in that case.
var ErrIntegrityMismatch = errors.New("page integrity tag mismatch")

// DeriveKeys derives the page cipher key and the integrity tag key from the
// recovered password and a file salt. The tag key uses the cipher key as
// password and the salt XORed with 0x3a, as SQLCipher does.
func DeriveKeys(password, salt []byte, p Parameters) (key, macKey []byte) {
	key = pbkdf2.Key(password, salt, p.Iterations, KeySize, p.Hash)

	macSalt := make([]byte, len(salt))
	for i, b := range salt {
		macSalt[i] = b ^ macSaltXOR
	}
	macKey = pbkdf2.Key(key, macSalt, macKeyRounds, KeySize, p.Hash)
	return key, macKey
}

// pageTag recomputes the integrity tag of page n (1-based) over the page
// ciphertext including the IV, followed by the little endian page number.
func pageTag(macKey, pageAndIV []byte, n uint32, p Parameters) []byte {
	mac := hmac.New(p.Hash, macKey)
	mac.Write(pageAndIV)

	var le [4]byte
	binary.LittleEndian.PutUint32(le[:], n)
	mac.Write(le[:])
	return mac.Sum(nil)[:p.MACSize]
}

// Decrypt transforms a complete encrypted database into a plain SQLite file
// image. Pages are processed concurrently but the output preserves page
// order. Any single failed integrity tag aborts the whole file with
// ErrIntegrityMismatch: a partially decrypted database is not usable.
func Decrypt(data, password []byte, p Parameters) ([]byte, error) {
	if len(data) < p.PageSize {
		return nil, errors.Errorf("file too small: %d bytes", len(data))
	}
	if len(data)%p.PageSize != 0 {
		return nil, errors.Errorf("file size %d is not a multiple of the page size %d", len(data), p.PageSize)
	}

	salt := data[:SaltSize]
	key, macKey := DeriveKeys(password, salt, p)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(data))
	copy(out, sqliteHeader)

	pageCount := len(data) / p.PageSize
	pages := make(chan int)
	var wg sync.WaitGroup

	var mu sync.Mutex
	failedPage := -1

	workers := runtime.NumCPU()
	if workers > pageCount {
		workers = pageCount
	}
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range pages {
				if err := decryptPage(block, macKey, data, out, i, p); err != nil {
					mu.Lock()
					if failedPage == -1 || i < failedPage {
						failedPage = i
					}
					mu.Unlock()
				}
			}
		}()
	}
	for i := 0; i < pageCount; i++ {
		pages <- i
	}
	close(pages)
	wg.Wait()

	if failedPage != -1 {
		return nil, errors.Wrapf(ErrIntegrityMismatch, "page %d", failedPage+1)
	}
	return out, nil
}

// decryptPage verifies and decrypts page i (0-based) in place into out. The
// reserve area is copied verbatim so the output stays byte compatible with
// files produced by the client itself.
func decryptPage(block cipher.Block, macKey, data, out []byte, i int, p Parameters) error {
	start := i * p.PageSize
	content := start
	if i == 0 {
		content = SaltSize
	}
	reserveOff := start + p.PageSize - p.Reserve()

	iv := data[reserveOff : reserveOff+ivSize]
	stored := data[reserveOff+ivSize : reserveOff+ivSize+p.MACSize]

	tag := pageTag(macKey, data[content:reserveOff+ivSize], uint32(i+1), p)
	if !hmac.Equal(tag, stored) {
		return errors.Wrapf(ErrIntegrityMismatch, "page %d", i+1)
	}

	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out[content:reserveOff], data[content:reserveOff])
	copy(out[reserveOff:start+p.PageSize], data[reserveOff:start+p.PageSize])
	return nil
}

// DecryptFile decrypts src into dst. dst is only created after every page
// passed integrity verification.
func DecryptFile(fs afero.Fs, src, dst string, password []byte, p Parameters) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}

	out, err := Decrypt(data, password, p)
	if err != nil {
		return errors.Wrap(err, src)
	}
	return afero.WriteFile(fs, dst, out, 0644)
}
