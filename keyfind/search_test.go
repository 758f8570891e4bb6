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

package keyfind

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/wechatdump/decrypt"
	"github.com/forensicanalysis/wechatdump/process"
)

func TestSearch(t *testing.T) {
	key := noiseWindows(1, 50)
	sample := makeSample(t, key, testParams)

	data := noiseWindows(32, 51)
	copy(data[10*decrypt.KeySize:], key)
	mem := process.NewDump(process.DumpRegion{Base: 0x10000, Data: data})

	found, err := Search(context.Background(), mem, sample, testParams, nil)
	require.NoError(t, err)
	assert.Equal(t, key, found)
}

func TestSearchAnchored(t *testing.T) {
	key := noiseWindows(1, 60)
	sample := makeSample(t, key, anchoredTestParams)

	// the key is only reachable through the anchor pointer, it does not
	// appear in any scanned region window
	data := noiseWindows(64, 61)
	copy(data[1024:], anchoredTestParams.Anchor)
	binary.LittleEndian.PutUint64(data[1016:], 0x300000+3)

	keyRegion := make([]byte, 3+decrypt.KeySize)
	copy(keyRegion[3:], key)

	mem := process.NewDump(
		process.DumpRegion{Base: 0x10000, Data: data},
		process.DumpRegion{Base: 0x300000, Data: keyRegion},
	)

	found, err := Search(context.Background(), mem, sample, anchoredTestParams, nil)
	require.NoError(t, err)
	assert.Equal(t, key, found)
}

func TestSearchKeyNotFound(t *testing.T) {
	key := noiseWindows(1, 70)
	sample := makeSample(t, key, testParams)

	mem := process.NewDump(process.DumpRegion{Base: 0x10000, Data: noiseWindows(32, 71)})

	_, err := Search(context.Background(), mem, sample, testParams, nil)
	assert.Equal(t, decrypt.ErrKeyNotFound, err)
}

func TestSearchCancelled(t *testing.T) {
	key := noiseWindows(1, 80)
	sample := makeSample(t, key, testParams)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mem := process.NewDump(process.DumpRegion{Base: 0x10000, Data: noiseWindows(32, 81)})

	_, err := Search(ctx, mem, sample, testParams, nil)
	assert.Error(t, err)
	assert.NotEqual(t, decrypt.ErrKeyNotFound, err)
}

func TestKeySet(t *testing.T) {
	seen := newKeySet()
	key := noiseWindows(1, 90)

	assert.False(t, seen.visited(key))
	assert.True(t, seen.visited(key))
	assert.False(t, seen.visited(noiseWindows(1, 91)))
}
