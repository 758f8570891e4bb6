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
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/wechatdump/process"
)

func TestNewReport(t *testing.T) {
	info := process.Info{PID: 1234, Name: "WeChat.exe", Version: "3.9.8.25", Account: "wxid_x", DataDir: "/data/wxid_x"}
	key := testKey()

	report := NewReport(info, key, false)
	assert.NotEmpty(t, report.ID)
	assert.NotEmpty(t, report.KeyFingerprint)
	assert.Empty(t, report.Key, "key hex requires opt in")

	withKey := NewReport(info, key, true)
	assert.Equal(t, hex.EncodeToString(key), withKey.Key)
	assert.Equal(t, report.KeyFingerprint, withKey.KeyFingerprint)
}

func TestWriteReport(t *testing.T) {
	fs := afero.NewMemMapFs()
	info := process.Info{PID: 1234, Name: "WeChat.exe", Version: "3.9.8.25", Account: "wxid_x", DataDir: "/data/wxid_x"}

	report := NewReport(info, testKey(), false)
	require.NoError(t, report.WriteReport(fs, "/report.json"))

	data, err := afero.ReadFile(fs, "/report.json")
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, float64(1234), m["pid"])
	assert.Equal(t, "3.9.8.25", m["version"])
	assert.Equal(t, "/data/wxid_x", m["data_dir"])
	assert.NotEmpty(t, m["key_fingerprint"])
	assert.Empty(t, m["key"])
}
