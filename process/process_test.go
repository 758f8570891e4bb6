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

package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataDirFromOpenFiles(t *testing.T) {
	tests := []struct {
		name        string
		paths       []string
		wantDataDir string
		wantAccount string
	}{
		{
			"3.x layout",
			[]string{`C:\Users\u\Documents\WeChat Files\wxid_abc\Msg\Media.db`},
			"C:/Users/u/Documents/WeChat Files/wxid_abc",
			"wxid_abc",
		},
		{
			"4.x layout",
			[]string{`C:\Users\u\xwechat_files\wxid_abc\db_storage\message\message_0.db`},
			"C:/Users/u/xwechat_files/wxid_abc",
			"wxid_abc",
		},
		{
			"extended path prefix",
			[]string{`\\?\C:\Users\u\Documents\WeChat Files\wxid_abc\Msg\MicroMsg.db`},
			"C:/Users/u/Documents/WeChat Files/wxid_abc",
			"wxid_abc",
		},
		{
			"non database handles ignored",
			[]string{`C:\Windows\System32\en-US\kernel32.dll.mui`, `C:\Users\u\WeChat Files\wxid_abc\Msg\MSG0.db`},
			"C:/Users/u/WeChat Files/wxid_abc",
			"wxid_abc",
		},
		{"no database open", []string{`C:\Windows\System32\ntdll.dll`}, "", ""},
		{"empty", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dataDir, account := dataDirFromOpenFiles(tt.paths)
			assert.Equal(t, tt.wantDataDir, dataDir)
			assert.Equal(t, tt.wantAccount, account)
		})
	}
}

func TestResolveVersion(t *testing.T) {
	tests := []struct {
		name string
		exe  string
		proc string
		want string
	}{
		{"version in path", `C:\Program Files\Tencent\WeChat\3.9.8.25\WeChatWin.dll`, "WeChat.exe", "3.9.8.25"},
		{"weixin fallback", `C:\Program Files\Tencent\Weixin\Weixin.exe`, "Weixin.exe", "4"},
		{"wechat fallback", `C:\Program Files\Tencent\WeChat\WeChat.exe`, "WeChat.exe", "3"},
		{"no exe", "", "WeChat.exe", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveVersion(tt.exe, tt.proc))
		})
	}
}

func TestMatches(t *testing.T) {
	names := []string{"WeChat.exe", "Weixin.exe"}
	assert.True(t, matches("WeChat.exe", names))
	assert.True(t, matches("wechat.exe", names))
	assert.False(t, matches("explorer.exe", names))
}
