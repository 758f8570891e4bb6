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
	"crypto/sha1" // #nosec
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/fatih/structs"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stoewer/go-strcase"

	"github.com/forensicanalysis/wechatdump/process"
)

// Report documents one recovery run. The key itself is only included when
// the caller explicitly opts in; the fingerprint identifies the key without
// exposing it.
type Report struct {
	ID             string
	Time           string
	PID            int32
	Name           string
	Version        string
	Account        string
	DataDir        string
	KeyFingerprint string
	Key            string // hex, empty unless requested
}

// NewReport builds a report for one instance and its recovered key. The key
// hex is only embedded with includeKey.
func NewReport(info process.Info, key []byte, includeKey bool) Report {
	report := Report{
		ID:             "report--" + uuid.New().String(),
		Time:           time.Now().Format("2006-01-02T15:04:05.000Z"),
		PID:            info.PID,
		Name:           info.Name,
		Version:        info.Version,
		Account:        info.Account,
		DataDir:        info.DataDir,
		KeyFingerprint: keyFingerprint(key),
	}
	if includeKey {
		report.Key = hex.EncodeToString(key)
	}
	return report
}

func keyFingerprint(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	sum := sha1.Sum(key) // #nosec
	return hex.EncodeToString(sum[:8])
}

// WriteReport marshals the report with snake_case keys and writes it to
// path.
func (r Report) WriteReport(fs afero.Fs, path string) error {
	m := structs.Map(r)
	snake := make(map[string]interface{}, len(m))
	for k, v := range m {
		snake[strcase.SnakeCase(k)] = v
	}
	data, err := json.MarshalIndent(snake, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0600)
}
