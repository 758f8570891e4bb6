// Copyright (c) 2019 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

// Package wechatdump recovers WeChat desktop database keys from process
// memory and decrypts the client databases for forensic analysis.
//
// Recovery pipeline
//
// A recovery run goes through the following stages:
//     - Locate running client instances (process package), including version tag, account and data directory.
//     - Scan the process memory for key candidates (keyfind package), anchored pattern hits first, aligned windows second.
//     - Validate candidates against the first page of an encrypted database until one key is accepted.
//     - Decrypt the databases page by page into plain SQLite files (decrypt package).
//     - Optionally merge the decrypted contact and message databases into one unified database (merge package).
//
// Database layout
//
// An account data directory of a 3.x client:
//     WeChat Files/wxid_example/
//     ├── Msg
//     │   ├── MicroMsg.db
//     │   ├── MSG0.db
//     │   └── ...
//     └── ...
//
// 4.x clients use a db_storage directory with per concern subdirectories
// instead. Both layouts are discovered automatically.
//
// Live memory access requires Windows; decryption, merging and scanning of
// saved memory dumps work on every platform.
package wechatdump
