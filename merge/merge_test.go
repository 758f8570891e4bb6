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

package merge

import (
	"path/filepath"
	"testing"
	"time"

	"crawshaw.io/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createDatabase(t *testing.T, path string, queries ...string) {
	t.Helper()
	conn, err := sqlite.OpenConn(path, 0)
	require.NoError(t, err)
	defer conn.Close() // nolint:errcheck
	for _, query := range queries {
		require.NoError(t, exec(conn, query))
	}
}

func createFixtures(t *testing.T) (indexPath string, shardPaths []string) {
	t.Helper()
	dir := t.TempDir()

	indexPath = filepath.Join(dir, "de_MicroMsg.db")
	createDatabase(t, indexPath,
		"CREATE TABLE contact (username TEXT, alias TEXT, nickname TEXT, remark TEXT)",
		"INSERT INTO contact VALUES ('wxid_b', 'bob', 'Bob', 'colleague')",
		"INSERT INTO contact VALUES ('wxid_a', 'alice', 'Alice', '')",
	)

	shardA := filepath.Join(dir, "de_MSG0.db")
	createDatabase(t, shardA,
		"CREATE TABLE message (msgId INTEGER, talker TEXT, isSender INTEGER, type INTEGER, createTime INTEGER, content TEXT)",
		"INSERT INTO message VALUES (1, 'wxid_a', 0, 1, 100, 'hi')",
		"INSERT INTO message VALUES (3, 'wxid_a', 1, 1, 300, 'still there?')",
		"INSERT INTO message VALUES (9, 'wxid_b', 0, 1, 150, 'other talker')",
	)

	shardB := filepath.Join(dir, "de_MSG1.db")
	createDatabase(t, shardB,
		"CREATE TABLE message (msgId INTEGER, talker TEXT, isSender INTEGER, type INTEGER, createTime INTEGER, content TEXT)",
		"INSERT INTO message VALUES (2, 'wxid_a', 1, 1, 200, 'hello')",
		"INSERT INTO message VALUES (4, 'wxid_a', 0, 1, 400, 'out of range')",
	)

	return indexPath, []string{shardA, shardB}
}

func TestViewContacts(t *testing.T) {
	indexPath, shardPaths := createFixtures(t)
	view, err := OpenView(indexPath, shardPaths, nil)
	require.NoError(t, err)
	defer view.Close()

	contacts, err := view.Contacts()
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "wxid_a", contacts[0].Username)
	assert.Equal(t, "Alice", contacts[0].Nickname)
	assert.Equal(t, "wxid_b", contacts[1].Username)
}

func TestViewMessages(t *testing.T) {
	indexPath, shardPaths := createFixtures(t)
	view, err := OpenView(indexPath, shardPaths, nil)
	require.NoError(t, err)
	defer view.Close()

	messages, err := view.Messages("wxid_a", time.Unix(100, 0), time.Unix(400, 0))
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, int64(1), messages[0].MsgID)
	assert.Equal(t, int64(2), messages[1].MsgID)
	assert.Equal(t, int64(3), messages[2].MsgID)
	assert.False(t, messages[0].IsSender)
	assert.True(t, messages[1].IsSender)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestViewShardOrderIrrelevant(t *testing.T) {
	indexPath, shardPaths := createFixtures(t)

	reversed := []string{shardPaths[1], shardPaths[0]}
	view, err := OpenView(indexPath, reversed, nil)
	require.NoError(t, err)
	defer view.Close()

	messages, err := view.Messages("wxid_a", time.Unix(0, 0), time.Unix(1000, 0))
	require.NoError(t, err)
	require.Len(t, messages, 4)
	for i := 1; i < len(messages); i++ {
		assert.True(t, messages[i-1].CreateTime.Before(messages[i].CreateTime))
	}
}

func TestViewDegradedShard(t *testing.T) {
	indexPath, shardPaths := createFixtures(t)

	// the index database has no message table, the shard is skipped
	view, err := OpenView(indexPath, append([]string{indexPath}, shardPaths...), nil)
	require.NoError(t, err)
	defer view.Close()

	messages, err := view.Messages("wxid_a", time.Unix(0, 0), time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}

func TestWriteUnified(t *testing.T) {
	indexPath, shardPaths := createFixtures(t)
	view, err := OpenView(indexPath, shardPaths, nil)
	require.NoError(t, err)
	defer view.Close()

	unifiedPath := filepath.Join(t.TempDir(), "merge_all.db")
	require.NoError(t, WriteUnified(unifiedPath, view))

	conn, err := sqlite.OpenConn(unifiedPath, 0)
	require.NoError(t, err)
	defer conn.Close() // nolint:errcheck

	assert.Equal(t, int64(2), count(t, conn, "SELECT COUNT(*) AS n FROM contact"))
	assert.Equal(t, int64(5), count(t, conn, "SELECT COUNT(*) AS n FROM message"))
	// index plus both shards
	assert.Equal(t, int64(3), count(t, conn, "SELECT COUNT(*) AS n FROM merged_info"))
	// snake_case views exist
	assert.Equal(t, int64(5), count(t, conn, "SELECT COUNT(*) AS n FROM message_view"))
	assert.Equal(t, int64(2), count(t, conn, "SELECT COUNT(*) AS n FROM contact_view"))
}

func count(t *testing.T, conn *sqlite.Conn, query string) int64 {
	t.Helper()
	stmt, err := conn.Prepare(query)
	require.NoError(t, err)
	hasRow, err := stmt.Step()
	require.NoError(t, err)
	require.True(t, hasRow)
	n := stmt.GetInt64("n")
	require.NoError(t, stmt.Finalize())
	return n
}
