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
	"fmt"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"github.com/pkg/errors"
	"github.com/stoewer/go-strcase"
)

const unifiedApplicationID = 2004250722 // "wxdb"

var unifiedTables = []struct {
	name    string
	columns []string
}{
	{"contact", []string{"username", "alias", "nickname", "remark"}},
	{"message", []string{"msgId", "talker", "isSender", "type", "createTime", "content"}},
}

// WriteUnified materializes the view into a single database at path. It
// copies all contacts and all messages, records every source database in a
// merged_info provenance table and adds snake_case views over both tables.
func WriteUnified(path string, v *View) error {
	conn, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return errors.Wrap(err, "create unified database")
	}
	defer conn.Close() // nolint:errcheck

	if err := setPragma(conn, "application_id", unifiedApplicationID); err != nil {
		return err
	}

	setup := []string{
		"CREATE TABLE contact (username TEXT PRIMARY KEY, alias TEXT, nickname TEXT, remark TEXT)",
		"CREATE TABLE message (msgId INTEGER, talker TEXT, isSender INTEGER, type INTEGER, createTime INTEGER, content TEXT)",
		"CREATE TABLE merged_info (source_path TEXT, merge_time TEXT)",
	}
	for _, query := range setup {
		if err := exec(conn, query); err != nil {
			return err
		}
	}

	if err := copyContacts(conn, v); err != nil {
		return err
	}
	if err := copyMessages(conn, v); err != nil {
		return err
	}

	mergeTime := time.Now().Format("2006-01-02T15:04:05.000Z")
	if err := recordSource(conn, v.indexPath, mergeTime); err != nil {
		return err
	}
	for _, s := range v.shards {
		if err := recordSource(conn, s.path, mergeTime); err != nil {
			return err
		}
	}

	return createViews(conn)
}

func copyContacts(conn *sqlite.Conn, v *View) error {
	contacts, err := v.Contacts()
	if err != nil {
		return err
	}
	for _, c := range contacts {
		stmt, err := conn.Prepare("INSERT INTO contact (username, alias, nickname, remark) " +
			"VALUES ($username, $alias, $nickname, $remark)")
		if err != nil {
			return err
		}
		stmt.SetText("$username", c.Username)
		stmt.SetText("$alias", c.Alias)
		stmt.SetText("$nickname", c.Nickname)
		stmt.SetText("$remark", c.Remark)
		if _, err := stmt.Step(); err != nil {
			return err
		}
		if err := stmt.Finalize(); err != nil {
			return err
		}
	}
	return nil
}

func copyMessages(conn *sqlite.Conn, v *View) error {
	for _, s := range v.shards {
		stmt, err := s.conn.Prepare("SELECT msgId, talker, isSender, type, createTime, content FROM message")
		if err != nil {
			v.log.WithField("shard", s.path).Warnf("skipping shard: %v", err)
			continue
		}
		messages, err := appendMessages(nil, stmt)
		if err != nil {
			return errors.Wrap(err, s.path)
		}
		for _, m := range messages {
			if err := insertMessage(conn, m); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertMessage(conn *sqlite.Conn, m Message) error {
	stmt, err := conn.Prepare("INSERT INTO message (msgId, talker, isSender, type, createTime, content) " +
		"VALUES ($msgId, $talker, $isSender, $type, $createTime, $content)")
	if err != nil {
		return err
	}
	stmt.SetInt64("$msgId", m.MsgID)
	stmt.SetText("$talker", m.Talker)
	isSender := int64(0)
	if m.IsSender {
		isSender = 1
	}
	stmt.SetInt64("$isSender", isSender)
	stmt.SetInt64("$type", m.Type)
	stmt.SetInt64("$createTime", m.CreateTime.Unix())
	stmt.SetText("$content", m.Content)
	if _, err := stmt.Step(); err != nil {
		return err
	}
	return stmt.Finalize()
}

func recordSource(conn *sqlite.Conn, path, mergeTime string) error {
	stmt, err := conn.Prepare("INSERT INTO merged_info (source_path, merge_time) VALUES ($path, $time)")
	if err != nil {
		return err
	}
	stmt.SetText("$path", path)
	stmt.SetText("$time", mergeTime)
	if _, err := stmt.Step(); err != nil {
		return err
	}
	return stmt.Finalize()
}

// createViews adds one view per table with snake_case column names, so
// downstream tooling sees a uniform naming scheme.
func createViews(conn *sqlite.Conn) error {
	for _, table := range unifiedTables {
		var columns []string
		for _, column := range table.columns {
			columns = append(columns, fmt.Sprintf("%s AS '%s'", column, strcase.SnakeCase(column)))
		}
		query := fmt.Sprintf("CREATE VIEW '%s' AS SELECT %s FROM %s",
			strcase.SnakeCase(table.name)+"_view", strings.Join(columns, ", "), table.name)
		if err := exec(conn, query); err != nil {
			return err
		}
	}
	return nil
}
