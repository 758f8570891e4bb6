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

// Package merge exposes a logical view over a set of decrypted message
// databases and can materialize that view into a single unified database.
// Contacts live in the index database, messages are sharded over several
// message databases.
package merge

import (
	"fmt"
	"sort"
	"time"

	"crawshaw.io/sqlite"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Contact is one address book entry from the index database.
type Contact struct {
	Username string
	Alias    string
	Nickname string
	Remark   string
}

// Message is one chat message. CreateTime is stored as unix seconds.
type Message struct {
	MsgID      int64
	Talker     string
	IsSender   bool
	Type       int64
	CreateTime time.Time
	Content    string
}

type shard struct {
	path string
	conn *sqlite.Conn
}

// View is a read-only query layer over an index database and any number of
// message shards. Shards that cannot be opened degrade the view instead of
// failing it; the order of shards never changes query results.
type View struct {
	index     *sqlite.Conn
	indexPath string
	shards    []shard
	log       *logrus.Logger
}

// OpenView opens the index database and the given message shards. A broken
// shard is skipped with a warning, a broken index is an error.
func OpenView(indexPath string, shardPaths []string, log *logrus.Logger) (*View, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	index, err := sqlite.OpenConn(indexPath, 0)
	if err != nil {
		return nil, errors.Wrap(err, "open index database")
	}

	view := &View{index: index, indexPath: indexPath, log: log}
	for _, path := range shardPaths {
		conn, err := sqlite.OpenConn(path, 0)
		if err != nil {
			log.WithField("shard", path).Warnf("skipping shard: %v", err)
			continue
		}
		view.shards = append(view.shards, shard{path: path, conn: conn})
	}
	return view, nil
}

// Close closes the index and all shard connections.
func (v *View) Close() error {
	err := v.index.Close()
	for _, s := range v.shards {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Contacts returns all address book entries, ordered by username.
func (v *View) Contacts() ([]Contact, error) {
	stmt, err := v.index.Prepare("SELECT username, alias, nickname, remark FROM contact ORDER BY username")
	if err != nil {
		return nil, errors.Wrap(err, "query contacts")
	}

	var contacts []Contact
	for {
		if hasRow, err := stmt.Step(); err != nil {
			return nil, err
		} else if !hasRow {
			break
		}
		contacts = append(contacts, Contact{
			Username: stmt.GetText("username"),
			Alias:    stmt.GetText("alias"),
			Nickname: stmt.GetText("nickname"),
			Remark:   stmt.GetText("remark"),
		})
	}
	return contacts, stmt.Finalize()
}

// Messages returns all messages of one conversation in [from, to), gathered
// from every shard and sorted by create time and message id. Shards without
// a message table are skipped with a warning.
func (v *View) Messages(talker string, from, to time.Time) ([]Message, error) {
	var messages []Message
	for _, s := range v.shards {
		stmt, err := s.conn.Prepare("SELECT msgId, talker, isSender, type, createTime, content " +
			"FROM message WHERE talker = $talker AND createTime >= $from AND createTime < $to")
		if err != nil {
			v.log.WithField("shard", s.path).Warnf("skipping shard: %v", err)
			continue
		}
		stmt.SetText("$talker", talker)
		stmt.SetInt64("$from", from.Unix())
		stmt.SetInt64("$to", to.Unix())

		messages, err = appendMessages(messages, stmt)
		if err != nil {
			return nil, errors.Wrap(err, s.path)
		}
	}

	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreateTime.Equal(messages[j].CreateTime) {
			return messages[i].CreateTime.Before(messages[j].CreateTime)
		}
		return messages[i].MsgID < messages[j].MsgID
	})
	return messages, nil
}

func appendMessages(messages []Message, stmt *sqlite.Stmt) ([]Message, error) {
	for {
		if hasRow, err := stmt.Step(); err != nil {
			return nil, err
		} else if !hasRow {
			break
		}
		messages = append(messages, Message{
			MsgID:      stmt.GetInt64("msgId"),
			Talker:     stmt.GetText("talker"),
			IsSender:   stmt.GetInt64("isSender") != 0,
			Type:       stmt.GetInt64("type"),
			CreateTime: time.Unix(stmt.GetInt64("createTime"), 0),
			Content:    stmt.GetText("content"),
		})
	}
	return messages, stmt.Finalize()
}

func exec(conn *sqlite.Conn, query string) error {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return err
	}
	_, err = stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Finalize()
}

func setPragma(conn *sqlite.Conn, name string, i int64) error {
	stmt, err := conn.Prepare("PRAGMA " + name + " = " + fmt.Sprint(i))
	if err != nil {
		return err
	}
	_, err = stmt.Step()
	if err != nil {
		return err
	}
	return stmt.Finalize()
}
