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

package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/wechatdump/merge"
)

// Merge is the wechatdump merge commandline subcommand
func Merge() *cobra.Command {
	var output string
	mergeCommand := &cobra.Command{
		Use:   "merge <index database> <message database>...",
		Short: "Merge decrypted databases into a single unified database",
		Args:  requireDatabases,
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := merge.OpenView(args[0], args[1:], logrus.StandardLogger())
			if err != nil {
				return err
			}
			defer view.Close()
			return merge.WriteUnified(output, view)
		},
	}
	mergeCommand.Flags().StringVar(&output, "output", "merge_all.db", "unified database file")
	return mergeCommand
}

func requireDatabases(_ *cobra.Command, args []string) error {
	if len(args) < 1 {
		return errors.New("requires an index database")
	}
	for _, arg := range args {
		if _, err := os.Stat(arg); os.IsNotExist(err) {
			return errors.Wrap(os.ErrNotExist, arg)
		}
	}
	return nil
}
