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

// Package wechatdump implements the wechatdump command line tool with
// subcommands to recover keys and decrypt WeChat desktop databases.
//     info      List running WeChat instances
//     key       Recover the database key from process memory
//     decrypt   Decrypt a database file or a whole data directory
//     merge     Merge decrypted databases into a single unified database
//
// Usage
//
// List instances and recover the key
//     wechatdump info
//     wechatdump key 1234 --report run.json
// Decrypt an account directory
//     wechatdump decrypt --key c0ffee... "WeChat Files/wxid_example" out/
// Merge the decrypted databases
//     wechatdump merge out/Msg/de_MicroMsg.db out/Msg/de_MSG0.db --output merge_all.db
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/wechatdump/cmd"
)

func main() {
	var verbose bool
	rootCmd := &cobra.Command{
		Use:   "wechatdump",
		Short: "Recover keys and decrypt WeChat desktop databases",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(cmd.Info(), cmd.Key(), cmd.Decrypt(), cmd.Merge())
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
}
