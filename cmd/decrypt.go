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
	"encoding/hex"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/wechatdump"
	"github.com/forensicanalysis/wechatdump/decrypt"
)

// Decrypt is the wechatdump decrypt commandline subcommand
func Decrypt() *cobra.Command {
	var keyHex, version string
	decryptCommand := &cobra.Command{
		Use:   "decrypt <source> <destination>",
		Short: "Decrypt a database file or a whole data directory",
		Args:  cobra.ExactArgs(2), //nolint:gomnd
		RunE: func(cmd *cobra.Command, args []string) error {
			src := cmd.Flags().Args()[0]
			dst := cmd.Flags().Args()[1]

			key, err := hex.DecodeString(keyHex)
			if err != nil {
				return errors.Wrap(err, "invalid key hex")
			}
			params, err := decrypt.ParametersFor(version)
			if err != nil {
				return err
			}

			fi, err := os.Stat(src)
			if err != nil {
				return err
			}
			if !fi.IsDir() {
				return decrypt.DecryptFile(afero.NewOsFs(), src, dst, key, params)
			}

			session := wechatdump.NewSession()
			results, err := session.DecryptDatabases(src, dst, key, params)
			if err != nil {
				return err
			}
			failed := 0
			for _, result := range results {
				if result.Err != nil {
					failed++
					fmt.Printf("%s\tFAILED\t%v\n", result.Path, result.Err)
					continue
				}
				fmt.Printf("%s\t%s\n", result.Path, result.Output)
			}
			if failed > 0 {
				return errors.Errorf("%d of %d databases failed", failed, len(results))
			}
			return nil
		},
	}
	decryptCommand.Flags().StringVar(&keyHex, "key", "", "database key as hex")
	decryptCommand.Flags().StringVar(&version, "version", "3", "client version the databases belong to")
	_ = decryptCommand.MarkFlagRequired("key")
	return decryptCommand
}
