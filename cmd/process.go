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
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/wechatdump"
	"github.com/forensicanalysis/wechatdump/keyfind"
	"github.com/forensicanalysis/wechatdump/process"
)

// Info is the wechatdump info commandline subcommand
func Info() *cobra.Command {
	var names []string
	infoCommand := &cobra.Command{
		Use:   "info",
		Short: "List running WeChat instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			session := wechatdump.NewSession()
			session.Names = names
			infos, err := session.Processes(cmd.Context())
			if err != nil {
				return err
			}
			for _, info := range infos {
				fmt.Printf("%d\t%s\t%s\t%s\t%s\n",
					info.PID, info.Name, info.Version, info.Account, info.DataDir)
			}
			return nil
		},
	}
	infoCommand.Flags().StringSliceVar(&names, "name", nil, "process image names to match")
	return infoCommand
}

// Key is the wechatdump key commandline subcommand
func Key() *cobra.Command {
	var names []string
	var timeout time.Duration
	var offsetsPath, reportPath string
	var reportKey bool
	keyCommand := &cobra.Command{
		Use:   "key [pid]",
		Short: "Recover the database key from process memory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			session := wechatdump.NewSession()
			session.Names = names
			session.ScanTimeout = timeout

			var err error
			session.Offsets, err = keyfind.LoadOffsets(afero.NewOsFs(), offsetsPath)
			if err != nil {
				return err
			}

			info, err := pickInstance(cmd, session, args)
			if err != nil {
				return err
			}

			key, _, err := session.RecoverKey(cmd.Context(), info)
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", hex.EncodeToString(key))

			if reportPath != "" {
				report := wechatdump.NewReport(info, key, reportKey)
				return report.WriteReport(afero.NewOsFs(), reportPath)
			}
			return nil
		},
	}
	keyCommand.Flags().StringSliceVar(&names, "name", nil, "process image names to match")
	keyCommand.Flags().DurationVar(&timeout, "timeout", time.Minute, "memory scan budget, 0 disables")
	keyCommand.Flags().StringVar(&offsetsPath, "offsets", "", "per version key offsets json")
	keyCommand.Flags().StringVar(&reportPath, "report", "", "write a recovery report to this file")
	keyCommand.Flags().BoolVar(&reportKey, "report-key", false, "include the key hex in the report")
	return keyCommand
}

func pickInstance(cmd *cobra.Command, session *wechatdump.Session, args []string) (process.Info, error) {
	infos, err := session.Processes(cmd.Context())
	if err != nil {
		return process.Info{}, err
	}
	if len(args) == 0 {
		return infos[0], nil
	}

	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return process.Info{}, errors.Wrap(err, "invalid pid")
	}
	for _, info := range infos {
		if info.PID == int32(pid) {
			return info, nil
		}
	}
	return process.Info{}, errors.Wrapf(process.ErrNotFound, "pid %d", pid)
}
