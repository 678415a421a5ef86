// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"fmt"

	"github.com/snapfs-project/snapfs/internal/ipc"
	"github.com/spf13/cobra"
)

func dial() (*ipc.Client, error) {
	return ipc.Dial(socketPath)
}

var createCmd = &cobra.Command{
	Use:   "create <name> [comment]",
	Short: "Promote the working snapshot into a named, persistent one (SH_CREATE).",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(c *cobra.Command, args []string) error {
		comment := ""
		if len(args) == 2 {
			comment = args[1]
		}
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		return client.ShCreate(args[0], comment)
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <name>",
	Short: "Restore the live tree to the named snapshot (SH_ACCEPT).",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		return client.ShAccept(args[0])
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Soft-delete the named snapshot (SH_DELETE).",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		return client.ShDelete(args[0])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every non-deleted snapshot (SH_PRINT).",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		snaps, err := client.ShPrint()
		if err != nil {
			return err
		}
		for _, s := range snaps {
			fmt.Printf("%s\t%s\t%s\t%s\n", s.Name, s.ID, s.Date.Format("2006-01-02T15:04:05"), s.Comment)
		}
		return nil
	},
}

var dfCmd = &cobra.Command{
	Use:   "df",
	Short: "Report free/total blocks on the mounted disk image.",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()
		free, total, err := client.Df()
		if err != nil {
			return err
		}
		fmt.Printf("%d/%d blocks free\n", free, total)
		return nil
	},
}
