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
	"os"

	"github.com/snapfs-project/snapfs/internal/fsserver"
	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Open path read-only and print the current working snapshot's view of its bytes.",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		handle, err := client.Open(args[0], fsserver.OpenReadOnly)
		if err != nil {
			return err
		}
		_, size, _, err := client.Stat(handle)
		if err != nil {
			return err
		}
		data, err := client.Read(handle, 0, int(size))
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <path> <data>",
	Short: "Open path (creating it if absent) and write data at offset 0, materializing a shadow via CoW if needed.",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		client, err := dial()
		if err != nil {
			return err
		}
		defer client.Close()

		handle, err := client.Open(args[0], fsserver.OpenCreate)
		if err != nil {
			return err
		}
		n, err := client.Write(handle, 0, []byte(args[1]))
		if err != nil {
			return err
		}
		if err := client.Flush(handle); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes\n", n)
		return nil
	},
}
