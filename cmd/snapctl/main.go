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

// Command snapctl is the small client-side CLI:
// create/accept/delete/list against the snapshot graph, plus df and a
// couple of file-level conveniences (cat/write) for driving the
// filesystem from a shell. Every subcommand except fsck dials snapfsd's
// unix socket and issues one or two IPC requests; fsck opens the disk
// image directly. All exit 0 on success / non-zero on any error.
package main

import (
	"fmt"
	"os"

	"github.com/snapfs-project/snapfs/cmd"
	"github.com/spf13/cobra"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "snapctl",
	Short: "Control a running snapfsd: manage snapshots and poke at files.",
}

func init() {
	cmd.BindPersistentFlags(rootCmd)
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/tmp/snapfs.sock", "Unix domain socket snapfsd is listening on.")
	rootCmd.AddCommand(
		createCmd,
		acceptCmd,
		deleteCmd,
		listCmd,
		dfCmd,
		catCmd,
		writeCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
