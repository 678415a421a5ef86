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

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/snapshot"
	"github.com/spf13/cobra"
)

// fsckCmd opens the disk image directly rather than dialing snapfsd:
// This is an offline consistency check, and
// running it against a live mmap snapfsd also holds open would race the
// server's own writes.
var (
	fsckImagePath string
	fsckFix       bool
)

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Offline consistency check: snapshot graph reachability and block-reference accounting.",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		store, err := block.Open(fsckImagePath)
		if err != nil {
			return fmt.Errorf("opening %q: %w", fsckImagePath, err)
		}
		defer store.Close()

		report, err := snapshot.Check(store)
		if err != nil {
			return err
		}

		fmt.Printf("reachable snapshots: %d\n", report.ReachableSnapshots)
		fmt.Printf("reachable shadows:   %d\n", report.ReachableShadows)
		if len(report.Leaked) > 0 {
			fmt.Printf("leaked blocks (in-use, unreferenced): %v\n", report.Leaked)
		}
		if len(report.Corrupt) > 0 {
			fmt.Printf("corrupt blocks (referenced but marked free): %v\n", report.Corrupt)
		}
		if len(report.Leaked) == 0 && len(report.Corrupt) == 0 {
			fmt.Println("clean")
			return nil
		}
		if fsckFix {
			if len(report.Corrupt) > 0 {
				return fmt.Errorf("refusing to --fix: %d corrupt block(s) need repair, not reclamation", len(report.Corrupt))
			}
			n, err := snapshot.Reclaim(store, report)
			if err != nil {
				return fmt.Errorf("reclaiming leaked blocks: %w", err)
			}
			fmt.Printf("reclaimed %d block(s)\n", n)
		}
		return nil
	},
}

func init() {
	fsckCmd.Flags().StringVar(&fsckImagePath, "image", "snapfs.img", "Disk image to check.")
	fsckCmd.Flags().BoolVar(&fsckFix, "fix", false, "Free leaked blocks found by the check. Refuses if any corrupt blocks are also found.")
	rootCmd.AddCommand(fsckCmd)
}
