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

package snapshot

import (
	"bytes"
	"encoding/gob"

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/inode"
)

// ConfigFile is ".snapshots/cfg": a durable identifier for the working
// snapshot's base across mount cycles. CurrentSnapshotName always names a
// promoted (non-working) snapshot; the placeholder working leaf under it
// is rebuilt fresh on every mount by Bootstrap.
type ConfigFile struct {
	RootSnapshotName    string
	CurrentSnapshotName string
}

func loadConfig(store *block.Store, bno block.Blockno) (*ConfigFile, error) {
	ino := inode.At(store, inode.Location{DirBlock: bno, Offset: 0})
	buf := make([]byte, ino.Size)
	if _, err := ino.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	var c ConfigFile
	if len(buf) > 0 {
		if err := gob.NewDecoder(bytes.NewReader(buf)).Decode(&c); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func saveConfig(store *block.Store, bno block.Blockno, c *ConfigFile) error {
	ino := inode.At(store, inode.Location{DirBlock: bno, Offset: 0})
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return err
	}
	if err := ino.SetSize(uint64(buf.Len())); err != nil {
		return err
	}
	if _, err := ino.WriteAt(buf.Bytes(), 0); err != nil {
		return err
	}
	return ino.Flush()
}
