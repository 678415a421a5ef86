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

package cow

import (
	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/cfg"
	"github.com/snapfs-project/snapfs/internal/inode"
	"github.com/snapfs-project/snapfs/internal/snapshot"
)

// Read, Write, SetSize and Flush are the single, resolver-parameterised
// operations that replace the source's pure_read/pure_write/
// pure_set_size/pure_flush duplication: one code path, dispatched through
// whichever Resolver the caller supplies (IdentityResolver for internal
// header I/O, SnapshotResolver for client requests).

func Read(store *block.Store, r Resolver, f *inode.Inode, s *snapshot.Node, p []byte, off uint64) (int, error) {
	target, err := r.ResolveForRead(store, f, s)
	if err != nil {
		return 0, err
	}
	return target.ReadAt(p, off)
}

func Write(store *block.Store, r Resolver, scfg cfg.SnapshotConfig, f *inode.Inode, s *snapshot.Node, p []byte, off uint64) (int, error) {
	target, err := r.ResolveForWrite(store, f, s, scfg)
	if err != nil {
		return 0, err
	}
	return target.WriteAt(p, off)
}

func SetSize(store *block.Store, r Resolver, scfg cfg.SnapshotConfig, f *inode.Inode, s *snapshot.Node, newSize uint64) error {
	target, err := r.ResolveForWrite(store, f, s, scfg)
	if err != nil {
		return err
	}
	return target.SetSize(newSize)
}

// Flush resolves for read, not write: flushing never needs to materialize
// a shadow that no write has touched.
func Flush(store *block.Store, r Resolver, f *inode.Inode, s *snapshot.Node) error {
	target, err := r.ResolveForRead(store, f, s)
	if err != nil {
		return err
	}
	return target.Flush()
}
