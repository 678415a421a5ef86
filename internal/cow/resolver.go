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

// Package cow is the heart of the core: it decides, for every read or
// write of a live file, which on-disk inode actually holds the bytes for
// the current working snapshot, materializing a private copy on first
// write ("create-and-copy").
package cow

import (
	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/cfg"
	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/snapfs-project/snapfs/internal/inode"
	"github.com/snapfs-project/snapfs/internal/snapshot"
)

// Resolver picks the inode a client operation on live file f should
// actually touch under working snapshot s. internal/fsserver uses
// SnapshotResolver for every client-facing request; snapshot/lifecycle
// code uses IdentityResolver for its own header and cfg I/O, which must
// never be shadowed.
type Resolver interface {
	ResolveForRead(store *block.Store, f *inode.Inode, s *snapshot.Node) (*inode.Inode, error)
	ResolveForWrite(store *block.Store, f *inode.Inode, s *snapshot.Node, scfg cfg.SnapshotConfig) (*inode.Inode, error)
}

// IdentityResolver always returns f unchanged; used for internal I/O that
// must bypass the snapshot chain entirely.
type IdentityResolver struct{}

func (IdentityResolver) ResolveForRead(_ *block.Store, f *inode.Inode, _ *snapshot.Node) (*inode.Inode, error) {
	return f, nil
}

func (IdentityResolver) ResolveForWrite(_ *block.Store, f *inode.Inode, _ *snapshot.Node, _ cfg.SnapshotConfig) (*inode.Inode, error) {
	return f, nil
}

// SnapshotResolver is the CoW resolver proper.
type SnapshotResolver struct{}

func shadowPrefix(shadowName string) string {
	for i := 0; i < len(shadowName); i++ {
		if shadowName[i] == inode.Separator {
			return shadowName[:i]
		}
	}
	return shadowName
}

// strcmpShadow compares only the prefix of shadowName before SEP to name.
func strcmpShadow(shadowName, name string) bool {
	return shadowPrefix(shadowName) == name
}

func shadowIn(store *block.Store, node *snapshot.Node, name string) (*inode.Inode, bool) {
	for _, bno := range node.Hdr.ModifiedFiles {
		shadow := inode.At(store, inode.Location{DirBlock: bno, Offset: 0})
		if strcmpShadow(shadow.Name, name) {
			return shadow, true
		}
	}
	return nil, false
}

// ResolveForRead walks the chain s -> s.Prev -> ... -> root looking for a
// shadow of f; the first one found walking outward from s wins. If none
// exists anywhere in the chain, f itself (the live inode) is current.
// Never allocates; fails only if a snapshot header cannot be read.
func (SnapshotResolver) ResolveForRead(store *block.Store, f *inode.Inode, s *snapshot.Node) (*inode.Inode, error) {
	cur := s
	for {
		if shadow, ok := shadowIn(store, cur, f.Name); ok {
			return shadow, nil
		}
		if cur.Hdr.Prev == 0 {
			return f, nil
		}
		parent, err := snapshot.Load(store, cur.Hdr.Prev)
		if err != nil {
			return nil, fserrors.Invalf("cow.ResolveForRead", "unreadable snapshot header: %v", err)
		}
		cur = parent
	}
}

// ResolveForWrite returns the shadow already present on s if there is one
// (writes always go there); otherwise it materializes a fresh shadow by
// create-and-copy from whatever ResolveForRead would have found (the live
// file, or a deeper ancestor's read-only shadow).
func (r SnapshotResolver) ResolveForWrite(store *block.Store, f *inode.Inode, s *snapshot.Node, scfg cfg.SnapshotConfig) (*inode.Inode, error) {
	if shadow, ok := shadowIn(store, s, f.Name); ok {
		return shadow, nil
	}

	source, err := r.ResolveForRead(store, f, s)
	if err != nil {
		return nil, err
	}

	shadowName := f.Name + string(rune(inode.Separator)) + s.Ino.Name
	if len(shadowName) > inode.MaxNameLen {
		return nil, fserrors.BadPathf("cow.ResolveForWrite", "shadow name for %q under %q too long", f.Name, s.Ino.Name)
	}
	shadowIno, shadowBno, err := inode.NewDedicated(store, shadowName, inode.TypeRegular)
	if err != nil {
		return nil, err
	}

	if err := copyContent(shadowIno, source); err != nil {
		return nil, err
	}

	// The ModifiedFiles append is the last step, so a crash between the
	// copy and here leaves a ghost shadow rather than a half-materialized
	// one the resolver could ever return (see cmd/snapctl fsck).
	if err := snapshot.AppendModifiedFile(s, shadowBno, scfg.MaxFiles); err != nil {
		return nil, err
	}

	return shadowIno, nil
}

func copyContent(dst, src *inode.Inode) error {
	if err := dst.SetSize(src.Size); err != nil {
		return err
	}
	buf := make([]byte, block.Size)
	var off uint64
	for off < src.Size {
		n := uint64(len(buf))
		if src.Size-off < n {
			n = src.Size - off
		}
		if _, err := src.ReadAt(buf[:n], off); err != nil {
			return err
		}
		if _, err := dst.WriteAt(buf[:n], off); err != nil {
			return err
		}
		off += n
	}
	return nil
}
