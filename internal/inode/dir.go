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

package inode

import (
	"strings"

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/fserrors"
)

// SnapshotDirName is the reserved directory name holding snapshot
// machinery: cfg, header files, and shadow inodes.
const SnapshotDirName = ".snapshots"

// recordsPerBlock is how many 256-byte File records a regular directory
// data block packs.
const recordsPerBlock = block.Size / block.InodeSize

// Root decodes the root directory inode embedded in the superblock.
func Root(store *block.Store) *Inode {
	sb := store.Superblock()
	return Decode(store, Location{Superblock: true}, sb.RootDirInode[:])
}

// At decodes the record at an arbitrary Location, used both for regular
// packed directory slots and for the dedicated single-record blocks the
// four superblock pointer slots reference.
func At(store *block.Store, loc Location) *Inode {
	buf := store.DiskAddr(loc.DirBlock)
	return Decode(store, loc, buf[loc.Offset:loc.Offset+block.InodeSize])
}

func (dir *Inode) recordBuf(loc Location) []byte {
	buf := dir.store.DiskAddr(loc.DirBlock)
	return buf[loc.Offset : loc.Offset+block.InodeSize]
}

// iterSlots invokes fn for every inode-record slot currently allocated to
// dir's content, stopping early once fn returns true.
func (dir *Inode) iterSlots(fn func(loc Location, buf []byte) bool) error {
	nb := numBlocks(dir.Size)
	for fb := uint32(0); fb < nb; fb++ {
		slot, err := dir.blockWalk(fb, false)
		if err != nil {
			return err
		}
		bno := slot.get()
		if bno == 0 {
			continue
		}
		buf := dir.store.DiskAddr(bno)
		for i := 0; i < recordsPerBlock; i++ {
			off := i * block.InodeSize
			if fn(Location{DirBlock: bno, Offset: off}, buf[off:off+block.InodeSize]) {
				return nil
			}
		}
	}
	return nil
}

// DirLookup scans dir's records for an exact name match.
func (dir *Inode) DirLookup(name string) (*Inode, error) {
	if !dir.IsDir() {
		return nil, fserrors.Invalf("inode.DirLookup", "%q is not a directory", dir.Name)
	}
	var found *Inode
	dir.iterSlots(func(loc Location, buf []byte) bool {
		if buf[0] == 0 {
			return false
		}
		cand := Decode(dir.store, loc, buf)
		if cand.Name == name {
			found = cand
			return true
		}
		return false
	})
	if found == nil {
		return nil, fserrors.NotFoundf("inode.DirLookup", "%q not found", name)
	}
	return found, nil
}

// ListChildren returns every occupied record in dir, used by the fsck
// block-reachability walk.
func ListChildren(dir *Inode) ([]*Inode, error) {
	if !dir.IsDir() {
		return nil, fserrors.Invalf("inode.ListChildren", "%q is not a directory", dir.Name)
	}
	var out []*Inode
	err := dir.iterSlots(func(loc Location, buf []byte) bool {
		if buf[0] == 0 {
			return false
		}
		out = append(out, Decode(dir.store, loc, buf))
		return false
	})
	return out, err
}

// DirAlloc returns the first free slot in dir, extending dir by one block
// if none exists, and returns it decoded as a zeroed record.
func (dir *Inode) DirAlloc() (*Inode, error) {
	if !dir.IsDir() {
		return nil, fserrors.Invalf("inode.DirAlloc", "%q is not a directory", dir.Name)
	}

	var slotLoc Location
	foundSlot := false
	dir.iterSlots(func(loc Location, buf []byte) bool {
		if buf[0] == 0 {
			slotLoc = loc
			foundSlot = true
			return true
		}
		return false
	})

	if !foundSlot {
		oldSize := dir.Size
		if err := dir.SetSize(oldSize + block.Size); err != nil {
			return nil, err
		}
		fb := uint32(oldSize / block.Size)
		slot, err := dir.blockWalk(fb, false)
		if err != nil {
			return nil, err
		}
		slotLoc = Location{DirBlock: slot.get(), Offset: 0}
	}

	empty := &Inode{store: dir.store, loc: slotLoc}
	empty.Save()
	dir.store.FlushBlock(dir.store.DiskAddr(slotLoc.DirBlock))
	return Decode(dir.store, slotLoc, dir.recordBuf(slotLoc)), nil
}

// CreateChild validates name, rejects a collision with FILE_EXISTS, and
// otherwise allocates a fresh child record of the given type.
func (dir *Inode) CreateChild(name string, typ Type) (*Inode, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if _, err := dir.DirLookup(name); err == nil {
		return nil, fserrors.FileExistsf("inode.CreateChild", "%q already exists", name)
	}
	child, err := dir.DirAlloc()
	if err != nil {
		return nil, err
	}
	child.Name = name
	child.Type = typ
	child.Size = 0
	child.Save()
	if err := child.Flush(); err != nil {
		return nil, err
	}
	return child, nil
}

// Remove truncates name's content to zero and clears its slot.
func (dir *Inode) Remove(name string) error {
	target, err := dir.DirLookup(name)
	if err != nil {
		return err
	}
	if err := target.SetSize(0); err != nil {
		return err
	}
	target.Name = ""
	target.Save()
	return target.Flush()
}

// WalkPath resolves a slash-delimited path from the filesystem root,
// returning the enclosing directory and either the resolved file or, if
// the last component is absent, a nil file (so the caller may create it).
// Every component but the last must exist and be a directory.
func WalkPath(store *block.Store, path string) (dir *Inode, file *Inode, lastComponent string, err error) {
	trimmed := strings.TrimPrefix(path, "/")
	if trimmed == "" {
		return nil, nil, "", fserrors.BadPathf("inode.WalkPath", "empty path")
	}

	parts := strings.Split(trimmed, "/")
	cur := Root(store)
	for i, part := range parts {
		if part == "" || len(part) > MaxNameLen {
			return nil, nil, "", fserrors.BadPathf("inode.WalkPath", "invalid path component %q", part)
		}
		if i == len(parts)-1 {
			f, lookupErr := cur.DirLookup(part)
			if lookupErr != nil {
				return cur, nil, part, nil
			}
			return cur, f, part, nil
		}
		next, lookupErr := cur.DirLookup(part)
		if lookupErr != nil {
			return nil, nil, "", fserrors.NotFoundf("inode.WalkPath", "path component %q not found", part)
		}
		if !next.IsDir() {
			return nil, nil, "", fserrors.NotFoundf("inode.WalkPath", "path component %q is not a directory", part)
		}
		cur = next
	}
	return nil, nil, "", fserrors.Invalf("inode.WalkPath", "unreachable")
}

// NewDedicated allocates a whole block devoted to a single record (used
// for the four superblock-pointer artifacts, which are looked up directly
// by blockno rather than by path) and returns both the decoded record and
// its blockno.
func NewDedicated(store *block.Store, name string, typ Type) (*Inode, block.Blockno, error) {
	bno, err := store.AllocBlock()
	if err != nil {
		return nil, 0, err
	}
	buf := store.DiskAddr(bno)
	for i := range buf {
		buf[i] = 0
	}
	loc := Location{DirBlock: bno, Offset: 0}
	ino := &Inode{store: store, loc: loc, Name: name, Type: typ}
	ino.Save()
	if err := store.FlushBlock(buf); err != nil {
		return nil, 0, err
	}
	return ino, bno, nil
}
