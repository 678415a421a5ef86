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

// Package inode implements the File record layer: 256-byte metadata
// records with direct/indirect block pointers, directories as arrays of
// those records, and path resolution. It knows nothing about snapshots or
// copy-on-write; see internal/cow for the layer that decides which inode a
// given (path, snapshot) pair actually resolves to.
package inode

import (
	"encoding/binary"

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/fserrors"
)

// MaxNameLen is the longest name (excluding the NUL terminator) a single
// path component may have.
const MaxNameLen = block.InodeSize/2 - 1

const nameFieldLen = MaxNameLen + 1

// Type distinguishes a regular file from a directory.
type Type uint8

const (
	TypeRegular Type = iota
	TypeDir
)

// on-disk layout of a 256-byte File record.
const (
	offName     = 0
	offSize     = offName + nameFieldLen
	offType     = offSize + 8
	offDirect   = offType + 1
	offIndirect = offDirect + block.NDirect*4
	recordEnd   = offIndirect + 4
)

func init() {
	if recordEnd > block.InodeSize {
		panic("inode: record layout overflows InodeSize")
	}
}

// Location pins an Inode to the byte range that backs it on disk: either
// the superblock's embedded root-directory slot, or an offset inside a
// directory's data blocks. Inode.Save writes back through this, and
// Inode.Flush flushes the owning block.
type Location struct {
	Superblock bool
	DirBlock   block.Blockno
	Offset     int
}

// Inode is a decoded File record together with the store and location it
// was read from, so callers can mutate fields and Save/Flush them back.
type Inode struct {
	store *block.Store
	loc   Location

	Name     string
	Size     uint64
	Type     Type
	Direct   [block.NDirect]block.Blockno
	Indirect block.Blockno
}

// Decode parses a 256-byte record at loc within store.
func Decode(store *block.Store, loc Location, buf []byte) *Inode {
	ino := &Inode{store: store, loc: loc}
	ino.Name = decodeName(buf[offName : offName+nameFieldLen])
	ino.Size = binary.LittleEndian.Uint64(buf[offSize:])
	ino.Type = Type(buf[offType])
	for i := 0; i < block.NDirect; i++ {
		ino.Direct[i] = binary.LittleEndian.Uint32(buf[offDirect+4*i:])
	}
	ino.Indirect = binary.LittleEndian.Uint32(buf[offIndirect:])
	return ino
}

func decodeName(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

// slot returns the raw 256-byte window this inode is backed by.
func (ino *Inode) slot() []byte {
	if ino.loc.Superblock {
		sb := ino.store.Superblock()
		return sb.RootDirInode[:]
	}
	buf := ino.store.DiskAddr(ino.loc.DirBlock)
	return buf[ino.loc.Offset : ino.loc.Offset+block.InodeSize]
}

// encode serializes ino into buf (which must be InodeSize bytes).
func (ino *Inode) encode(buf []byte) {
	for i := range buf[:recordEnd] {
		buf[i] = 0
	}
	copy(buf[offName:offName+nameFieldLen], ino.Name)
	binary.LittleEndian.PutUint64(buf[offSize:], ino.Size)
	buf[offType] = byte(ino.Type)
	for i := 0; i < block.NDirect; i++ {
		binary.LittleEndian.PutUint32(buf[offDirect+4*i:], ino.Direct[i])
	}
	binary.LittleEndian.PutUint32(buf[offIndirect:], ino.Indirect)
}

// Save writes ino's current field values back to its backing slot. It does
// not flush; call Flush (or let the caller batch a flush) once all related
// mutations for an operation are in.
func (ino *Inode) Save() {
	if ino.loc.Superblock {
		sb := ino.store.Superblock()
		ino.encode(sb.RootDirInode[:])
		ino.store.PutSuperblock(sb)
		return
	}
	ino.encode(ino.slot())
}

// IsDir reports whether this record describes a directory.
func (ino *Inode) IsDir() bool { return ino.Type == TypeDir }

// Loc returns the location this inode's record is backed by, used by
// internal/snapshot to build FileRefs for created_files[] bookkeeping.
func (ino *Inode) Loc() Location { return ino.loc }

// ValidateName rejects names that are too long or that contain the shadow
// separator byte, enforced at create/open time.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLen {
		return fserrors.BadPathf("inode.ValidateName", "name %q has invalid length", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == Separator {
			return fserrors.BadPathf("inode.ValidateName", "name %q contains the reserved shadow separator", name)
		}
	}
	return nil
}

// Separator is the reserved byte used to join an original name to a
// snapshot name inside a shadow inode's Name field. It may never appear in
// a user-chosen name.
const Separator = '\x01'
