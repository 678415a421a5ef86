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

// Package snapshot implements the branching snapshot graph and its
// lifecycle operations (create, accept, delete, list). A snapshot node is
// stored the same way any other file is: as an inode.Inode whose content
// blocks hold a gob-encoded Header at offset 0. Snapshot nodes and shadow
// inodes always live in dedicated, single-record blocks (via
// inode.NewDedicated) so that a bare blockno fully identifies them —
// ordinary root-directory files stay packed via inode.DirAlloc and are
// referenced by the (block, offset) pair in FileRef instead.
package snapshot

import (
	"bytes"
	"encoding/gob"
	"time"

	"github.com/google/uuid"
	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/snapfs-project/snapfs/internal/inode"
)

// RootSnapshotName is the permanent root of the snapshot graph.
const RootSnapshotName = "root"

// WorkingPlaceholderName is the reserved name a working snapshot carries
// between promotions. It starts with the shadow separator byte, which
// ValidateName forbids in user names, so no user-chosen snapshot name can
// collide with it.
const WorkingPlaceholderName = "\x01working"

// FileRef addresses a packed inode record inside a directory's content
// blocks: the (block, offset) pair standing in for blockno_t where a bare
// blockno isn't enough (ordinary files are packed many-per-block; snapshot
// nodes and shadows are not).
type FileRef struct {
	Block  block.Blockno
	Offset uint32
}

func refOf(ino *inode.Inode) FileRef {
	loc := ino.Loc()
	return FileRef{Block: loc.DirBlock, Offset: uint32(loc.Offset)}
}

// Header is the persisted snapshot-node record.
// OldBitmap is carried for on-disk format compatibility but is never
// consulted by Accept — see DESIGN.md.
type Header struct {
	// ID is a stable identifier that survives the rename Delete performs
	// on soft-deletion and any later Create that reuses the freed name;
	// logs and snapctl list correlate a node across such a rename by ID,
	// not by (reusable) Name.
	ID        string
	Comment   string
	Date      time.Time
	IsDeleted bool
	OldBitmap block.Blockno

	Prev block.Blockno
	Next []block.Blockno

	ModifiedFiles []block.Blockno
	CreatedFiles  []FileRef
}

// Node pairs a decoded Header with the inode.Inode carrying it.
type Node struct {
	Ino *inode.Inode
	Hdr *Header
	Bno block.Blockno
}

func encodeHeader(h *Header) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeHeader(data []byte) (*Header, error) {
	var h Header
	if len(data) == 0 {
		return &Header{}, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Save re-encodes n.Hdr into n.Ino's content and flushes both.
func (n *Node) Save() error {
	data, err := encodeHeader(n.Hdr)
	if err != nil {
		return err
	}
	if err := n.Ino.SetSize(uint64(len(data))); err != nil {
		return err
	}
	if _, err := n.Ino.WriteAt(data, 0); err != nil {
		return err
	}
	return n.Ino.Flush()
}

// Load reads the snapshot node whose dedicated record lives at bno.
func Load(store *block.Store, bno block.Blockno) (*Node, error) {
	if bno == 0 {
		return nil, fserrors.NotFoundf("snapshot.Load", "blockno 0 is never a snapshot node")
	}
	ino := inode.At(store, inode.Location{DirBlock: bno, Offset: 0})
	buf := make([]byte, ino.Size)
	if _, err := ino.ReadAt(buf, 0); err != nil {
		return nil, err
	}
	hdr, err := decodeHeader(buf)
	if err != nil {
		return nil, fserrors.Invalf("snapshot.Load", "corrupt header at block %d: %v", bno, err)
	}
	return &Node{Ino: ino, Hdr: hdr, Bno: bno}, nil
}

// NewNode allocates a fresh dedicated-block snapshot node named name.
func NewNode(store *block.Store, name string) (*Node, error) {
	ino, bno, err := inode.NewDedicated(store, name, inode.TypeRegular)
	if err != nil {
		return nil, err
	}
	n := &Node{Ino: ino, Hdr: &Header{ID: uuid.NewString()}, Bno: bno}
	if err := n.Save(); err != nil {
		return nil, err
	}
	return n, nil
}

// AppendModifiedFile records a newly materialized shadow's dedicated
// blockno in n's ModifiedFiles, bounded by maxFiles.
func AppendModifiedFile(n *Node, shadowBno block.Blockno, maxFiles int) error {
	if len(n.Hdr.ModifiedFiles) >= maxFiles {
		return fserrors.NoDiskf("snapshot.AppendModifiedFile", "modified_files capacity (%d) exceeded", maxFiles)
	}
	n.Hdr.ModifiedFiles = append(n.Hdr.ModifiedFiles, shadowBno)
	return n.Save()
}

// AppendCreatedFile records a newly created live file's (block, offset) in
// n's CreatedFiles, bounded by maxFiles.
func AppendCreatedFile(n *Node, created *inode.Inode, maxFiles int) error {
	if len(n.Hdr.CreatedFiles) >= maxFiles {
		return fserrors.NoDiskf("snapshot.AppendCreatedFile", "created_files capacity (%d) exceeded", maxFiles)
	}
	n.Hdr.CreatedFiles = append(n.Hdr.CreatedFiles, refOf(created))
	return n.Save()
}

// AddChild links child under parent's Next, bounded by maxBranches.
func AddChild(parent *Node, child *Node, maxBranches int) error {
	if len(parent.Hdr.Next) >= maxBranches {
		return fserrors.NoDiskf("snapshot.AddChild", "next[] capacity (%d) exceeded", maxBranches)
	}
	parent.Hdr.Next = append(parent.Hdr.Next, child.Bno)
	return parent.Save()
}

func detachChild(parent *Node, childBno block.Blockno) error {
	next := parent.Hdr.Next[:0]
	for _, bno := range parent.Hdr.Next {
		if bno != childBno {
			next = append(next, bno)
		}
	}
	parent.Hdr.Next = next
	return parent.Save()
}
