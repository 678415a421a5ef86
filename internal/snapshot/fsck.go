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
	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/snapfs-project/snapfs/internal/inode"
)

// bfsQueue is a minimal FIFO used to walk the snapshot graph breadth-first,
// common.Queue: Check walks the snapshot graph level by level rather than
// recursively, so a pathological chain can't blow the Go stack the way a
// naive recursive walk would.
type bfsQueue struct {
	items []block.Blockno
	head  int
}

func (q *bfsQueue) push(b block.Blockno) { q.items = append(q.items, b) }
func (q *bfsQueue) isEmpty() bool        { return q.head >= len(q.items) }
func (q *bfsQueue) pop() block.Blockno {
	b := q.items[q.head]
	q.head++
	return b
}

// Report is the result of a full-filesystem Check: every block reachable
// from either the live directory tree or the snapshot graph, the bitmap's
// idea of which blocks are free, and where the two disagree.
type Report struct {
	ReachableSnapshots int
	ReachableShadows   int

	// Leaked holds blocks no reachable inode references but the bitmap
	// marks in-use: space a crash between CoW's copy and its
	// ModifiedFiles append can orphan a shadow before it is ever linked in,
	// or could in principle be caused by a bug elsewhere.
	Leaked []block.Blockno

	// Corrupt holds blocks some reachable inode references that the
	// bitmap marks free: a reference into space the allocator would be
	// free to hand out to something else, always a bug (FATAL if ever
	// hit during normal operation).
	Corrupt []block.Blockno
}

// Check walks the snapshot graph breadth-first to verify that every
// non-root snapshot's Prev-chain to root is finite, acyclic, and that the
// node is listed in its parent's Next[], then walks every block the live
// tree and the snapshot graph reference and compares that set against the
// free-block bitmap.
func Check(store *block.Store) (*Report, error) {
	sb := store.Superblock()
	root := sb.RootSnapshotFile()

	referenced := map[block.Blockno]bool{}
	referenced[1] = true // superblock
	for bno := block.Blockno(2); bno < store.FirstDataBlock(); bno++ {
		referenced[bno] = true // bitmap blocks themselves
	}
	// The snapshot-dir and cfg inodes live in dedicated blocks; the cfg
	// file also owns content blocks holding the encoded record.
	for _, bno := range []block.Blockno{sb.SnapshotDir(), sb.SnapshotConfigFile()} {
		if bno == 0 {
			continue
		}
		referenced[bno] = true
		ino := inode.At(store, inode.Location{DirBlock: bno, Offset: 0})
		referenceInodeBlocks(store, ino, referenced)
	}

	seenSnapshots := map[block.Blockno]bool{}
	reachableShadows := map[block.Blockno]bool{}

	q := &bfsQueue{}
	q.push(root)
	seenSnapshots[root] = true
	referenced[root] = true

	for !q.isEmpty() {
		bno := q.pop()
		n, err := Load(store, bno)
		if err != nil {
			return nil, fserrors.Invalf("snapshot.Check", "unreadable snapshot header at block %d: %v", bno, err)
		}
		referenceInodeBlocks(store, n.Ino, referenced)
		if n.Hdr.OldBitmap != 0 {
			referenced[n.Hdr.OldBitmap] = true
			ob := inode.At(store, inode.Location{DirBlock: n.Hdr.OldBitmap, Offset: 0})
			referenceInodeBlocks(store, ob, referenced)
		}

		for _, childBno := range n.Hdr.Next {
			if seenSnapshots[childBno] {
				return nil, fserrors.Invalf("snapshot.Check", "cycle detected: block %d reachable twice", childBno)
			}
			child, err := Load(store, childBno)
			if err != nil {
				return nil, err
			}
			if child.Hdr.Prev != bno {
				return nil, fserrors.Invalf("snapshot.Check", "block %d is not listed in its declared parent's Next[]", childBno)
			}
			seenSnapshots[childBno] = true
			referenced[childBno] = true
			q.push(childBno)
		}

		for _, shadowBno := range n.Hdr.ModifiedFiles {
			reachableShadows[shadowBno] = true
			referenced[shadowBno] = true
			shadow := inode.At(store, inode.Location{DirBlock: shadowBno, Offset: 0})
			referenceInodeBlocks(store, shadow, referenced)
		}
	}

	rootDir := inode.Root(store)
	referenceDirTree(store, rootDir, referenced)

	report := &Report{
		ReachableSnapshots: len(seenSnapshots),
		ReachableShadows:   len(reachableShadows),
	}
	for bno := store.FirstDataBlock(); bno < store.NBlocks(); bno++ {
		free := store.IsFree(bno)
		if free && referenced[bno] {
			report.Corrupt = append(report.Corrupt, bno)
		}
		if !free && !referenced[bno] {
			report.Leaked = append(report.Leaked, bno)
		}
	}
	return report, nil
}

// referenceInodeBlocks marks every data/indirect block a single inode
// owns (not its children, if it is a directory).
func referenceInodeBlocks(store *block.Store, ino *inode.Inode, referenced map[block.Blockno]bool) {
	for _, bno := range ino.Direct {
		if bno != 0 {
			referenced[bno] = true
		}
	}
	if ino.Indirect != 0 {
		referenced[ino.Indirect] = true
		buf := store.DiskAddr(ino.Indirect)
		for i := 0; i < block.NIndirect; i++ {
			bno := leUint32(buf[4*i:])
			if bno != 0 {
				referenced[bno] = true
			}
		}
	}
}

func leUint32(b []byte) block.Blockno {
	return block.Blockno(b[0]) | block.Blockno(b[1])<<8 | block.Blockno(b[2])<<16 | block.Blockno(b[3])<<24
}

// Reclaim frees every block report.Leaked names and syncs the bitmap to
// disk, mirroring the list-then-delete shape of a stale-object sweep: list
// the orphans first (Check), then remove exactly that set, nothing
// discovered after the list is touched. Returns the number of blocks
// freed. Callers should re-run Check afterward rather than trust the
// Report they passed in, since Reclaim mutates the bitmap it was computed
// from.
func Reclaim(store *block.Store, report *Report) (int, error) {
	for _, bno := range report.Leaked {
		store.FreeBlock(bno)
	}
	if err := store.Sync(); err != nil {
		return 0, err
	}
	return len(report.Leaked), nil
}

// referenceDirTree walks a directory's packed records, marking the
// directory's own blocks and recursing into every child (file content
// blocks, or nested directories).
func referenceDirTree(store *block.Store, dir *inode.Inode, referenced map[block.Blockno]bool) {
	referenceInodeBlocks(store, dir, referenced)
	children, err := inode.ListChildren(dir)
	if err != nil {
		return
	}
	for _, child := range children {
		if child.IsDir() {
			referenceDirTree(store, child, referenced)
		} else {
			referenceInodeBlocks(store, child, referenced)
		}
	}
}
