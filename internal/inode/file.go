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
	"encoding/binary"

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/fserrors"
)

// blockSlot is the indirection block_walk resolves to: a getter/setter
// pair standing in for "a pointer to the slot holding that file block's
// disk blockno" (a literal pointer doesn't work once the slot may live
// inside an indirect block mapped separately from the inode struct).
type blockSlot struct {
	get func() block.Blockno
	set func(block.Blockno)
}

func numBlocks(size uint64) uint32 {
	return uint32((size + block.Size - 1) / block.Size)
}

// blockWalk locates the slot holding fileBno's disk blockno. For
// fileBno < NDirect the slot is inside the inode record itself; for
// NDirect <= fileBno < NDirect+NIndirect it lives in the indirect block,
// allocated (and zeroed) on first use when alloc is true. Out-of-range
// returns INVAL.
func (ino *Inode) blockWalk(fileBno uint32, alloc bool) (*blockSlot, error) {
	if fileBno < block.NDirect {
		idx := fileBno
		return &blockSlot{
			get: func() block.Blockno { return ino.Direct[idx] },
			set: func(b block.Blockno) {
				ino.Direct[idx] = b
				ino.Save()
			},
		}, nil
	}

	indirectIdx := fileBno - block.NDirect
	if indirectIdx >= block.NIndirect {
		return nil, fserrors.Invalf("inode.blockWalk", "file block %d out of range", fileBno)
	}

	if ino.Indirect == 0 {
		if !alloc {
			return &blockSlot{
				get: func() block.Blockno { return 0 },
				set: func(block.Blockno) {},
			}, nil
		}
		bno, err := ino.store.AllocBlock()
		if err != nil {
			return nil, err
		}
		buf := ino.store.DiskAddr(bno)
		for i := range buf {
			buf[i] = 0
		}
		ino.store.FlushBlock(buf)
		ino.Indirect = bno
		ino.Save()
	}

	indBuf := ino.store.DiskAddr(ino.Indirect)
	return &blockSlot{
		get: func() block.Blockno { return binary.LittleEndian.Uint32(indBuf[4*indirectIdx:]) },
		set: func(b block.Blockno) {
			binary.LittleEndian.PutUint32(indBuf[4*indirectIdx:], b)
			ino.store.FlushBlock(indBuf)
		},
	}, nil
}

// GetBlock returns the mapped address of file block fileBno, allocating a
// fresh zeroed data block on first touch. Returns NO_DISK if allocation
// fails.
func (ino *Inode) GetBlock(fileBno uint32) ([]byte, error) {
	slot, err := ino.blockWalk(fileBno, true)
	if err != nil {
		return nil, err
	}
	bno := slot.get()
	if bno == 0 {
		nb, err := ino.store.AllocBlock()
		if err != nil {
			return nil, err
		}
		buf := ino.store.DiskAddr(nb)
		for i := range buf {
			buf[i] = 0
		}
		ino.store.FlushBlock(buf)
		slot.set(nb)
		bno = nb
	}
	return ino.store.DiskAddr(bno), nil
}

// SetSize allocates or truncates trailing data blocks to match newSize,
// freeing the indirect block entirely once the file no longer needs it.
func (ino *Inode) SetSize(newSize uint64) error {
	oldBlocks := numBlocks(ino.Size)
	newBlocks := numBlocks(newSize)

	if newBlocks < oldBlocks {
		for fb := newBlocks; fb < oldBlocks; fb++ {
			slot, err := ino.blockWalk(fb, false)
			if err != nil {
				continue
			}
			if bno := slot.get(); bno != 0 {
				ino.store.FreeBlock(bno)
				slot.set(0)
			}
		}
	} else if newBlocks > oldBlocks {
		for fb := oldBlocks; fb < newBlocks; fb++ {
			if _, err := ino.GetBlock(fb); err != nil {
				return err
			}
		}
	}

	if newSize <= uint64(block.NDirect)*block.Size && ino.Indirect != 0 {
		ino.store.FreeBlock(ino.Indirect)
		ino.Indirect = 0
	}

	ino.Size = newSize
	ino.Save()
	return nil
}

// ReadAt copies up to len(p) bytes starting at off into p, stopping at
// ino.Size, following the "pure_read" contract: this never consults
// snapshots, it only ever reads the bytes this exact inode owns.
func (ino *Inode) ReadAt(p []byte, off uint64) (int, error) {
	if off >= ino.Size {
		return 0, nil
	}
	end := off + uint64(len(p))
	if end > ino.Size {
		end = ino.Size
	}
	n := 0
	for off+uint64(n) < end {
		fileBno := uint32((off + uint64(n)) / block.Size)
		inBlockOff := (off + uint64(n)) % block.Size
		slot, err := ino.blockWalk(fileBno, false)
		if err != nil {
			return n, err
		}
		bno := slot.get()
		chunk := end - (off + uint64(n))
		if max := block.Size - inBlockOff; chunk > max {
			chunk = max
		}
		if bno == 0 {
			for i := uint64(0); i < chunk; i++ {
				p[n] = 0
				n++
			}
			continue
		}
		src := ino.store.DiskAddr(bno)
		copy(p[n:uint64(n)+chunk], src[inBlockOff:uint64(inBlockOff)+chunk])
		n += int(chunk)
	}
	return n, nil
}

// WriteAt extends the file via SetSize when the write reaches past the
// current size ("pure_write extends the target via pure_set_size"), then
// copies bytes into the target blocks, flushing each one touched.
func (ino *Inode) WriteAt(p []byte, off uint64) (int, error) {
	end := off + uint64(len(p))
	if end > ino.Size {
		if err := ino.SetSize(end); err != nil {
			return 0, err
		}
	}

	n := 0
	for uint64(n) < uint64(len(p)) {
		fileBno := uint32((off + uint64(n)) / block.Size)
		inBlockOff := (off + uint64(n)) % block.Size
		dst, err := ino.GetBlock(fileBno)
		if err != nil {
			return n, err
		}
		chunk := uint64(len(p)) - uint64(n)
		if max := block.Size - inBlockOff; chunk > max {
			chunk = max
		}
		copy(dst[inBlockOff:inBlockOff+chunk], p[n:n+int(chunk)])
		ino.store.FlushBlock(dst)
		n += int(chunk)
	}
	return n, nil
}

// Flush is pure_flush: persist the inode's record and every data block it
// currently owns. Callers that already know which blocks they touched can
// flush more narrowly; Flush is the conservative whole-file variant used
// by the FLUSH request.
func (ino *Inode) Flush() error {
	if err := ino.flushOwnRecord(); err != nil {
		return err
	}
	nb := numBlocks(ino.Size)
	for fb := uint32(0); fb < nb; fb++ {
		slot, err := ino.blockWalk(fb, false)
		if err != nil {
			return err
		}
		if bno := slot.get(); bno != 0 {
			if err := ino.store.FlushBlock(ino.store.DiskAddr(bno)); err != nil {
				return err
			}
		}
	}
	if ino.Indirect != 0 {
		if err := ino.store.FlushBlock(ino.store.DiskAddr(ino.Indirect)); err != nil {
			return err
		}
	}
	return nil
}

func (ino *Inode) flushOwnRecord() error {
	if ino.loc.Superblock {
		return ino.store.FlushBlock(ino.store.DiskAddr(1))
	}
	return ino.store.FlushBlock(ino.store.DiskAddr(ino.loc.DirBlock))
}
