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

package block

import (
	"os"

	"github.com/snapfs-project/snapfs/internal/fserrors"
	"golang.org/x/sys/unix"
)

// Store maps a fixed-size disk image into an address window and exposes the
// free-block bitmap and superblock on top of it. The mapping is the single
// write path to persistent storage: every mutation goes through FlushBlock
// or Sync.
type Store struct {
	f       *os.File
	data    []byte
	nblocks uint32

	firstDataBlock uint32
	nbitmapBlocks  uint32
}

// Create initializes a new disk image at path with nblocks blocks, mounts
// it, and returns the open Store. The caller still owns higher-level
// bootstrap (root directory, .snapshots/) — Create only lays down the
// superblock and an all-free bitmap over the data region.
func Create(path string, nblocks uint32) (*Store, error) {
	if nblocks < 3 {
		return nil, fserrors.Invalf("block.Create", "nblocks %d too small", nblocks)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	size := int64(nblocks) * Size
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}

	s, err := mount(f, nblocks)
	if err != nil {
		f.Close()
		return nil, err
	}

	nbitmap := bitmapBlockCount(nblocks)
	s.nbitmapBlocks = nbitmap
	s.firstDataBlock = 2 + nbitmap

	sb := &Superblock{Magic: Magic, NBlocks: nblocks}
	s.putSuperblockRaw(sb)

	// Reserved blocks (0, superblock, bitmap itself) stay 0 = in use;
	// everything from firstDataBlock onward starts free.
	for bno := s.firstDataBlock; bno < nblocks; bno++ {
		s.setFree(bno)
	}
	for i := uint32(0); i < nbitmap; i++ {
		s.FlushBlock(s.DiskAddr(2 + i))
	}
	s.FlushBlock(s.DiskAddr(1))

	return s, nil
}

// Open mounts an existing disk image at path and validates its superblock.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() < 2*Size || fi.Size()%Size != 0 {
		f.Close()
		return nil, fserrors.Invalf("block.Open", "disk image %q has a non-block-aligned size", path)
	}
	nblocks := uint32(fi.Size() / Size)

	s, err := mount(f, nblocks)
	if err != nil {
		f.Close()
		return nil, err
	}

	sb := s.Superblock()
	if err := sb.validate(nblocks); err != nil {
		s.Close()
		return nil, err
	}
	s.nbitmapBlocks = bitmapBlockCount(nblocks)
	s.firstDataBlock = 2 + s.nbitmapBlocks
	return s, nil
}

func mount(f *os.File, nblocks uint32) (*Store, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(nblocks)*Size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &Store{f: f, data: data, nblocks: nblocks}, nil
}

// Close unmaps and closes the backing image.
func (s *Store) Close() error {
	if err := unix.Munmap(s.data); err != nil {
		return err
	}
	return s.f.Close()
}

// NBlocks returns the total block count of the mounted image.
func (s *Store) NBlocks() uint32 { return s.nblocks }

// FirstDataBlock returns the first blockno available for inode/data
// allocation, i.e. the block immediately following the bitmap.
func (s *Store) FirstDataBlock() uint32 { return s.firstDataBlock }

// DiskAddr maps a blockno onto its Size-byte window in the mmap'd image.
func (s *Store) DiskAddr(bno Blockno) []byte {
	off := int64(bno) * Size
	return s.data[off : off+Size]
}

// FlushBlock msyncs the given block's window back to the backing file. addr
// must be a slice previously returned by DiskAddr (or a sub-slice aligned
// to it).
func (s *Store) FlushBlock(addr []byte) error {
	return unix.Msync(addr, unix.MS_SYNC)
}

// Sync walks every block in [1, nblocks) and flushes it, the full-
// filesystem hammer behind the SYNC request.
func (s *Store) Sync() error {
	for bno := Blockno(1); bno < s.nblocks; bno++ {
		if err := s.FlushBlock(s.DiskAddr(bno)); err != nil {
			return err
		}
	}
	return nil
}

// Superblock decodes block 1.
func (s *Store) Superblock() *Superblock {
	return decodeSuperblock(s.DiskAddr(1))
}

// PutSuperblock encodes sb into block 1 and flushes it.
func (s *Store) PutSuperblock(sb *Superblock) {
	s.putSuperblockRaw(sb)
	s.FlushBlock(s.DiskAddr(1))
}

func (s *Store) putSuperblockRaw(sb *Superblock) {
	encodeSuperblock(s.DiskAddr(1), sb)
}

func (s *Store) setFree(bno Blockno) {
	bitmapBno := 2 + bno/BitsPerBlock
	buf := s.DiskAddr(bitmapBno)
	setBit(buf, bno%BitsPerBlock)
}

// AllocBlock performs a linear scan of the bitmap for the first free block,
// clears its bit, flushes the bitmap word containing that bit immediately
// (for durability), and returns the blockno. Returns NoDisk if the bitmap
// is exhausted.
func (s *Store) AllocBlock() (Blockno, error) {
	for bno := s.firstDataBlock; bno < s.nblocks; bno++ {
		bitmapBno := 2 + bno/BitsPerBlock
		buf := s.DiskAddr(bitmapBno)
		bit := bno % BitsPerBlock
		if bitIsSet(buf, bit) {
			clearBit(buf, bit)
			s.FlushBlock(buf)
			return bno, nil
		}
	}
	return 0, fserrors.NoDiskf("block.AllocBlock", "no free blocks among %d", s.nblocks)
}

// FreeBlock sets bno's bitmap bit but does not flush; the caller flushes
// when it next touches that bitmap word (or via Sync). Panics (FATAL) on
// blockno 0.
func (s *Store) FreeBlock(bno Blockno) {
	if bno == 0 {
		fserrors.Panic("block.FreeBlock", "attempt to free block 0")
	}
	bitmapBno := 2 + bno/BitsPerBlock
	buf := s.DiskAddr(bitmapBno)
	setBit(buf, bno%BitsPerBlock)
}

// IsFree reports whether bno's bitmap bit is currently set, used by tests
// and cmd/snapctl's df subcommand.
func (s *Store) IsFree(bno Blockno) bool {
	bitmapBno := 2 + bno/BitsPerBlock
	return bitIsSet(s.DiskAddr(bitmapBno), bno%BitsPerBlock)
}

// FreeBlockCount walks the bitmap and counts free bits among the data
// region, the accounting behind "df".
func (s *Store) FreeBlockCount() uint32 {
	var free uint32
	for bno := s.firstDataBlock; bno < s.nblocks; bno++ {
		if s.IsFree(bno) {
			free++
		}
	}
	return free
}
