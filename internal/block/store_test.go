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
	"path/filepath"
	"testing"

	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, nblocks uint32) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapfs.img")
	s, err := Create(path, nblocks)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreate_ReservedBlocksAreInUse(t *testing.T) {
	s := newTestStore(t, 32)

	assert.False(t, s.IsFree(0))
	assert.False(t, s.IsFree(1))
	for bno := uint32(2); bno < s.firstDataBlock; bno++ {
		assert.False(t, s.IsFree(bno), "bitmap block %d should be marked in-use", bno)
	}
	assert.True(t, s.IsFree(s.firstDataBlock))
}

func TestAllocBlock_ClearsBitAndReturnsLowestFree(t *testing.T) {
	s := newTestStore(t, 32)

	first := s.firstDataBlock
	bno, err := s.AllocBlock()
	require.NoError(t, err)
	assert.Equal(t, first, bno)
	assert.False(t, s.IsFree(bno))

	bno2, err := s.AllocBlock()
	require.NoError(t, err)
	assert.Equal(t, first+1, bno2)
}

func TestAllocBlock_NoDiskWhenExhausted(t *testing.T) {
	s := newTestStore(t, 16)

	for {
		_, err := s.AllocBlock()
		if err != nil {
			assert.True(t, fserrors.NoDisk.Is(err))
			break
		}
	}
}

func TestFreeBlock_PanicsOnZero(t *testing.T) {
	s := newTestStore(t, 16)
	assert.Panics(t, func() { s.FreeBlock(0) })
}

func TestFreeBlock_MarksBitmapFree(t *testing.T) {
	s := newTestStore(t, 16)

	bno, err := s.AllocBlock()
	require.NoError(t, err)
	assert.False(t, s.IsFree(bno))

	s.FreeBlock(bno)
	assert.True(t, s.IsFree(bno))
}

func TestSuperblock_RoundTripsNamedSlots(t *testing.T) {
	s := newTestStore(t, 16)

	sb := s.Superblock()
	assert.Equal(t, Magic, sb.Magic)
	assert.Equal(t, uint32(16), sb.NBlocks)

	sb.SetRootSnapshotFile(5)
	sb.SetSnapshotDir(6)
	sb.SetSnapshotConfigFile(7)
	sb.SetCurrentSnapshotFile(8)
	s.PutSuperblock(sb)

	got := s.Superblock()
	assert.Equal(t, Blockno(5), got.RootSnapshotFile())
	assert.Equal(t, Blockno(6), got.SnapshotDir())
	assert.Equal(t, Blockno(7), got.SnapshotConfigFile())
	assert.Equal(t, Blockno(8), got.CurrentSnapshotFile())
}

func TestOpen_RejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapfs.img")
	s, err := Create(path, 16)
	require.NoError(t, err)
	sb := s.Superblock()
	sb.Magic = 0
	s.PutSuperblock(sb)
	require.NoError(t, s.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.True(t, fserrors.Fatal.Is(err))
}

func TestFreeBlockCount(t *testing.T) {
	s := newTestStore(t, 32)

	total := s.NBlocks() - s.FirstDataBlock()
	assert.Equal(t, total, s.FreeBlockCount())

	_, err := s.AllocBlock()
	require.NoError(t, err)
	assert.Equal(t, total-1, s.FreeBlockCount())
}
