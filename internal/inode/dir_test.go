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
	"path/filepath"
	"testing"

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T, nblocks uint32) (*block.Store, *Inode) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapfs.img")
	store, err := block.Create(path, nblocks)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	root := Root(store)
	root.Type = TypeDir
	root.Save()
	return store, Root(store)
}

func TestCreateChild_RejectsDuplicateName(t *testing.T) {
	_, root := newTestRoot(t, 64)

	_, err := root.CreateChild("test", TypeRegular)
	require.NoError(t, err)

	_, err = root.CreateChild("test", TypeRegular)
	require.Error(t, err)
	assert.True(t, fserrors.FileExists.Is(err))
}

func TestCreateChild_RejectsSeparatorInName(t *testing.T) {
	_, root := newTestRoot(t, 64)

	_, err := root.CreateChild("bad"+string(rune(Separator))+"name", TypeRegular)
	require.Error(t, err)
	assert.True(t, fserrors.BadPath.Is(err))
}

func TestDirLookup_NotFound(t *testing.T) {
	_, root := newTestRoot(t, 64)

	_, err := root.DirLookup("missing")
	require.Error(t, err)
	assert.True(t, fserrors.NotFound.Is(err))
}

func TestDirAlloc_ExtendsDirectoryWhenFull(t *testing.T) {
	_, root := newTestRoot(t, 256)

	perBlock := recordsPerBlock
	for i := 0; i < perBlock; i++ {
		_, err := root.CreateChild(string(rune('a'+i%26))+"file", TypeRegular)
		require.NoError(t, err)
	}
	assert.Equal(t, uint64(block.Size), root.Size)

	_, err := root.CreateChild("overflow", TypeRegular)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*block.Size), root.Size)
}

func TestReadWrite_RoundTrip(t *testing.T) {
	_, root := newTestRoot(t, 64)

	f, err := root.CreateChild("test", TypeRegular)
	require.NoError(t, err)

	n, err := f.WriteAt([]byte("1\x00"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(2), f.Size)

	buf := make([]byte, 2)
	n, err = f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("1\x00"), buf)
}

func TestWriteAt_SpansIndirectBlock(t *testing.T) {
	_, root := newTestRoot(t, 4096)

	f, err := root.CreateChild("big", TypeRegular)
	require.NoError(t, err)

	off := uint64(block.NDirect) * block.Size
	data := []byte("past the direct pointers")
	_, err = f.WriteAt(data, off)
	require.NoError(t, err)
	assert.NotZero(t, f.Indirect)

	buf := make([]byte, len(data))
	_, err = f.ReadAt(buf, off)
	require.NoError(t, err)
	assert.Equal(t, data, buf)
}

func TestSetSize_ShrinkFreesIndirectBlock(t *testing.T) {
	_, root := newTestRoot(t, 4096)

	f, err := root.CreateChild("big", TypeRegular)
	require.NoError(t, err)

	off := uint64(block.NDirect) * block.Size
	_, err = f.WriteAt([]byte("x"), off)
	require.NoError(t, err)
	require.NotZero(t, f.Indirect)

	require.NoError(t, f.SetSize(uint64(block.NDirect)*block.Size/2))
	assert.Zero(t, f.Indirect)
}

func TestRemove_TruncatesAndClearsSlot(t *testing.T) {
	_, root := newTestRoot(t, 64)

	f, err := root.CreateChild("test", TypeRegular)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("data"), 0)
	require.NoError(t, err)

	require.NoError(t, root.Remove("test"))

	_, err = root.DirLookup("test")
	require.Error(t, err)
	assert.True(t, fserrors.NotFound.Is(err))
}

func TestWalkPath_MissingLastComponentReturnsNilFile(t *testing.T) {
	store, _ := newTestRoot(t, 64)

	dir, file, last, err := WalkPath(store, "/missing")
	require.NoError(t, err)
	assert.Nil(t, file)
	assert.Equal(t, "missing", last)
	assert.True(t, dir.IsDir())
}

func TestWalkPath_ResolvesExistingFile(t *testing.T) {
	store, root := newTestRoot(t, 64)

	_, err := root.CreateChild("test", TypeRegular)
	require.NoError(t, err)

	_, file, last, err := WalkPath(store, "/test")
	require.NoError(t, err)
	require.NotNil(t, file)
	assert.Equal(t, "test", last)
	assert.Equal(t, "test", file.Name)
}
