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

package ipc

import (
	"path/filepath"
	"testing"

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/cfg"
	"github.com/snapfs-project/snapfs/internal/clock"
	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/snapfs-project/snapfs/internal/fsserver"
	"github.com/snapfs-project/snapfs/internal/snapshot"
	"github.com/stretchr/testify/require"
)

var testSnapCfg = cfg.SnapshotConfig{MaxBranches: 8, MaxFiles: 8}

// newTestClient spins up a full server (fresh image, bootstrap, unmetered
// listener on a temp socket) and returns a connected client.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	dir := t.TempDir()

	store, err := block.Create(filepath.Join(dir, "snapfs.img"), 4096)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, snapshot.Bootstrap(store, testSnapCfg, clock.RealClock{}))

	srv := fsserver.New(store, testSnapCfg, clock.RealClock{})
	ln, err := Listen(filepath.Join(dir, "s.sock"), srv, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go ln.Serve()

	client, err := Dial(filepath.Join(dir, "s.sock"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRoundTrip_WriteThenRead(t *testing.T) {
	c := newTestClient(t)

	h, err := c.Open("/test", fsserver.OpenCreate)
	require.NoError(t, err)

	n, err := c.Write(h, 0, []byte("1\x00"))
	require.NoError(t, err)
	require.Equal(t, 2, n)

	data, err := c.Read(h, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("1\x00"), data)

	name, size, isDir, err := c.Stat(h)
	require.NoError(t, err)
	require.Equal(t, "test", name)
	require.Equal(t, uint64(2), size)
	require.False(t, isDir)
}

func TestRoundTrip_SnapshotLifecycleOverTheWire(t *testing.T) {
	c := newTestClient(t)

	h, err := c.Open("/test", fsserver.OpenCreate)
	require.NoError(t, err)
	_, err = c.Write(h, 0, []byte("1\x00"))
	require.NoError(t, err)
	require.NoError(t, c.ShCreate("first", "comment1"))

	_, err = c.Write(h, 0, []byte("2\x00"))
	require.NoError(t, err)
	require.NoError(t, c.ShCreate("second", "comment2"))

	require.NoError(t, c.ShAccept("first"))
	data, err := c.Read(h, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("1\x00"), data)

	require.NoError(t, c.ShAccept("second"))
	data, err = c.Read(h, 0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("2\x00"), data)

	snaps, err := c.ShPrint()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, s := range snaps {
		names[s.Name] = true
	}
	require.True(t, names["first"])
	require.True(t, names["second"])

	require.NoError(t, c.ShDelete("first"))
	require.NoError(t, c.Sync())
}

func TestErrorCodesSurviveTheWire(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Open("/missing", fsserver.OpenReadOnly)
	require.Error(t, err)
	require.True(t, fserrors.NotFound.Is(err))

	err = c.ShAccept("no-such-snapshot")
	require.Error(t, err)
	require.True(t, fserrors.NotFound.Is(err))

	require.NoError(t, c.ShCreate("dup", ""))
	err = c.ShCreate("dup", "")
	require.Error(t, err)
	require.True(t, fserrors.FileExists.Is(err))
}

func TestDfOverTheWire(t *testing.T) {
	c := newTestClient(t)

	free, total, err := c.Df()
	require.NoError(t, err)
	require.Equal(t, uint32(4096), total)
	require.Greater(t, free, uint32(0))
	require.Less(t, free, total)
}
