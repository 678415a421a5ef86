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

package snapshot_test

import (
	"testing"

	"github.com/snapfs-project/snapfs/internal/clock"
	"github.com/snapfs-project/snapfs/internal/cow"
	"github.com/snapfs-project/snapfs/internal/snapshot"
	"github.com/stretchr/testify/require"
)

func TestCheck_CleanFilesystemHasNoLeaksOrCorruption(t *testing.T) {
	store := newTestFS(t, 4096)
	resolver := cow.SnapshotResolver{}
	clk := clock.RealClock{}

	writeFile(t, store, resolver, "/a", []byte("hello"))
	require.NoError(t, snapshot.Create(store, "s1", "", testSnapCfg, clk))
	writeFile(t, store, resolver, "/a", []byte("world"))

	report, err := snapshot.Check(store)
	require.NoError(t, err)
	require.Empty(t, report.Leaked)
	require.Empty(t, report.Corrupt)
	require.GreaterOrEqual(t, report.ReachableSnapshots, 2) // root + s1
	require.GreaterOrEqual(t, report.ReachableShadows, 1)
}

func TestCheck_DetectsLeakedBlock(t *testing.T) {
	store := newTestFS(t, 4096)
	clk := clock.RealClock{}
	require.NoError(t, snapshot.Create(store, "s1", "", testSnapCfg, clk))

	bno, err := store.AllocBlock()
	require.NoError(t, err)

	report, err := snapshot.Check(store)
	require.NoError(t, err)
	require.Contains(t, report.Leaked, bno)
	require.Empty(t, report.Corrupt)
}

func TestReclaim_FreesLeakedBlocksAndOnlyThose(t *testing.T) {
	store := newTestFS(t, 4096)
	clk := clock.RealClock{}
	require.NoError(t, snapshot.Create(store, "s1", "", testSnapCfg, clk))

	leaked, err := store.AllocBlock()
	require.NoError(t, err)

	before, err := snapshot.Check(store)
	require.NoError(t, err)
	require.Contains(t, before.Leaked, leaked)

	n, err := snapshot.Reclaim(store, before)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.True(t, store.IsFree(leaked))

	after, err := snapshot.Check(store)
	require.NoError(t, err)
	require.Empty(t, after.Leaked)
	require.Empty(t, after.Corrupt)
}
