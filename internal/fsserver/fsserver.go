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

// Package fsserver is the service facade: one dispatch method per
// client-facing request, each resolving a handle from the handle table
// and delegating to the CoW-resolved target. The filesystem is served by
// a single goroutine servicing one request at a time (see internal/ipc),
// so this facade carries no mutex: there
// is nothing to exclude.
package fsserver

import (
	"fmt"
	"sort"
	"time"

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/cfg"
	"github.com/snapfs-project/snapfs/internal/clock"
	"github.com/snapfs-project/snapfs/internal/cow"
	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/snapfs-project/snapfs/internal/inode"
	"github.com/snapfs-project/snapfs/internal/logger"
	"github.com/snapfs-project/snapfs/internal/snapshot"
)

// OpenFlags mirrors the subset of os.O_* flags the OPEN request needs.
type OpenFlags int

const (
	OpenReadOnly OpenFlags = 0
	OpenCreate   OpenFlags = 1 << 0
)

// SnapshotInfo is what SH_PRINT has to work with for one graph entry.
type SnapshotInfo struct {
	ID      string
	Name    string
	Comment string
	Date    time.Time
}

// Server holds the one open disk image and dispatches every client
// request against it.
type Server struct {
	store    *block.Store
	scfg     cfg.SnapshotConfig
	clk      clock.Clock
	resolver cow.Resolver

	handles    map[uint64]*inode.Inode
	nextHandle uint64
}

// New wraps an already-opened store. Bootstrap must have already been
// called (cmd/snapfsd does this at mount time).
func New(store *block.Store, scfg cfg.SnapshotConfig, clk clock.Clock) *Server {
	return &Server{
		store:      store,
		scfg:       scfg,
		clk:        clk,
		resolver:   cow.SnapshotResolver{},
		handles:    map[uint64]*inode.Inode{},
		nextHandle: 1,
	}
}

func (s *Server) working() (*snapshot.Node, error) {
	return snapshot.Load(s.store, s.store.Superblock().CurrentSnapshotFile())
}

// Open resolves path to a live inode, optionally creating it, and returns
// a handle for subsequent Read/Write/SetSize/Stat/Flush calls.
func (s *Server) Open(path string, flags OpenFlags) (uint64, error) {
	dir, f, last, err := inode.WalkPath(s.store, path)
	if err != nil {
		return 0, err
	}
	if f == nil {
		if flags&OpenCreate == 0 {
			return 0, fserrors.NotFoundf("fsserver.Open", "%q not found", path)
		}
		f, err = dir.CreateChild(last, inode.TypeRegular)
		if err != nil {
			return 0, err
		}
		// A file born under the working snapshot did not exist in any
		// ancestor; record it in created_files[] so Accept can undo the
		// creation when abandoning this branch.
		working, werr := s.working()
		if werr != nil {
			return 0, werr
		}
		if err := snapshot.AppendCreatedFile(working, f, s.scfg.MaxFiles); err != nil {
			return 0, err
		}
	}

	h := s.nextHandle
	s.nextHandle++
	s.handles[h] = f
	return h, nil
}

func (s *Server) lookup(handle uint64) (*inode.Inode, error) {
	f, ok := s.handles[handle]
	if !ok {
		return nil, fserrors.NotFoundf("fsserver", "handle %d not open", handle)
	}
	return f, nil
}

// Read services READ: up to n bytes starting at off from the current
// snapshot's view of handle.
func (s *Server) Read(handle uint64, off uint64, n int) ([]byte, error) {
	f, err := s.lookup(handle)
	if err != nil {
		return nil, err
	}
	working, err := s.working()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	got, err := cow.Read(s.store, s.resolver, f, working, buf, off)
	if err != nil {
		return nil, err
	}
	return buf[:got], nil
}

// Write services WRITE, materializing a shadow on first touch.
func (s *Server) Write(handle uint64, off uint64, p []byte) (int, error) {
	f, err := s.lookup(handle)
	if err != nil {
		return 0, err
	}
	working, err := s.working()
	if err != nil {
		return 0, err
	}
	return cow.Write(s.store, s.resolver, s.scfg, f, working, p, off)
}

// SetSize services SET_SIZE.
func (s *Server) SetSize(handle uint64, newSize uint64) error {
	f, err := s.lookup(handle)
	if err != nil {
		return err
	}
	working, err := s.working()
	if err != nil {
		return err
	}
	return cow.SetSize(s.store, s.resolver, s.scfg, f, working, newSize)
}

// Stat services STAT: name, size, and directory-ness as of the current
// snapshot (so a read of a stale shadow's size is possible for a file
// shadowed but not yet written through this handle).
func (s *Server) Stat(handle uint64) (name string, size uint64, isDir bool, err error) {
	f, lerr := s.lookup(handle)
	if lerr != nil {
		return "", 0, false, lerr
	}
	working, werr := s.working()
	if werr != nil {
		return "", 0, false, werr
	}
	target, rerr := s.resolver.ResolveForRead(s.store, f, working)
	if rerr != nil {
		return "", 0, false, rerr
	}
	return f.Name, target.Size, f.IsDir(), nil
}

// Flush services FLUSH: persists whatever the read-resolved target
// currently holds, never forcing a CoW materialization of an untouched
// file.
func (s *Server) Flush(handle uint64) error {
	f, err := s.lookup(handle)
	if err != nil {
		return err
	}
	working, err := s.working()
	if err != nil {
		return err
	}
	return cow.Flush(s.store, s.resolver, f, working)
}

// Remove services REMOVE: truncates and frees path's record. Records the
// removal is not itself CoW-tracked; deletion acts
// directly on the live tree the same way creation does via WalkPath.
func (s *Server) Remove(path string) error {
	dir, f, last, err := inode.WalkPath(s.store, path)
	if err != nil {
		return err
	}
	if f == nil {
		return fserrors.NotFoundf("fsserver.Remove", "%q not found", path)
	}
	return dir.Remove(last)
}

// ShCreate services SH_CREATE.
func (s *Server) ShCreate(name, comment string) error {
	return snapshot.Create(s.store, name, comment, s.scfg, s.clk)
}

// ShPrint services SH_PRINT: it logs the snapshot list and also returns it
// so internal/ipc can relay it to the client.
func (s *Server) ShPrint() ([]SnapshotInfo, error) {
	sb := s.store.Superblock()
	nodes, err := snapshot.List(s.store, sb.RootSnapshotFile())
	if err != nil {
		return nil, err
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Hdr.Date.Before(nodes[j].Hdr.Date) })

	out := make([]SnapshotInfo, 0, len(nodes))
	for _, n := range nodes {
		info := SnapshotInfo{ID: n.Hdr.ID, Name: n.Ino.Name, Comment: n.Hdr.Comment, Date: n.Hdr.Date}
		out = append(out, info)
		logger.Infof("snapshot %s (%s): %s (%s)", info.Name, info.ID, info.Comment, info.Date.Format(time.RFC3339))
	}
	return out, nil
}

// ShAccept services SH_ACCEPT.
func (s *Server) ShAccept(name string) error {
	return snapshot.Accept(s.store, name, s.scfg, s.clk)
}

// ShDelete services SH_DELETE.
func (s *Server) ShDelete(name string) error {
	return snapshot.Delete(s.store, name, s.clk)
}

// Sync services SYNC: the global flush-everything hammer.
func (s *Server) Sync() error {
	return s.store.Sync()
}

// Df reports the bitmap-derived free and total block counts, backing
// cmd/snapctl's df subcommand.
func (s *Server) Df() (free, total uint32) {
	return s.store.FreeBlockCount(), s.store.NBlocks()
}

func (s *Server) String() string {
	return fmt.Sprintf("fsserver{nblocks=%d}", s.store.NBlocks())
}
