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
	"strconv"
	"strings"

	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/cfg"
	"github.com/snapfs-project/snapfs/internal/clock"
	"github.com/snapfs-project/snapfs/internal/fserrors"
	"github.com/snapfs-project/snapfs/internal/inode"
)

// Bootstrap mounts the snapshot machinery on top of an already-created
// block.Store: it creates .snapshots/, cfg, and the root snapshot on first
// mount, then always installs a fresh working leaf under whatever cfg
// names as current, the "create_tmp_snapshot after every mount" step.
func Bootstrap(store *block.Store, scfg cfg.SnapshotConfig, clk clock.Clock) error {
	root := inode.Root(store)
	if !root.IsDir() {
		root.Type = inode.TypeDir
		root.Save()
		root.Flush()
	}

	sb := store.Superblock()

	if sb.SnapshotDir() == 0 {
		_, bno, err := inode.NewDedicated(store, inode.SnapshotDirName, inode.TypeDir)
		if err != nil {
			return err
		}
		sb.SetSnapshotDir(bno)
		store.PutSuperblock(sb)
	}

	if sb.SnapshotConfigFile() == 0 {
		_, bno, err := inode.NewDedicated(store, "cfg", inode.TypeRegular)
		if err != nil {
			return err
		}
		sb.SetSnapshotConfigFile(bno)
		store.PutSuperblock(sb)
		if err := saveConfig(store, bno, &ConfigFile{
			RootSnapshotName:    RootSnapshotName,
			CurrentSnapshotName: RootSnapshotName,
		}); err != nil {
			return err
		}
	}

	if sb.RootSnapshotFile() == 0 {
		rootNode, err := NewNode(store, RootSnapshotName)
		if err != nil {
			return err
		}
		oldBitmap, err := saveBitmapCopy(store)
		if err != nil {
			return err
		}
		rootNode.Hdr.Date = clk.Now()
		rootNode.Hdr.OldBitmap = oldBitmap
		if err := rootNode.Save(); err != nil {
			return err
		}
		sb.SetRootSnapshotFile(rootNode.Bno)
		sb.SetCurrentSnapshotFile(rootNode.Bno)
		store.PutSuperblock(sb)
	}

	sb = store.Superblock()
	cfgFile, err := loadConfig(store, sb.SnapshotConfigFile())
	if err != nil {
		return err
	}

	base, err := FindByName(store, sb.RootSnapshotFile(), cfgFile.CurrentSnapshotName)
	if err != nil {
		base, err = Load(store, sb.RootSnapshotFile())
		if err != nil {
			return err
		}
	}

	_, err = CreateTmpSnapshot(store, base, scfg, clk)
	return err
}

// bitmapCopyName is the reserved name of a snapshot's saved bitmap file;
// it starts with the separator byte so no user file can collide with it.
const bitmapCopyName = "\x01bitmap"

// saveBitmapCopy writes the free-block bitmap, as it stands right now,
// into a fresh dedicated file and returns its blockno. Nothing reads the
// copy back today; every snapshot carries one for on-disk format
// compatibility (see DESIGN.md on OldBitmap).
func saveBitmapCopy(store *block.Store) (block.Blockno, error) {
	buf := make([]byte, 0, int(store.FirstDataBlock()-2)*block.Size)
	for bno := block.Blockno(2); bno < store.FirstDataBlock(); bno++ {
		buf = append(buf, store.DiskAddr(bno)...)
	}
	ino, bno, err := inode.NewDedicated(store, bitmapCopyName, inode.TypeRegular)
	if err != nil {
		return 0, err
	}
	if _, err := ino.WriteAt(buf, 0); err != nil {
		return 0, err
	}
	if err := ino.Flush(); err != nil {
		return 0, err
	}
	return bno, nil
}

func discardBitmapCopy(store *block.Store, bno block.Blockno) error {
	if bno == 0 {
		return nil
	}
	ino := inode.At(store, inode.Location{DirBlock: bno, Offset: 0})
	if err := ino.SetSize(0); err != nil {
		return err
	}
	store.FreeBlock(bno)
	return nil
}

// CreateTmpSnapshot allocates a working leaf under parent, links it as a
// new branch, and updates the superblock's working-snapshot pointer. It
// does not touch cfg's CurrentSnapshotName, which always names the
// promoted base snapshot, not the ephemeral working leaf.
func CreateTmpSnapshot(store *block.Store, parent *Node, scfg cfg.SnapshotConfig, clk clock.Clock) (*Node, error) {
	working, err := NewNode(store, WorkingPlaceholderName)
	if err != nil {
		return nil, err
	}
	oldBitmap, err := saveBitmapCopy(store)
	if err != nil {
		return nil, err
	}
	working.Hdr.Date = clk.Now()
	working.Hdr.Prev = parent.Bno
	working.Hdr.OldBitmap = oldBitmap
	if err := working.Save(); err != nil {
		return nil, err
	}

	if err := AddChild(parent, working, scfg.MaxBranches); err != nil {
		return nil, err
	}

	sb := store.Superblock()
	sb.SetCurrentSnapshotFile(working.Bno)
	store.PutSuperblock(sb)

	return working, nil
}

// Create promotes the current working snapshot into a named, persistent
// snapshot and installs a fresh working leaf beneath it.
func Create(store *block.Store, name, comment string, scfg cfg.SnapshotConfig, clk clock.Clock) error {
	if err := inode.ValidateName(name); err != nil {
		return err
	}

	sb := store.Superblock()

	if _, err := FindByName(store, sb.RootSnapshotFile(), name); err == nil {
		return fserrors.FileExistsf("snapshot.Create", "%q already exists", name)
	}

	working, err := Load(store, sb.CurrentSnapshotFile())
	if err != nil {
		return err
	}

	// Refuse before renaming anything: a shadow whose rewritten name
	// would not fit the record would otherwise be silently truncated.
	for _, shadowBno := range working.Hdr.ModifiedFiles {
		shadow := inode.At(store, inode.Location{DirBlock: shadowBno, Offset: 0})
		if len(renameShadow(shadow.Name, name)) > inode.MaxNameLen {
			return fserrors.BadPathf("snapshot.Create", "snapshot name %q too long to suffix shadow %q", name, shadow.Name)
		}
	}

	working.Ino.Name = name
	working.Ino.Save()
	if err := working.Ino.Flush(); err != nil {
		return err
	}

	working.Hdr.Comment = comment
	working.Hdr.Date = clk.Now()
	if err := working.Save(); err != nil {
		return err
	}

	for _, shadowBno := range working.Hdr.ModifiedFiles {
		shadow := inode.At(store, inode.Location{DirBlock: shadowBno, Offset: 0})
		shadow.Name = renameShadow(shadow.Name, name)
		shadow.Save()
		if err := shadow.Flush(); err != nil {
			return err
		}
	}

	if _, err := CreateTmpSnapshot(store, working, scfg, clk); err != nil {
		return err
	}

	sb = store.Superblock()
	cfgFile, err := loadConfig(store, sb.SnapshotConfigFile())
	if err != nil {
		return err
	}
	cfgFile.CurrentSnapshotName = name
	return saveConfig(store, sb.SnapshotConfigFile(), cfgFile)
}

// renameShadow truncates shadowName at the separator and appends
// newSnapName, the rename create() performs on every
// shadow owned by the snapshot being promoted.
func renameShadow(shadowName, newSnapName string) string {
	orig := shadowName
	if idx := strings.IndexByte(shadowName, inode.Separator); idx >= 0 {
		orig = shadowName[:idx]
	}
	return orig + string(rune(inode.Separator)) + newSnapName
}

// Accept restores the live tree to the state of the named snapshot: it
// discards the abandoned working leaf, undoes every live file created
// along the abandoned branch back to the lowest common ancestor with the
// target (so a branch switch does not touch the target's own lineage),
// and installs a new working leaf under the target.
func Accept(store *block.Store, name string, scfg cfg.SnapshotConfig, clk clock.Clock) error {
	sb := store.Superblock()

	target, err := FindByName(store, sb.RootSnapshotFile(), name)
	if err != nil {
		return err
	}

	working, err := Load(store, sb.CurrentSnapshotFile())
	if err != nil {
		return err
	}

	if err := discardCreatedFiles(store, working.Hdr.CreatedFiles); err != nil {
		return err
	}
	if err := discardShadows(store, working.Hdr.ModifiedFiles); err != nil {
		return err
	}

	parentOfWorking, err := Load(store, working.Hdr.Prev)
	if err != nil {
		return err
	}
	if err := detachChild(parentOfWorking, working.Bno); err != nil {
		return err
	}
	if err := discardBitmapCopy(store, working.Hdr.OldBitmap); err != nil {
		return err
	}
	if err := working.Ino.SetSize(0); err != nil {
		return err
	}
	store.FreeBlock(working.Bno)

	targetAncestors, err := ancestors(store, target)
	if err != nil {
		return err
	}

	cur := parentOfWorking
	for !targetAncestors[cur.Bno] {
		if err := discardCreatedFiles(store, cur.Hdr.CreatedFiles); err != nil {
			return err
		}
		if cur.Hdr.Prev == 0 {
			break
		}
		next, err := Load(store, cur.Hdr.Prev)
		if err != nil {
			return err
		}
		cur = next
	}

	// detachChild may have rewritten target's own header (when the
	// abandoned leaf hung directly off it); reload so the new working
	// leaf is linked against the current on-disk Next[].
	target, err = Load(store, target.Bno)
	if err != nil {
		return err
	}
	if _, err := CreateTmpSnapshot(store, target, scfg, clk); err != nil {
		return err
	}

	sb = store.Superblock()
	cfgFile, err := loadConfig(store, sb.SnapshotConfigFile())
	if err != nil {
		return err
	}
	cfgFile.CurrentSnapshotName = name
	return saveConfig(store, sb.SnapshotConfigFile(), cfgFile)
}

func discardShadows(store *block.Store, shadows []block.Blockno) error {
	for _, bno := range shadows {
		shadow := inode.At(store, inode.Location{DirBlock: bno, Offset: 0})
		if err := shadow.SetSize(0); err != nil {
			return err
		}
		shadow.Name = ""
		shadow.Save()
		if err := shadow.Flush(); err != nil {
			return err
		}
		store.FreeBlock(bno)
	}
	return nil
}

func discardCreatedFiles(store *block.Store, created []FileRef) error {
	for _, ref := range created {
		target := inode.At(store, inode.Location{DirBlock: ref.Block, Offset: int(ref.Offset)})
		if err := target.SetSize(0); err != nil {
			return err
		}
		target.Name = ""
		target.Save()
		if err := target.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Delete soft-deletes the named snapshot: it sets IsDeleted, and renames
// both the snapshot and every shadow it owns by appending the deletion
// timestamp, freeing the original name for reuse. The node stays in the
// graph so prev/next chains through it remain intact.
func Delete(store *block.Store, name string, clk clock.Clock) error {
	sb := store.Superblock()
	target, err := FindByName(store, sb.RootSnapshotFile(), name)
	if err != nil {
		return err
	}

	suffix := "." + strconv.FormatInt(clk.Now().UnixNano(), 10)

	target.Hdr.IsDeleted = true
	target.Ino.Name = target.Ino.Name + suffix
	target.Ino.Save()
	if err := target.Save(); err != nil {
		return err
	}
	if err := target.Ino.Flush(); err != nil {
		return err
	}

	for _, bno := range target.Hdr.ModifiedFiles {
		shadow := inode.At(store, inode.Location{DirBlock: bno, Offset: 0})
		shadow.Name = shadow.Name + suffix
		shadow.Save()
		if err := shadow.Flush(); err != nil {
			return err
		}
	}
	return nil
}
