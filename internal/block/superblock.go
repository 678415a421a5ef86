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
	"encoding/binary"

	"github.com/snapfs-project/snapfs/internal/fserrors"
)

// superblockSize is the layout of block 1: magic, nblocks, the root
// directory inode bytes, then four named blockno slots. Per the redesign
// notes these slots are blocknos, not raw memory addresses, and are only
// ever accessed through the named methods below, never by pointer
// arithmetic.
const (
	sbOffMagic    = 0
	sbOffNBlocks  = 4
	sbOffRootDir  = 8
	sbOffRootSnap = sbOffRootDir + InodeSize
	sbOffSnapDir  = sbOffRootSnap + blocknoSize
	sbOffSnapCfg  = sbOffSnapDir + blocknoSize
	sbOffCurSnap  = sbOffSnapCfg + blocknoSize
	sbEnd         = sbOffCurSnap + blocknoSize
)

// Superblock is a typed view onto block 1. RootDirInode holds the raw
// 256-byte inode record for "/"; internal/inode decodes and encodes it, so
// this package only ever copies those bytes around.
type Superblock struct {
	Magic        uint32
	NBlocks      uint32
	RootDirInode [InodeSize]byte

	rootSnapshotFile   Blockno
	snapshotDir        Blockno
	snapshotConfigFile Blockno
	currentSnapshotFile Blockno
}

func init() {
	if sbEnd > Size {
		panic("block: superblock layout overflows a block")
	}
}

// RootSnapshotFile returns the blockno of the permanent root snapshot
// header, or 0 if the filesystem has not been bootstrapped yet.
func (sb *Superblock) RootSnapshotFile() Blockno { return sb.rootSnapshotFile }

// SetRootSnapshotFile records the root snapshot header's blockno.
func (sb *Superblock) SetRootSnapshotFile(b Blockno) { sb.rootSnapshotFile = b }

// SnapshotDir returns the blockno of the ".snapshots" directory inode.
func (sb *Superblock) SnapshotDir() Blockno { return sb.snapshotDir }

// SetSnapshotDir records the ".snapshots" directory inode's blockno.
func (sb *Superblock) SetSnapshotDir(b Blockno) { sb.snapshotDir = b }

// SnapshotConfigFile returns the blockno of ".snapshots/cfg".
func (sb *Superblock) SnapshotConfigFile() Blockno { return sb.snapshotConfigFile }

// SetSnapshotConfigFile records ".snapshots/cfg"'s blockno.
func (sb *Superblock) SetSnapshotConfigFile(b Blockno) { sb.snapshotConfigFile = b }

// CurrentSnapshotFile returns the blockno of the working snapshot header.
func (sb *Superblock) CurrentSnapshotFile() Blockno { return sb.currentSnapshotFile }

// SetCurrentSnapshotFile records the working snapshot header's blockno,
// updated whenever the working snapshot is replaced.
func (sb *Superblock) SetCurrentSnapshotFile(b Blockno) { sb.currentSnapshotFile = b }

// decodeSuperblock reads a Superblock out of a Size-byte block.
func decodeSuperblock(buf []byte) *Superblock {
	sb := &Superblock{
		Magic:   binary.LittleEndian.Uint32(buf[sbOffMagic:]),
		NBlocks: binary.LittleEndian.Uint32(buf[sbOffNBlocks:]),
	}
	copy(sb.RootDirInode[:], buf[sbOffRootDir:sbOffRootDir+InodeSize])
	sb.rootSnapshotFile = binary.LittleEndian.Uint32(buf[sbOffRootSnap:])
	sb.snapshotDir = binary.LittleEndian.Uint32(buf[sbOffSnapDir:])
	sb.snapshotConfigFile = binary.LittleEndian.Uint32(buf[sbOffSnapCfg:])
	sb.currentSnapshotFile = binary.LittleEndian.Uint32(buf[sbOffCurSnap:])
	return sb
}

// encodeSuperblock writes sb into a Size-byte block.
func encodeSuperblock(buf []byte, sb *Superblock) {
	binary.LittleEndian.PutUint32(buf[sbOffMagic:], sb.Magic)
	binary.LittleEndian.PutUint32(buf[sbOffNBlocks:], sb.NBlocks)
	copy(buf[sbOffRootDir:sbOffRootDir+InodeSize], sb.RootDirInode[:])
	binary.LittleEndian.PutUint32(buf[sbOffRootSnap:], sb.rootSnapshotFile)
	binary.LittleEndian.PutUint32(buf[sbOffSnapDir:], sb.snapshotDir)
	binary.LittleEndian.PutUint32(buf[sbOffSnapCfg:], sb.snapshotConfigFile)
	binary.LittleEndian.PutUint32(buf[sbOffCurSnap:], sb.currentSnapshotFile)
}

// validate checks the invariants fs_init must refuse to mount without.
func (sb *Superblock) validate(nblocks uint32) error {
	if sb.Magic != Magic {
		return fserrors.New("superblock.validate", fserrors.Fatal, nil)
	}
	if sb.NBlocks != nblocks {
		return fserrors.New("superblock.validate", fserrors.Fatal, nil)
	}
	return nil
}
