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

// Package block implements the fixed-block storage substrate: a disk image
// memory-mapped into an address window, a free-block bitmap, and the
// superblock's well-known pointer slots. Everything above this package
// (inode, snapshot, cow) addresses blocks only by blockno.
package block

// Size is BLKSIZE: the fixed block size, chosen to equal the system page
// size so that FlushBlock can msync a single block without touching its
// neighbours.
const Size = 4096

// Blockno is a 32-bit block index. 0 is reserved and never allocated.
type Blockno = uint32

// BitsPerBlock is BLKBITSIZE: one bitmap block covers this many blocknos.
const BitsPerBlock = Size * 8

// InodeSize is the fixed on-disk size of a File record.
const InodeSize = 256

// Magic identifies a snapfs disk image.
const Magic = uint32(0x534e4150) // "SNAP"

// NDirect is the number of direct block pointers held inline in an inode.
const NDirect = 12

// blocknoSize is sizeof(Blockno) on disk.
const blocknoSize = 4

// NIndirect is the number of blocknos an indirect block can hold.
const NIndirect = Size / blocknoSize
