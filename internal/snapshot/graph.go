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
	"github.com/snapfs-project/snapfs/internal/block"
	"github.com/snapfs-project/snapfs/internal/fserrors"
)

// FindByName performs a depth-first search from root over Next[],
// skipping deleted nodes and the working snapshot, exact byte-compare.
func FindByName(store *block.Store, root block.Blockno, name string) (*Node, error) {
	n, err := Load(store, root)
	if err != nil {
		return nil, err
	}
	found, err := findByName(store, n, name)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fserrors.NotFoundf("snapshot.FindByName", "%q not found", name)
	}
	return found, nil
}

func findByName(store *block.Store, n *Node, name string) (*Node, error) {
	if !n.Hdr.IsDeleted && n.Ino.Name != WorkingPlaceholderName && n.Ino.Name == name {
		return n, nil
	}
	for _, childBno := range n.Hdr.Next {
		child, err := Load(store, childBno)
		if err != nil {
			return nil, err
		}
		found, err := findByName(store, child, name)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// ancestors returns the set of blocknos on n's path to root, inclusive of
// n itself, by climbing Prev.
func ancestors(store *block.Store, n *Node) (map[block.Blockno]bool, error) {
	set := map[block.Blockno]bool{}
	cur := n
	for {
		set[cur.Bno] = true
		if cur.Hdr.Prev == 0 {
			return set, nil
		}
		parent, err := Load(store, cur.Hdr.Prev)
		if err != nil {
			return nil, err
		}
		cur = parent
	}
}

// List performs a depth-first walk from root, returning every non-deleted,
// non-working node.
func List(store *block.Store, root block.Blockno) ([]*Node, error) {
	n, err := Load(store, root)
	if err != nil {
		return nil, err
	}
	var out []*Node
	var walk func(*Node) error
	walk = func(cur *Node) error {
		if !cur.Hdr.IsDeleted && cur.Ino.Name != WorkingPlaceholderName {
			out = append(out, cur)
		}
		for _, childBno := range cur.Hdr.Next {
			child, err := Load(store, childBno)
			if err != nil {
				return err
			}
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(n); err != nil {
		return nil, err
	}
	return out, nil
}
