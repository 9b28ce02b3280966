// Copyright (C) 2024 Vireo, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package mature

import (
	"github.com/vireogc/vireogc/journal"
	"github.com/vireogc/vireogc/radix"
	"github.com/vireogc/vireogc/trace"
)

var addrOf = journal.AddrOf
var keyOf = journal.KeyOf

// Heap is the Mature Heap: promoted objects live here until a full
// sweep finds them unreachable from the current root set.
type Heap struct {
	trie *radix.Trie[Entry]
}

// New returns an empty Mature Heap.
func New() *Heap {
	return &Heap{trie: radix.New[Entry]()}
}

// Lookup returns the entry at key, or nil if absent.
func (h *Heap) Lookup(key uint64) *Entry {
	e, _ := h.trie.Lookup(key)
	return e
}

// Range visits every Mature Heap entry.
func (h *Heap) Range(fn func(key uint64, e *Entry) bool) {
	h.trie.Range(fn)
}

// Shards partitions the Mature Heap into k disjoint sub-tries for
// parallel mark/sweep.
func (h *Heap) Shards(k int) []*radix.Shard[Entry] {
	return h.trie.ShardedRange(k)
}

// Insert adds a promoted object at key with vt, or overwrites vt if an
// entry already exists there (promotion is idempotent: a key already
// present in the Mature Heap is left with MARK untouched).
func (h *Heap) Insert(key uint64, vt trace.VTable) {
	e, inserted := h.trie.GetOrInsert(key, func() *Entry {
		e := &Entry{}
		e.setVTable(vt)
		return e
	})
	if !inserted {
		e.setVTable(vt)
	}
}

// Delete removes the entry at key outright (used by sweep).
func (h *Heap) Delete(key uint64) {
	h.trie.Delete(key)
}

func (h *Heap) destroyAndRemove(key uint64, e *Entry) {
	if vt := e.VTable(); !vt.IsZero() {
		if d := vt.Dispatcher(); d != nil && d.Destroy != nil {
			d.Destroy(addrOf(key))
		}
	}
	h.trie.Delete(key)
}
