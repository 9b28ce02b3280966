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

package young

import (
	"sync/atomic"

	"github.com/vireogc/vireogc/journal"
	"github.com/vireogc/vireogc/radix"
	"github.com/vireogc/vireogc/trace"
)

var addrOf = journal.AddrOf
var keyOf = journal.KeyOf

// Heap is the Young Heap: a radix.Trie keyed by shifted object address,
// owned exclusively by the collector driver outside of mark/sweep and
// sharded into disjoint sub-tries during those phases.
type Heap struct {
	trie *radix.Trie[Entry]

	// newCount mirrors "entries with the NEW flag set" without a full
	// scan every drain pass: incremented whenever an ingestion step
	// transitions an entry's NEW bit 0->1, decremented whenever sweep
	// or promotion clears it.
	newCount atomic.Int64

	deferred deferredBuffer
}

// New returns an empty Young Heap.
func New() *Heap {
	return &Heap{trie: radix.New[Entry]()}
}

// Lookup returns the entry at key, or nil if absent.
func (h *Heap) Lookup(key uint64) *Entry {
	e, _ := h.trie.Lookup(key)
	return e
}

// NewCount reports how many entries currently carry the NEW flag, the
// input to the driver's full-vs-young policy decision (spec.md §4.4).
func (h *Heap) NewCount() int64 { return h.newCount.Load() }

// Range visits every Young Heap entry.
func (h *Heap) Range(fn func(key uint64, e *Entry) bool) {
	h.trie.Range(fn)
}

// Delete removes the entry at key outright (used by sweep and by the
// deferred-decrement drain).
func (h *Heap) Delete(key uint64) {
	h.trie.Delete(key)
}

// Shards partitions the Young Heap into k disjoint sub-tries for parallel
// mark/sweep.
func (h *Heap) Shards(k int) []*radix.Shard[Entry] {
	return h.trie.ShardedRange(k)
}

func newEntry(vt trace.VTable, flags uint32, refcount int32) *Entry {
	e := &Entry{}
	e.setVTable(vt)
	e.flags.Store(flags)
	e.refcount.Store(refcount)
	return e
}

// ApplyNew implements the NEW row of spec.md §4.4's ingestion table:
// insert {refcount=0, vtable, NEW} if absent, else set the NEW bit. The
// vtable is always (re)written, because an INC that raced ahead of this
// object's NEW record (spec.md scenario 2) may already have created a
// vtable-less stub entry.
func (h *Heap) ApplyNew(key uint64, vt trace.VTable) {
	e, inserted := h.trie.GetOrInsert(key, func() *Entry {
		return newEntry(vt, flagNew, 0)
	})
	if inserted {
		h.newCount.Add(1)
		return
	}
	e.setVTable(vt)
	if wasSet := e.setNewReturnPrev(); !wasSet {
		h.newCount.Add(1)
	}
}

// ApplyNewInc implements the NEW+INC row: insert {refcount=1, vtable,
// NEW} if absent, else set NEW and add 1 to the refcount.
func (h *Heap) ApplyNewInc(key uint64, vt trace.VTable) {
	e, inserted := h.trie.GetOrInsert(key, func() *Entry {
		return newEntry(vt, flagNew, 1)
	})
	if inserted {
		h.newCount.Add(1)
		return
	}
	e.setVTable(vt)
	if wasSet := e.setNewReturnPrev(); !wasSet {
		h.newCount.Add(1)
	}
	e.addRefcount(1)
}

// ApplyInc implements the INC row: look up the entry, creating a
// refcount=0 stub if absent (the vtable-less stub case above), and add 1.
func (h *Heap) ApplyInc(key uint64) {
	e, _ := h.trie.GetOrInsert(key, func() *Entry {
		return newEntry(0, 0, 0)
	})
	e.addRefcount(1)
}

// ApplyDec implements the DEC row: the decrement is never applied
// immediately. It is buffered and aged one full drain pass, the
// mechanism described in spec.md §4.4 that tolerates cross-thread
// reordering of INC/DEC pairs.
func (h *Heap) ApplyDec(key uint64) {
	h.deferred.add(key)
}

// BeginDrainPass must be called once at the start of each ReadJournals
// pass, before any journal is drained. It returns the deferred
// decrements that were buffered strictly before this pass began, ready
// to be applied once the pass's own ingestion is complete.
func (h *Heap) BeginDrainPass() map[uint64]int32 {
	return h.deferred.rotate()
}

// ApplyAgedDecrements applies decrements collected before the current
// pass began (as returned by BeginDrainPass), removing any entry whose
// refcount reaches zero with its NEW bit clear.
func (h *Heap) ApplyAgedDecrements(aged map[uint64]int32) {
	for _, key := range sortedKeys(aged) {
		e := h.Lookup(key)
		if e == nil {
			continue
		}
		remaining := e.addRefcount(-aged[key])
		if remaining <= 0 && !e.HasNew() {
			h.trie.Delete(key)
		}
	}
}

// Promote clears the NEW bit on an entry that survived a full cycle's
// mark and has been copied into the mature heap; it continues to exist
// in the Young Heap as a plain root-refcount tracker (spec.md §4.4
// "Promotion").
func (h *Heap) Promote(key uint64) {
	e := h.Lookup(key)
	if e == nil {
		return
	}
	e.clearNew()
	h.newCount.Add(-1)
}

// destroyAndRemove invokes the entry's destructor (if it has a live
// vtable) and deletes it outright; used by young sweep.
func (h *Heap) destroyAndRemove(key uint64, e *Entry) {
	if vt := e.VTable(); !vt.IsZero() {
		if d := vt.Dispatcher(); d != nil && d.Destroy != nil {
			d.Destroy(addrOf(key))
		}
	}
	h.trie.Delete(key)
	h.newCount.Add(-1)
}
