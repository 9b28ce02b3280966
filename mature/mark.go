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
	"sync"

	"github.com/vireogc/vireogc/trace"
	"github.com/vireogc/vireogc/young"
)

// matureVisitor implements trace.Visitor for a full-cycle mark: the
// traversal crosses freely between the Young and Mature Heaps (an
// object promoted last cycle may still hold a pointer to one that
// hasn't been promoted yet), but only ever sets a MARK bit in the
// Mature Heap. Young-only objects are deduplicated against a
// phase-local set instead, since they carry no Mature Heap entry to
// record a bit in. A ref with an entry in neither heap stops the walk.
type matureVisitor struct {
	mature        *Heap
	young         *young.Heap
	seenYoungOnly map[uintptr]bool
}

func (v *matureVisitor) Visit(ref trace.Ref) bool {
	key := keyOf(ref.Addr)
	if e := v.mature.Lookup(key); e != nil {
		return !e.testAndSetMark()
	}
	if v.young.Lookup(key) == nil {
		return false
	}
	if v.seenYoungOnly[ref.Addr] {
		return false
	}
	v.seenYoungOnly[ref.Addr] = true
	return true
}

// syncedMatureVisitor is the concurrent-safe counterpart to
// matureVisitor, used by MarkMatureParallel where several worker
// goroutines may reach the same young-only object from different root
// shards at once. sync.Map's LoadOrStore gives the same "first visitor
// wins" dedup as the plain map does for the single-goroutine path,
// without a data race.
type syncedMatureVisitor struct {
	mature        *Heap
	young         *young.Heap
	seenYoungOnly sync.Map
}

func (v *syncedMatureVisitor) Visit(ref trace.Ref) bool {
	key := keyOf(ref.Addr)
	if e := v.mature.Lookup(key); e != nil {
		return !e.testAndSetMark()
	}
	if v.young.Lookup(key) == nil {
		return false
	}
	_, loaded := v.seenYoungOnly.LoadOrStore(ref.Addr, true)
	return !loaded
}

// MarkMature runs one full-cycle mark phase: every Mature Heap entry's
// MARK bit is cleared, every Young Heap entry with a live root refcount
// is seeded as a root (spec.md §4.5 "union of roots is the current
// Young Heap entries with refcount > 0"), and the traversal is allowed
// to cross into the Young Heap but marks only in the Mature Heap.
func MarkMature(yh *young.Heap, h *Heap, maxDeferRetries int) (marked int, deferExceeded int) {
	h.Range(func(key uint64, e *Entry) bool {
		e.clearMark()
		return true
	})

	var seeds []trace.Ref
	yh.Range(func(key uint64, e *young.Entry) bool {
		if e.Refcount() > 0 {
			seeds = append(seeds, trace.Ref{Addr: addrOf(key), VT: e.VTable()})
		}
		return true
	})

	visitor := &matureVisitor{mature: h, young: yh, seenYoungOnly: make(map[uintptr]bool)}
	deferExceeded = trace.Run(seeds, visitor, maxDeferRetries)

	h.Range(func(key uint64, e *Entry) bool {
		if e.HasMark() {
			marked++
		}
		return true
	})
	return marked, deferExceeded
}
