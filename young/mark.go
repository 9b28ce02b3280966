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

import "github.com/vireogc/vireogc/trace"

// youngVisitor implements trace.Visitor for a young-generation mark pass.
// It only follows an edge into an object that already has a Young Heap
// entry: tracing never crosses into the mature heap during a young
// cycle, since mature objects carry no remembered-set back-pointer to
// young roots (spec.md §4.4 is silent on one, so none exists here).
type youngVisitor struct {
	h *Heap
}

func (v youngVisitor) Visit(ref trace.Ref) bool {
	e := v.h.Lookup(keyOf(ref.Addr))
	if e == nil {
		return false
	}
	return !e.testAndSetMark()
}

// MarkYoung runs one young-generation mark phase: every entry's MARK bit
// is cleared, every entry with a live root refcount is seeded as a root,
// and the traversal follows Trace edges that stay within the Young Heap.
// It returns how many entries ended the phase marked and how many
// objects exceeded maxDeferRetries (see trace.Run).
func MarkYoung(h *Heap, maxDeferRetries int) (marked int, deferExceeded int) {
	var seeds []trace.Ref
	h.Range(func(key uint64, e *Entry) bool {
		e.clearMark()
		if e.Refcount() > 0 {
			seeds = append(seeds, trace.Ref{Addr: addrOf(key), VT: e.VTable()})
		}
		return true
	})

	deferExceeded = trace.Run(seeds, youngVisitor{h: h}, maxDeferRetries)

	h.Range(func(key uint64, e *Entry) bool {
		if e.HasMark() {
			marked++
		}
		return true
	})
	return marked, deferExceeded
}
