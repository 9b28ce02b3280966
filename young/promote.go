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
	"golang.org/x/exp/slices"

	"github.com/vireogc/vireogc/trace"
)

// CollectPromotable returns every entry that survived a full young mark
// still carrying NEW (i.e. it was marked reachable but never swept),
// sorted by address so the driver copies objects into the mature heap in
// a deterministic order. Call this after MarkYoung and before SweepYoung:
// sweep would otherwise clear the very MARK bits this depends on.
func CollectPromotable(h *Heap) []trace.Ref {
	var out []trace.Ref
	h.Range(func(key uint64, e *Entry) bool {
		if e.HasNew() && e.HasMark() {
			out = append(out, trace.Ref{Addr: addrOf(key), VT: e.VTable()})
		}
		return true
	})
	slices.SortFunc(out, func(a, b trace.Ref) bool { return a.Addr < b.Addr })
	return out
}

// ApplyPromotions clears the NEW flag on every entry in promoted, the
// Young Heap side-effect of a driver that has already copied each one
// into the mature heap (spec.md §4.4 "Promotion"). The entry itself is
// not removed: it continues to exist as a root-refcount tracker for as
// long as mutators still hold root handles to it.
func ApplyPromotions(h *Heap, promoted []trace.Ref) {
	for _, ref := range promoted {
		h.Promote(keyOf(ref.Addr))
	}
}
