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
	"testing"

	"github.com/vireogc/vireogc/journal"
	"github.com/vireogc/vireogc/trace"
)

// chainDispatcher makes every object at addr trace a single edge to
// addr+8, so a chain of linked objects can be built out of nothing but
// addresses.
var chainDispatcher = &trace.Dispatcher{
	Traverse: true,
	Trace: func(addr uintptr, into trace.Stack) trace.Status {
		into.Push(trace.Ref{Addr: addr + 8, VT: trace.Pack(chainDispatcher)})
		return trace.Done
	},
}

var leafDispatcher = &trace.Dispatcher{Traverse: false}

func TestMarkYoungFollowsRootedChain(t *testing.T) {
	h := New()
	root := uintptr(0x10000)
	mid := root + 8
	leaf := mid + 8
	garbage := uintptr(0x20000)

	h.ApplyNewInc(journal.KeyOf(root), trace.Pack(chainDispatcher))
	h.ApplyNew(journal.KeyOf(mid), trace.Pack(chainDispatcher))
	h.ApplyNew(journal.KeyOf(leaf), trace.Pack(leafDispatcher))
	h.ApplyNew(journal.KeyOf(garbage), trace.Pack(leafDispatcher))

	marked, deferExceeded := MarkYoung(h, 3)
	if deferExceeded != 0 {
		t.Fatalf("deferExceeded = %d, want 0", deferExceeded)
	}
	if marked != 3 {
		t.Fatalf("marked = %d, want 3 (root, mid, leaf all reached via the Trace chain)", marked)
	}

	for _, addr := range []uintptr{root, mid, leaf} {
		e := h.Lookup(journal.KeyOf(addr))
		if e == nil || !e.HasMark() {
			t.Fatalf("expected %#x to be marked", addr)
		}
	}
	if e := h.Lookup(journal.KeyOf(garbage)); e != nil && e.HasMark() {
		t.Fatal("unrooted garbage must not be marked")
	}
}

func TestSweepYoungDestroysUnmarkedNewEntries(t *testing.T) {
	h := New()
	var destroyed []uintptr
	destroyDispatcher := &trace.Dispatcher{
		Destroy: func(addr uintptr) { destroyed = append(destroyed, addr) },
	}

	rooted := uintptr(0x30000)
	garbage := uintptr(0x40000)
	h.ApplyNewInc(journal.KeyOf(rooted), trace.Pack(destroyDispatcher))
	h.ApplyNew(journal.KeyOf(garbage), trace.Pack(destroyDispatcher))

	MarkYoung(h, 3)
	swept := SweepYoung(h)

	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	if len(destroyed) != 1 || destroyed[0] != garbage {
		t.Fatalf("destroyed = %v, want [%#x]", destroyed, garbage)
	}
	if h.Lookup(journal.KeyOf(garbage)) != nil {
		t.Fatal("garbage entry should have been removed")
	}
	rootedEntry := h.Lookup(journal.KeyOf(rooted))
	if rootedEntry == nil {
		t.Fatal("rooted entry must survive sweep")
	}
	if rootedEntry.HasMark() {
		t.Fatal("sweep must clear MARK on survivors for the next cycle")
	}
}

func TestCollectAndApplyPromotions(t *testing.T) {
	h := New()
	addr := uintptr(0x50000)
	h.ApplyNewInc(journal.KeyOf(addr), trace.Pack(leafDispatcher))

	MarkYoung(h, 3)
	promoted := CollectPromotable(h)
	if len(promoted) != 1 || promoted[0].Addr != addr {
		t.Fatalf("CollectPromotable = %+v, want one ref to %#x", promoted, addr)
	}

	ApplyPromotions(h, promoted)
	e := h.Lookup(journal.KeyOf(addr))
	if e == nil {
		t.Fatal("promoted entry must remain as a root-tracker")
	}
	if e.HasNew() {
		t.Fatal("ApplyPromotions must clear NEW")
	}
	if h.NewCount() != 0 {
		t.Fatalf("NewCount() = %d, want 0 after promotion", h.NewCount())
	}
}
