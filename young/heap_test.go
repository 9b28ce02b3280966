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

var noopDispatcher = &trace.Dispatcher{}

func TestApplyNewInsertsWithNewFlag(t *testing.T) {
	h := New()
	key := journal.KeyOf(0x1000)
	h.ApplyNew(key, trace.Pack(noopDispatcher))

	e := h.Lookup(key)
	if e == nil {
		t.Fatal("expected an entry after ApplyNew")
	}
	if !e.HasNew() {
		t.Fatal("expected NEW to be set")
	}
	if e.Refcount() != 0 {
		t.Fatalf("Refcount() = %d, want 0", e.Refcount())
	}
	if h.NewCount() != 1 {
		t.Fatalf("NewCount() = %d, want 1", h.NewCount())
	}
}

func TestApplyNewIncStartsRootedAtOne(t *testing.T) {
	h := New()
	key := journal.KeyOf(0x2000)
	h.ApplyNewInc(key, trace.Pack(noopDispatcher))

	e := h.Lookup(key)
	if e.Refcount() != 1 {
		t.Fatalf("Refcount() = %d, want 1", e.Refcount())
	}
	if !e.HasNew() {
		t.Fatal("expected NEW to be set")
	}
}

// TestIncBeforeNewCreatesVtablelessStub exercises the ordering spec.md's
// scenario 2 calls out: an INC record can be drained before the NEW
// record for the same object if they arrive on different journals. The
// stub entry ApplyInc creates must later receive a real vtable from
// ApplyNew without losing the refcount the stub already accumulated.
func TestIncBeforeNewCreatesVtablelessStub(t *testing.T) {
	h := New()
	key := journal.KeyOf(0x3000)

	h.ApplyInc(key)
	stub := h.Lookup(key)
	if stub == nil || !stub.VTable().IsZero() {
		t.Fatal("expected a vtable-less stub entry")
	}
	if stub.Refcount() != 1 {
		t.Fatalf("stub Refcount() = %d, want 1", stub.Refcount())
	}

	vt := trace.Pack(noopDispatcher)
	h.ApplyNew(key, vt)

	e := h.Lookup(key)
	if e.VTable().IsZero() {
		t.Fatal("expected ApplyNew to install the real vtable on the stub")
	}
	if e.Refcount() != 1 {
		t.Fatalf("Refcount() after ApplyNew = %d, want unaffected 1", e.Refcount())
	}
	if !e.HasNew() {
		t.Fatal("expected NEW to be set by ApplyNew")
	}
}

func TestDeferredDecAgesOneDrainPass(t *testing.T) {
	h := New()
	key := journal.KeyOf(0x4000)
	h.ApplyNewInc(key, trace.Pack(noopDispatcher))
	h.ApplyInc(key) // refcount now 2

	// Pass 1: the DEC arrives mid-pass, so BeginDrainPass at the top of
	// this same pass must not see it yet.
	aged := h.BeginDrainPass()
	h.ApplyDec(key)
	h.ApplyAgedDecrements(aged)
	if e := h.Lookup(key); e == nil || e.Refcount() != 2 {
		t.Fatalf("DEC applied before a full pass elapsed")
	}

	// Pass 2: BeginDrainPass now picks up pass 1's DEC.
	aged = h.BeginDrainPass()
	h.ApplyAgedDecrements(aged)
	e := h.Lookup(key)
	if e == nil || e.Refcount() != 1 {
		t.Fatalf("expected refcount 1 after the deferred DEC aged in, got %+v", e)
	}
}

func TestAgedDecrementToZeroRemovesNonNewEntry(t *testing.T) {
	h := New()
	key := journal.KeyOf(0x5000)
	h.ApplyNewInc(key, trace.Pack(noopDispatcher))
	h.Promote(key) // clears NEW, entry becomes a pure root-tracker

	aged := h.BeginDrainPass()
	h.ApplyDec(key)
	h.ApplyAgedDecrements(aged)

	aged = h.BeginDrainPass()
	h.ApplyAgedDecrements(aged)

	if h.Lookup(key) != nil {
		t.Fatal("expected entry to be removed once refcount hits zero with NEW clear")
	}
}

func TestAgedDecrementToZeroKeepsNewEntry(t *testing.T) {
	h := New()
	key := journal.KeyOf(0x6000)
	h.ApplyNewInc(key, trace.Pack(noopDispatcher))

	aged := h.BeginDrainPass()
	h.ApplyDec(key)
	h.ApplyAgedDecrements(aged)

	aged = h.BeginDrainPass()
	h.ApplyAgedDecrements(aged)

	e := h.Lookup(key)
	if e == nil {
		t.Fatal("expected entry to survive: NEW is still set")
	}
	if e.Refcount() != 0 {
		t.Fatalf("Refcount() = %d, want 0", e.Refcount())
	}
}
