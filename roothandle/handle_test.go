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

package roothandle

import (
	"testing"
	"unsafe"

	"github.com/vireogc/vireogc/journal"
	"github.com/vireogc/vireogc/trace"
)

type thing struct{ n int }

var dispatcher = &trace.Dispatcher{}

func drainAll(j *journal.Journal) []journal.Record {
	j.Close()
	var out []journal.Record
	for {
		_, n := j.Drain(64, func(r journal.Record) { out = append(out, r) })
		if n == 0 {
			break
		}
	}
	return out
}

func TestNewEmitsNewIncRootedAtOne(t *testing.T) {
	j := journal.New(8)
	obj := &thing{n: 1}

	h, err := New(j, obj, dispatcher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if h.Ref().Addr != uintptr(unsafe.Pointer(obj)) {
		t.Fatal("handle address must match the object's address")
	}

	recs := drainAll(j)
	if len(recs) != 1 || recs[0].Tag() != journal.TagNewInc {
		t.Fatalf("records = %+v, want a single TagNewInc", recs)
	}
}

func TestRegisterEmitsPlainNew(t *testing.T) {
	j := journal.New(8)
	obj := &thing{n: 2}

	ref, err := Register(j, obj, dispatcher)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if ref.Addr != uintptr(unsafe.Pointer(obj)) {
		t.Fatal("ref address must match the object's address")
	}

	recs := drainAll(j)
	if len(recs) != 1 || recs[0].Tag() != journal.TagNew {
		t.Fatalf("records = %+v, want a single TagNew", recs)
	}
}

func TestCloneEmitsIncForSameAddr(t *testing.T) {
	j := journal.New(8)
	obj := &thing{n: 3}
	h, err := New(j, obj, dispatcher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	clone, err := h.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	if clone.Ref().Addr != h.Ref().Addr {
		t.Fatal("a clone must name the same object")
	}

	recs := drainAll(j)
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2 (NEW+INC, INC)", len(recs))
	}
	if recs[0].Tag() != journal.TagNewInc || recs[1].Tag() != journal.TagInc {
		t.Fatalf("tags = [%v %v], want [NEW+INC INC]", recs[0].Tag(), recs[1].Tag())
	}
	if recs[1].Key() != recs[0].Key() {
		t.Fatal("the Clone's INC must target the same key as the original NEW+INC")
	}
}

func TestDropEmitsDec(t *testing.T) {
	j := journal.New(8)
	obj := &thing{n: 4}
	h, err := New(j, obj, dispatcher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	h.Drop()

	recs := drainAll(j)
	if len(recs) != 2 || recs[1].Tag() != journal.TagDec {
		t.Fatalf("records = %+v, want [NEW+INC, DEC]", recs)
	}
	if recs[1].Key() != recs[0].Key() {
		t.Fatal("Drop's DEC must target the handle's own key")
	}
}

func TestBorrowReturnsTheUnderlyingPointerWithNoJournalActivity(t *testing.T) {
	j := journal.New(8)
	obj := &thing{n: 5}
	h, err := New(j, obj, dispatcher)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	drainAll(j) // consume the NEW+INC so the buffer is empty

	if got := h.Borrow(); got != obj {
		t.Fatalf("Borrow() = %p, want %p", got, obj)
	}

	recs := drainAll(j)
	if len(recs) != 0 {
		t.Fatalf("Borrow must not touch the journal, got %d records", len(recs))
	}
}

func TestSlotStoreLoadAndRef(t *testing.T) {
	var s Slot[thing]
	if got := s.Ref(); got != (trace.Ref{}) {
		t.Fatalf("empty slot Ref() = %+v, want the zero Ref", got)
	}

	obj := &thing{n: 6}
	s.Store(obj, dispatcher)
	if s.Load() != obj {
		t.Fatal("Load must return what Store set")
	}
	ref := s.Ref()
	if ref.Addr != uintptr(unsafe.Pointer(obj)) || ref.VT != trace.Pack(dispatcher) {
		t.Fatalf("Ref() = %+v, want addr %p and the dispatcher's vtable", ref, obj)
	}
}
