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

// Package roothandle implements the external contract of spec.md §4.2: a
// scoped, stack-resident smart pointer whose creation, copy, and drop emit
// journal records. The object tracing logic for concrete user types is
// out of scope; this package only ever moves addresses and dispatchers
// around, never dereferences the pointee beyond Borrow.
package roothandle

import (
	"sync/atomic"
	"unsafe"

	"github.com/vireogc/vireogc/journal"
	"github.com/vireogc/vireogc/trace"
)

// Handle is a scoped root reference to a GC-managed T, resident on the
// stack of the mutator thread that created it. A Handle is not safe to
// share across threads: moving one to another goroutine without an
// explicit Clone violates the single-producer assumption of the
// underlying Journal. Copying via Clone (which emits INC) and dropping
// the original (which emits DEC) is the supported way to hand a reference
// to another thread.
type Handle[T any] struct {
	addr uintptr
	vt   trace.VTable
	j    *journal.Journal
}

// New creates a root handle around obj, already rooted: it emits
// NEW+INC, so the refcount the collector observes starts at 1 without a
// separate Clone. A resource-exhaustion error aborts the creation; obj
// never becomes visible to the collector in that case (spec.md §7).
func New[T any](j *journal.Journal, obj *T, d *trace.Dispatcher) (Handle[T], error) {
	addr := uintptr(unsafe.Pointer(obj))
	vt := trace.Pack(d)
	if err := j.Emit(journal.TagNewInc, addr, vt); err != nil {
		return Handle[T]{}, err
	}
	return Handle[T]{addr: addr, vt: vt, j: j}, nil
}

// Register introduces obj to the young heap without rooting it (emits
// plain NEW): the object is reachable only once something stores its
// address into a Slot that is itself reachable from a root. This is the
// entry point for objects built to live behind an atomic child slot from
// the moment of allocation.
func Register[T any](j *journal.Journal, obj *T, d *trace.Dispatcher) (trace.Ref, error) {
	addr := uintptr(unsafe.Pointer(obj))
	vt := trace.Pack(d)
	if err := j.Emit(journal.TagNew, addr, vt); err != nil {
		return trace.Ref{}, err
	}
	return trace.Ref{Addr: addr, VT: vt}, nil
}

// Clone produces a second root handle to the same object, emitting INC.
// A resource-exhaustion error leaves h's own root untouched; the caller
// still holds exactly the handle it started with.
func (h Handle[T]) Clone() (Handle[T], error) {
	if err := h.j.Emit(journal.TagInc, h.addr, h.vt); err != nil {
		return Handle[T]{}, err
	}
	return Handle[T]{addr: h.addr, vt: h.vt, j: h.j}, nil
}

// Drop releases this root handle, emitting DEC. Drop returns nothing and
// never cancels: the DEC record is queued, taking a fresh buffer if the
// current one is full. If that buffer cannot be allocated, the error is
// discarded: the DEC record is not written and nothing reports the
// failure, to the caller or elsewhere.
func (h Handle[T]) Drop() {
	_ = h.j.Emit(journal.TagDec, h.addr, h.vt)
}

// Borrow returns a non-owning *T with no journal activity at all. It is
// the recommended read path: callers that only need to read or call
// methods on the pointee, and that can guarantee some other root keeps it
// alive for the duration of the borrow, should prefer this over Clone.
func (h Handle[T]) Borrow() *T {
	return (*T)(unsafe.Pointer(h.addr))
}

// Ref exposes the (address, vtable) pair this handle names, for code that
// needs to hand the reference to the collector directly (e.g. pushing it
// onto a trace.Stack from within a Trace implementation).
func (h Handle[T]) Ref() trace.Ref {
	return trace.Ref{Addr: h.addr, VT: h.vt}
}

// Slot is an atomic, Trace-visible GC-managed pointer slot: the storage a
// container implementing the Trace snapshot contract uses for its
// children, distinct from a Handle's stack-resident, non-atomic storage.
// Storing into a Slot never touches the journal — reference counts only
// ever apply to roots, never to heap-internal edges (spec.md §9, "Cyclic
// data structures").
type Slot[T any] struct {
	p atomic.Pointer[T]
	d atomic.Pointer[trace.Dispatcher]
}

// Store atomically replaces the slot's pointee. d may be nil to clear the
// slot.
func (s *Slot[T]) Store(obj *T, d *trace.Dispatcher) {
	s.p.Store(obj)
	s.d.Store(d)
}

// Load atomically reads the slot's current pointee.
func (s *Slot[T]) Load() *T {
	return s.p.Load()
}

// Ref reads the slot's current (address, vtable) pair atomically enough
// for a coherent Trace snapshot, provided the caller takes both halves in
// one Ref call rather than combining separate Load calls. It returns the
// zero Ref if the slot is empty.
func (s *Slot[T]) Ref() trace.Ref {
	obj := s.p.Load()
	if obj == nil {
		return trace.Ref{}
	}
	d := s.d.Load()
	if d == nil {
		return trace.Ref{Addr: uintptr(unsafe.Pointer(obj))}
	}
	return trace.Ref{Addr: uintptr(unsafe.Pointer(obj)), VT: trace.Pack(d)}
}
