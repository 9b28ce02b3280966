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

// Package trace defines the capability contract between the collector core
// and the concrete GC-managed types it collects: how a type enumerates its
// children (Trace) and how it is destroyed, dispatched through a packed
// VTable rather than a language-level interface vtable so that the same
// pointer travels through journal records and trie entries unmodified.
package trace

import "unsafe"

// Status is the result of a single Trace call.
type Status int

const (
	// Done indicates the object pushed a coherent snapshot of all of its
	// directly held children onto the Stack.
	Done Status = iota
	// Defer indicates no coherent snapshot could be obtained cheaply;
	// nothing was pushed, and the caller should retry later in the same
	// mark phase.
	Defer
)

func (s Status) String() string {
	if s == Defer {
		return "defer"
	}
	return "done"
}

// Ref names a single GC-managed child: its address and the dispatcher for
// its concrete type, exactly the pair carried by a journal record.
type Ref struct {
	Addr uintptr
	VT   VTable
}

// Stack is the destination Trace implementations push children onto. The
// collector supplies concrete, possibly work-stealing, implementations;
// user Trace code only ever sees this interface.
type Stack interface {
	Push(Ref)
}

// Dispatcher is the per-type capability record: the trace and destroy
// entry points for one concrete GC-managed type. Exactly one Dispatcher
// exists per type and its address is what VTable packs.
//
// Trace must push each directly held GC-managed child atomically with
// respect to mutator writes, i.e. the set pushed must correspond to some
// coherent snapshot of the object's children. If that isn't cheaply
// obtainable, Trace must push nothing and return Defer.
//
// Destroy is invoked exactly once, by sweep, and must not dereference any
// other GC-managed pointer: collection order among unreachable objects is
// unspecified.
type Dispatcher struct {
	Trace   func(addr uintptr, into Stack) Status
	Destroy func(addr uintptr)
	// Traverse reports whether the type holds nested GC-managed pointers
	// at all. Scalar-only types set this false to skip a Trace call
	// entirely during marking.
	Traverse bool
}

// VTable is a Dispatcher pointer with its low bit repurposed to cache the
// Traverse flag, so marking can skip the indirect call for scalar-only
// types without dereferencing the dispatcher. Dispatcher values must
// therefore be allocated with at least 2-byte alignment, which any
// Go-allocated struct satisfies.
type VTable uintptr

const traverseBit = uintptr(1)

// Pack encodes d's Traverse flag into its pointer's low bit. d must not be
// nil and must outlive every VTable packed from it (Dispatchers are
// typically package-level vars, one per concrete type).
func Pack(d *Dispatcher) VTable {
	p := uintptr(unsafe.Pointer(d))
	if p&traverseBit != 0 {
		panic("trace: Dispatcher is not word-aligned")
	}
	if d.Traverse {
		p |= traverseBit
	}
	return VTable(p)
}

// Dispatcher recovers the packed pointer, masking off the TRAVERSE bit.
func (v VTable) Dispatcher() *Dispatcher {
	return (*Dispatcher)(unsafe.Pointer(uintptr(v) &^ traverseBit))
}

// Traversable reports the cached TRAVERSE bit without dereferencing the
// dispatcher.
func (v VTable) Traversable() bool {
	return uintptr(v)&traverseBit != 0
}

// IsZero reports whether v carries no dispatcher at all (the zero value).
func (v VTable) IsZero() bool {
	return uintptr(v)&^traverseBit == 0
}
