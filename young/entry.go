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

// Package young implements the Young Heap of spec.md §4.4: a trie that
// unifies stack roots and newly allocated objects, journal ingestion, and
// the young mark/sweep/promotion cycle.
package young

import (
	"sync/atomic"

	"github.com/vireogc/vireogc/trace"
)

const (
	flagNew  uint32 = 1 << 0
	flagMark uint32 = 1 << 1
)

// Entry is one Young Heap record: a root refcount, a vtable, and the
// NEW/MARK flag bits. Outside of a parallel mark/sweep phase the
// collector driver has exclusive access and could use plain stores, but
// every mutator here goes through the same atomic ops regardless of
// phase, which costs nothing on any platform Go targets and removes an
// entire class of "which phase am I in" bugs.
type Entry struct {
	refcount atomic.Int32
	vt       atomic.Uintptr
	flags    atomic.Uint32
}

// VTable returns the entry's current vtable.
func (e *Entry) VTable() trace.VTable { return trace.VTable(e.vt.Load()) }

func (e *Entry) setVTable(vt trace.VTable) { e.vt.Store(uintptr(vt)) }

// Refcount returns the entry's current root refcount.
func (e *Entry) Refcount() int32 { return e.refcount.Load() }

func (e *Entry) addRefcount(delta int32) int32 { return e.refcount.Add(delta) }

// HasNew reports the NEW flag.
func (e *Entry) HasNew() bool { return e.flags.Load()&flagNew != 0 }

// HasMark reports the MARK flag.
func (e *Entry) HasMark() bool { return e.flags.Load()&flagMark != 0 }

// setNewReturnPrev sets the NEW bit and reports whether it was already
// set.
func (e *Entry) setNewReturnPrev() bool {
	for {
		old := e.flags.Load()
		if old&flagNew != 0 {
			return true
		}
		if e.flags.CompareAndSwap(old, old|flagNew) {
			return false
		}
	}
}

func (e *Entry) clearNew() {
	for {
		old := e.flags.Load()
		next := old &^ flagNew
		if next == old {
			return
		}
		if e.flags.CompareAndSwap(old, next) {
			return
		}
	}
}

// testAndSetMark sets the MARK bit and reports whether it was already
// set, so a caller can avoid re-pushing an already-visited object's
// children.
func (e *Entry) testAndSetMark() bool {
	for {
		old := e.flags.Load()
		if old&flagMark != 0 {
			return true
		}
		if e.flags.CompareAndSwap(old, old|flagMark) {
			return false
		}
	}
}

func (e *Entry) clearMark() {
	for {
		old := e.flags.Load()
		next := old &^ flagMark
		if next == old {
			return
		}
		if e.flags.CompareAndSwap(old, next) {
			return
		}
	}
}
