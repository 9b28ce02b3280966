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

// Package mature implements the Mature Heap of spec.md §4.5: the same
// trie shape as the Young Heap but carrying only a vtable and a MARK
// bit, collected by infrequent full-heap cycles instead of every pass.
package mature

import (
	"sync/atomic"

	"github.com/vireogc/vireogc/trace"
)

// Entry is one Mature Heap record. Unlike young.Entry there is no
// refcount and no NEW bit: an object only arrives here via promotion,
// and only leaves via a full sweep.
type Entry struct {
	vt    atomic.Uintptr
	flags atomic.Uint32
}

const flagMark uint32 = 1 << 0

// VTable returns the entry's vtable.
func (e *Entry) VTable() trace.VTable { return trace.VTable(e.vt.Load()) }

func (e *Entry) setVTable(vt trace.VTable) { e.vt.Store(uintptr(vt)) }

// HasMark reports the MARK flag.
func (e *Entry) HasMark() bool { return e.flags.Load()&flagMark != 0 }

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

// testAndSetMark sets MARK and reports whether it was already set.
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
