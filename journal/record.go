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

// Package journal implements the per-mutator, lock-free, unbounded SPSC
// queue of reference-count delta records that carries root-handle activity
// from mutator threads to the collector thread.
package journal

import "github.com/vireogc/vireogc/trace"

// Tag identifies which of the four record shapes a journal entry carries.
// It is packed into the two low bits an aligned address leaves free.
type Tag uint8

const (
	// TagDec records a root handle drop: refcount -= 1.
	TagDec Tag = 0
	// TagInc records a root handle clone: refcount += 1.
	TagInc Tag = 1
	// TagNew records a fresh object entering the young heap with no
	// root yet (e.g. it is about to be stored behind an atomic slot).
	TagNew Tag = 2
	// TagNewInc records a fresh object entering the young heap with an
	// immediate root: refcount = 1.
	TagNewInc Tag = 3
)

func (t Tag) String() string {
	switch t {
	case TagDec:
		return "DEC"
	case TagInc:
		return "INC"
	case TagNew:
		return "NEW"
	case TagNewInc:
		return "NEW+INC"
	default:
		return "?"
	}
}

// WordAlignShift is the word-alignment exponent: the allocator guarantees
// every object address has this many low zero bits, which the journal
// steals for Tag and which the heaps strip before using an address as a
// trie key.
const WordAlignShift = 3

const tagMask = uintptr(1)<<2 - 1

// Record is the two-machine-word wire format of one journal entry: a
// tagged address and a tagged vtable.
type Record struct {
	addrWord uintptr
	vt       trace.VTable
}

// NewRecord packs addr (which must be word-aligned) and tag into one word,
// alongside the object's vtable.
func NewRecord(tag Tag, addr uintptr, vt trace.VTable) Record {
	if addr&tagMask != 0 {
		panic("journal: address is not word-aligned")
	}
	return Record{addrWord: addr | uintptr(tag), vt: vt}
}

// Tag reports which of the four shapes this record is.
func (r Record) Tag() Tag { return Tag(r.addrWord & tagMask) }

// Addr returns the object address with tag bits masked clean. Callers must
// never use a raw journal address without this masking.
func (r Record) Addr() uintptr { return r.addrWord &^ tagMask }

// VTable returns the record's vtable pointer (TRAVERSE bit included).
func (r Record) VTable() trace.VTable { return r.vt }

// Key returns the address right-shifted by WordAlignShift, the form used
// to index the young/mature heap tries.
func (r Record) Key() uint64 { return KeyOf(r.Addr()) }

// KeyOf right-shifts addr by WordAlignShift, the form used to index the
// young/mature heap tries.
func KeyOf(addr uintptr) uint64 { return uint64(addr >> WordAlignShift) }

// AddrOf reconstructs the real object address from a trie key. Since the
// allocator guarantees the shifted-out low bits were zero, this loses
// nothing.
func AddrOf(key uint64) uintptr { return uintptr(key) << WordAlignShift }
