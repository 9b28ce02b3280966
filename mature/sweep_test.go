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

package mature

import (
	"testing"

	"github.com/vireogc/vireogc/journal"
	"github.com/vireogc/vireogc/trace"
	"github.com/vireogc/vireogc/young"
)

func TestSweepDestroysUnmarkedAndClearsSurvivors(t *testing.T) {
	yh := young.New()
	h := New()
	var destroyed []uintptr
	destroyDispatcher := &trace.Dispatcher{
		Destroy: func(addr uintptr) { destroyed = append(destroyed, addr) },
	}

	rooted := uintptr(0x40000)
	garbage := uintptr(0x50000)
	yh.ApplyNewInc(journal.KeyOf(rooted), trace.Pack(destroyDispatcher))
	h.Insert(journal.KeyOf(rooted), trace.Pack(destroyDispatcher))
	h.Insert(journal.KeyOf(garbage), trace.Pack(destroyDispatcher))

	MarkMature(yh, h, 3)
	swept := Sweep(h)

	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}
	if len(destroyed) != 1 || destroyed[0] != garbage {
		t.Fatalf("destroyed = %v, want [%#x]", destroyed, garbage)
	}
	if h.Lookup(journal.KeyOf(garbage)) != nil {
		t.Fatal("garbage entry should have been removed")
	}
	survivor := h.Lookup(journal.KeyOf(rooted))
	if survivor == nil {
		t.Fatal("rooted entry must survive sweep")
	}
	if survivor.HasMark() {
		t.Fatal("sweep must clear MARK on survivors for the next cycle")
	}
}

func TestInsertIsIdempotentAndOverwritesVTable(t *testing.T) {
	h := New()
	key := journal.KeyOf(0x60000)
	first := &trace.Dispatcher{}
	second := &trace.Dispatcher{Traverse: true}

	h.Insert(key, trace.Pack(first))
	e := h.Lookup(key)
	e.testAndSetMark()

	h.Insert(key, trace.Pack(second))
	if !h.Lookup(key).HasMark() {
		t.Fatal("re-inserting an already-present key must not disturb its MARK bit")
	}
	if h.Lookup(key).VTable() != trace.Pack(second) {
		t.Fatal("re-inserting an already-present key must still overwrite the vtable")
	}
}
