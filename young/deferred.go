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
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// deferredBuffer holds DEC records that must age at least one full
// journal-drain pass before being applied (spec.md §4.4). It is
// exclusively owned by the collector driver, so no locking is needed:
// add() is only ever called while draining, rotate() only ever called
// between drain passes on the same goroutine.
type deferredBuffer struct {
	pending map[uint64]int32
}

func (d *deferredBuffer) add(key uint64) {
	if d.pending == nil {
		d.pending = make(map[uint64]int32)
	}
	d.pending[key]++
}

// rotate returns everything accumulated so far (aged by the pass that is
// about to run) and starts a fresh generation for the pass that is about
// to begin.
func (d *deferredBuffer) rotate() map[uint64]int32 {
	aged := d.pending
	d.pending = make(map[uint64]int32)
	return aged
}

// sortedKeys returns m's keys in ascending order, so applying aged
// decrements has a deterministic order for tests and stats even though
// the order doesn't affect correctness (distinct keys never interact).
func sortedKeys(m map[uint64]int32) []uint64 {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
