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

// Sweep destroys every entry whose MARK bit came out clear from the
// preceding MarkMature and clears MARK on everything that survives.
func Sweep(h *Heap) (swept int) {
	type victim struct {
		key uint64
		e   *Entry
	}
	var toDestroy []victim

	h.Range(func(key uint64, e *Entry) bool {
		if !e.HasMark() {
			toDestroy = append(toDestroy, victim{key, e})
			return true
		}
		e.clearMark()
		return true
	})

	for _, v := range toDestroy {
		h.destroyAndRemove(v.key, v.e)
	}
	return len(toDestroy)
}
