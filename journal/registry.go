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

package journal

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is the process-wide set of live journals, one per mutator
// thread. Journals enter it only through an explicit Register call and
// leave it only through Unregister; creating a root handle does not
// register a journal, and a thread exiting does not unregister one. The
// collector thread holds no reference
// to any Journal outside of what Snapshot hands it, so a mutator thread
// that exits mid-cycle cannot leave the collector holding a stale pointer
// it dereferences after Unregister.
type Registry struct {
	mu       sync.Mutex
	journals map[uuid.UUID]*Journal
}

// NewRegistry returns an empty Registry. Most programs use the package
// level Global registry instead of constructing their own, but tests
// benefit from isolated instances.
func NewRegistry() *Registry {
	return &Registry{journals: make(map[uuid.UUID]*Journal)}
}

// Global is the registry driver.New reads from when it is given a nil
// registry.
var Global = NewRegistry()

// Register creates a new Journal with the given minimum buffer capacity,
// adds it to the registry, and returns it along with the id future calls
// to Unregister/Close need.
func (r *Registry) Register(minCapacity uint32) (*Journal, uuid.UUID) {
	j := New(minCapacity)
	id := uuid.New()
	r.mu.Lock()
	r.journals[id] = j
	r.mu.Unlock()
	return j, id
}

// Unregister removes a journal from the registry without draining it; the
// caller must have already called Close and ensured the collector has
// observed Drained() before calling this, or records can be lost.
func (r *Registry) Unregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.journals, id)
	r.mu.Unlock()
}

// Snapshot returns a stable slice of the currently registered journals,
// suitable for the collector's round-robin drain pass. Taking a snapshot
// rather than iterating the map directly means a concurrent Register
// cannot be observed mid-drain-pass, satisfying the round-robin-per-pass
// reading of spec.md §4.4.
func (r *Registry) Snapshot() []*Journal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Journal, 0, len(r.journals))
	for _, j := range r.journals {
		out = append(out, j)
	}
	return out
}

// AllDrained reports whether every currently registered journal is closed
// and fully drained, the condition that ends the collector's main loop
// and triggers the final unconditional cycle (spec.md §4.7).
func (r *Registry) AllDrained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.journals {
		if !j.Drained() {
			return false
		}
	}
	return true
}

// Len reports how many journals are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.journals)
}
