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

// Package gcerr collects the error values the collector core can return.
// Per spec, resource exhaustion aborts the offending operation with no
// partial state visible to mutators; there is nothing to retry at this
// level except a bounded Defer retry, which is not an error at all.
package gcerr

import "errors"

// ErrBufferAlloc is returned when a journal cannot allocate a
// replacement buffer for a full one. Journal buffers are the one place
// this collector allocates through a syscall (mmap, via
// journal.allocRecords) that can genuinely fail under memory pressure;
// spec.md §7's other resource-exhaustion kind, trie node allocation,
// has no equivalent here, since radix.Trie's child tables and the
// Young/Mature Heap entries are plain Go-managed struct allocations
// with no fallible path to report through this package — see
// DESIGN.md's gcerr entry.
var ErrBufferAlloc = errors.New("gcerr: journal buffer allocation failed")

// DeferExceeded records that a Trace call kept returning Defer past the
// configured retry bound. It is not returned as an error from any public
// API; the collector treats the object as traced and continues, but the
// event is observable via stats.Logger for operators who want to know
// their Trace implementations are starving.
type DeferExceeded struct {
	Addr    uintptr
	Retries int
}

func (e *DeferExceeded) Error() string {
	return "gcerr: trace defer bound exceeded"
}
