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

package trace

// Visitor decides, for a single worker/phase, what it means to "visit" a
// Ref the traversal reaches. Visit must be idempotent-safe: it is called
// once for every Ref popped off the stack, and the same address can
// legitimately be pushed more than once (e.g. once from a root, once
// again from a container that also holds it), so Visit's own mark-bit
// bookkeeping must make later occurrences a no-op.
type Visitor interface {
	// Visit reports whether the traversal should continue into ref's
	// own children. Returning false stops the walk at ref (it was
	// already marked, or it isn't relevant to this phase at all).
	Visit(ref Ref) bool
}

// runStack is the Stack implementation handed to Dispatcher.Trace calls
// during a single-threaded Run.
type runStack struct {
	items []Ref
}

func (s *runStack) Push(ref Ref) {
	s.items = append(s.items, ref)
}

// Run performs a single-threaded mark traversal from seed, following
// Trace calls and retrying Defer results up to maxDeferRetries times
// within this one phase. An object still deferring past the bound is
// treated as traced (its Visit already marked it reachable; its children
// simply aren't discovered via it this phase) and counted in the
// returned deferExceeded total.
//
// This is also the reference implementation P6 checks a sharded parallel
// mark against: given the same heap snapshot and the same seed set, both
// must produce the same marked set.
func Run(seed []Ref, visitor Visitor, maxDeferRetries int) (deferExceeded int) {
	s := &runStack{items: append([]Ref(nil), seed...)}
	var deferred []Ref
	retries := make(map[uintptr]int)

	// call invokes ref's Trace (if any) and either lets its children flow
	// onto s, re-queues ref for another attempt next round, or - past the
	// retry bound - gives up on ref and counts it. It is shared by fresh
	// refs (after Visit has approved them) and by retried deferred refs,
	// which must NOT go through Visit again: Visit's dedup bit was
	// already set the first time ref was seen, so a second Visit call
	// would always refuse it and the retry would never reach Trace.
	call := func(ref Ref) {
		if ref.VT.IsZero() || !ref.VT.Traversable() {
			return
		}
		d := ref.VT.Dispatcher()
		if d == nil || d.Trace == nil {
			return
		}
		switch d.Trace(ref.Addr, s) {
		case Done:
			// children already pushed onto s
		case Defer:
			retries[ref.Addr]++
			if retries[ref.Addr] > maxDeferRetries {
				deferExceeded++
				return
			}
			deferred = append(deferred, ref)
		}
	}

	for {
		for len(s.items) > 0 {
			ref := s.items[len(s.items)-1]
			s.items = s.items[:len(s.items)-1]
			if visitor.Visit(ref) {
				call(ref)
			}
		}
		if len(deferred) == 0 {
			return deferExceeded
		}
		retry := deferred
		deferred = nil
		for _, ref := range retry {
			call(ref)
		}
	}
}
