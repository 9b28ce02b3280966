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
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/vireogc/vireogc/radix"
	"github.com/vireogc/vireogc/trace"
	"github.com/vireogc/vireogc/young"
)

type shardSize struct {
	shard *radix.Shard[Entry]
	n     int
}

// orderShards returns shards sorted largest-backlog-first, so the
// worker pool dispatches its biggest shards before its smallest.
func orderShards(shards []*radix.Shard[Entry]) []*radix.Shard[Entry] {
	sizes := make([]shardSize, len(shards))
	for i, sh := range shards {
		n := 0
		sh.Range(func(uint64, *Entry) bool { n++; return true })
		sizes[i] = shardSize{shard: sh, n: n}
	}
	slices.SortFunc(sizes, func(a, b shardSize) bool { return a.n > b.n })
	ordered := make([]*radix.Shard[Entry], len(sizes))
	for i, s := range sizes {
		ordered[i] = s.shard
	}
	return ordered
}

// MarkMatureParallel is the sharded counterpart to MarkMature (spec.md
// §4.6 "both phases shard the trie into K disjoint sub-tries"): the
// Mature Heap's own shards are cleared in parallel, and the Young
// Heap's roots are sharded the same way MarkYoungParallel shards them so
// each worker seeds and traces its own slice of roots independently.
// Workers only ever communicate through the Mature Heap's atomic MARK
// bit (via the shared syncedMatureVisitor) and its deduped young-only
// set, never through a shared work queue.
func MarkMatureParallel(yh *young.Heap, h *Heap, k int, maxDeferRetries int) (marked int, deferExceeded int) {
	shards := orderShards(h.Shards(k))

	var clearWG sync.WaitGroup
	for _, sh := range shards {
		clearWG.Add(1)
		go func(sh *radix.Shard[Entry]) {
			defer clearWG.Done()
			sh.Range(func(key uint64, e *Entry) bool {
				e.clearMark()
				return true
			})
		}(sh)
	}
	clearWG.Wait()

	rootShards := yh.Shards(k)
	visitor := &syncedMatureVisitor{mature: h, young: yh}

	var deferTotal atomic.Int64
	var markWG sync.WaitGroup
	for _, rsh := range rootShards {
		markWG.Add(1)
		go func(rsh *radix.Shard[young.Entry]) {
			defer markWG.Done()
			var seeds []trace.Ref
			rsh.Range(func(key uint64, e *young.Entry) bool {
				if e.Refcount() > 0 {
					seeds = append(seeds, trace.Ref{Addr: addrOf(key), VT: e.VTable()})
				}
				return true
			})
			deferTotal.Add(int64(trace.Run(seeds, visitor, maxDeferRetries)))
		}(rsh)
	}
	markWG.Wait()
	deferExceeded = int(deferTotal.Load())

	h.Range(func(key uint64, e *Entry) bool {
		if e.HasMark() {
			marked++
		}
		return true
	})
	return marked, deferExceeded
}

// SweepParallel is the sharded counterpart to Sweep: embarrassingly
// parallel per spec.md §4.6, each worker destroying unmarked entries in
// its own shard with no cross-shard communication.
func SweepParallel(h *Heap, k int) (swept int) {
	shards := orderShards(h.Shards(k))
	var total atomic.Int64
	var wg sync.WaitGroup
	for _, sh := range shards {
		wg.Add(1)
		go func(sh *radix.Shard[Entry]) {
			defer wg.Done()
			type victim struct {
				key uint64
				e   *Entry
			}
			var toDestroy []victim
			sh.Range(func(key uint64, e *Entry) bool {
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
			total.Add(int64(len(toDestroy)))
		}(sh)
	}
	wg.Wait()
	return int(total.Load())
}
