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
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/vireogc/vireogc/radix"
	"github.com/vireogc/vireogc/trace"
)

// shardSize is how many entries the shard holds, counted with a cheap
// pre-pass so the worker pool can launch its biggest shards first
// (orderShards below) instead of waiting on whichever straggler shard
// happened to be dispatched last.
type shardSize struct {
	shard *radix.Shard[Entry]
	n     int
}

// orderShards returns shards sorted largest-backlog-first.
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

// MarkYoungParallel is the sharded counterpart to MarkYoung (spec.md
// §4.6): the Young Heap is split into k disjoint shards, each driven by
// its own goroutine with its own TraceStack. A worker may still mark an
// entry that belongs to another worker's shard through Lookup, since the
// MARK bit is a single-word atomic CAS and the trie guarantees wait-free
// disjoint-key access.
func MarkYoungParallel(h *Heap, k int, maxDeferRetries int) (marked int, deferExceeded int) {
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

	var deferTotal atomic.Int64
	var markWG sync.WaitGroup
	for _, sh := range shards {
		markWG.Add(1)
		go func(sh *radix.Shard[Entry]) {
			defer markWG.Done()
			var seeds []trace.Ref
			sh.Range(func(key uint64, e *Entry) bool {
				if e.Refcount() > 0 {
					seeds = append(seeds, trace.Ref{Addr: addrOf(key), VT: e.VTable()})
				}
				return true
			})
			deferTotal.Add(int64(trace.Run(seeds, youngVisitor{h: h}, maxDeferRetries)))
		}(sh)
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

// SweepYoungParallel is the sharded counterpart to SweepYoung: sweep is
// embarrassingly parallel (spec.md §4.6), each worker destroying
// unmarked NEW entries in its own shard without cross-shard
// coordination.
func SweepYoungParallel(h *Heap, k int) (swept int) {
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
				if !e.HasNew() {
					return true
				}
				if e.HasMark() {
					e.clearMark()
					return true
				}
				toDestroy = append(toDestroy, victim{key, e})
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
