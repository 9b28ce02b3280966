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

// Package driver runs the single GC thread's main loop (spec.md §4.7):
// drain journals, decide young-vs-full policy, mark, sweep, sleep
// adaptively, repeat until every mutator journal has closed and
// drained, at which point one final unconditional cycle runs. Mark and
// sweep fan out across a worker pool the way the teacher's tenant
// manager fans background work across goroutines, sharding the Young
// and Mature Heaps into disjoint sub-tries (spec.md §4.6).
package driver

import (
	"context"
	"runtime"
	"time"

	"github.com/vireogc/vireogc/gcconfig"
	"github.com/vireogc/vireogc/journal"
	"github.com/vireogc/vireogc/mature"
	"github.com/vireogc/vireogc/stats"
	"github.com/vireogc/vireogc/young"
)

// Driver owns the Young and Mature Heaps and runs cycles against a
// journal.Registry until told to stop.
type Driver struct {
	cfg gcconfig.Config
	reg *journal.Registry

	Young *young.Heap
	Old   *mature.Heap

	Stats *stats.Logger

	// pendingDrained carries the record count from the drain that
	// precedes a collect() call into the Cycle it records; CollectNow
	// (called with no preceding drain) reports zero.
	pendingDrained int
}

// New builds a Driver reading from reg with the given configuration.
// Zero-valued fields in cfg are replaced with gcconfig.Defaults(). A nil
// reg uses journal.Global.
func New(cfg gcconfig.Config, reg *journal.Registry) *Driver {
	if reg == nil {
		reg = journal.Global
	}
	return &Driver{
		cfg:   cfg.Normalize(),
		reg:   reg,
		Young: young.New(),
		Old:   mature.New(),
		Stats: &stats.Logger{},
	}
}

func (d *Driver) workers() int {
	if d.cfg.Workers > 0 {
		return d.cfg.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Run executes the main loop until ctx is cancelled or every registered
// journal has closed and drained, running one final unconditional cycle
// before returning (spec.md §4.7 "Shutdown").
func (d *Driver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.finalCycle()
			return
		default:
		}

		if d.reg.Len() > 0 && d.reg.AllDrained() {
			d.finalCycle()
			return
		}

		d.step()

		sleep := d.Stats.NextSleep(d.cfg.MinSleepDur, d.cfg.MaxSleepDur)
		select {
		case <-ctx.Done():
			d.finalCycle()
			return
		case <-time.After(sleep):
		}
	}
}

// finalCycle runs one last full, unconditional cycle, the shutdown
// behavior spec.md §4.7 requires once every journal is drained.
func (d *Driver) finalCycle() {
	d.pendingDrained = young.ReadJournals(d.Young, d.reg, d.cfg.BufferRun, d.cfg.JournalRun)
	d.collect(true)
}

// step runs exactly one drain+policy+mark+sweep pass.
func (d *Driver) step() {
	d.pendingDrained = young.ReadJournals(d.Young, d.reg, d.cfg.BufferRun, d.cfg.JournalRun)
	full := d.Young.NewCount() >= int64(d.cfg.MajorCollectThreshold) || d.cfg.ForcePromote
	d.collect(full)
}

// CollectNow runs one mark+sweep pass directly, bypassing the initial
// drain and the policy decision, and reports the resulting cycle; the
// cycle's reconcileRace drain still runs between its two marks, and the
// records it reads are not counted in RecordsDrained. full selects a full
// cycle (promotion + Mature Heap mark/sweep) over a young-only cycle.
// Exported so an embedder under memory pressure can force an
// out-of-cadence cycle.
func (d *Driver) CollectNow(full bool) stats.Cycle {
	return d.collect(full)
}

// reconcileRace re-drains every journal once more, the chosen fix
// (SPEC_FULL.md §6, option (b)) for the race between a mutator
// publishing a fresh root and the driver's initial mark observing the
// heap before that root is visible: a handle cloned and journaled after
// the initial drain but before sweep would otherwise look unrooted.
// Re-draining (and re-marking, by the caller) before sweep closes that
// window at the cost of one extra pass per cycle.
func (d *Driver) reconcileRace() int {
	return young.ReadJournals(d.Young, d.reg, d.cfg.BufferRun, d.cfg.JournalRun)
}

func (d *Driver) collect(full bool) stats.Cycle {
	k := d.workers()

	markStart := time.Now()
	young.MarkYoungParallel(d.Young, k, d.cfg.MaxDeferRetries)

	d.reconcileRace()
	marked, deferExceeded := young.MarkYoungParallel(d.Young, k, d.cfg.MaxDeferRetries)

	var promoted int
	if full {
		candidates := young.CollectPromotable(d.Young)
		for _, ref := range candidates {
			d.Old.Insert(journal.KeyOf(ref.Addr), ref.VT)
		}
		young.ApplyPromotions(d.Young, candidates)
		promoted = len(candidates)

		matureMarked, matureDeferExceeded := mature.MarkMatureParallel(d.Young, d.Old, k, d.cfg.MaxDeferRetries)
		marked += matureMarked
		deferExceeded += matureDeferExceeded
	}
	markDur := time.Since(markStart)

	sweepStart := time.Now()
	swept := young.SweepYoungParallel(d.Young, k)
	if full {
		swept += mature.SweepParallel(d.Old, k)
	}
	sweepDur := time.Since(sweepStart)

	c := stats.Cycle{
		Full:           full,
		RecordsDrained: d.pendingDrained,
		Marked:         marked,
		Swept:          swept,
		Promoted:       promoted,
		DeferExceeded:  deferExceeded,
		MarkDuration:   markDur,
		SweepDuration:  sweepDur,
	}
	d.pendingDrained = 0
	d.Stats.Record(c)
	return c
}
