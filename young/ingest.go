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

import "github.com/vireogc/vireogc/journal"

func ingestOne(h *Heap, r journal.Record) {
	switch r.Tag() {
	case journal.TagNew:
		h.ApplyNew(r.Key(), r.VTable())
	case journal.TagNewInc:
		h.ApplyNewInc(r.Key(), r.VTable())
	case journal.TagInc:
		h.ApplyInc(r.Key())
	case journal.TagDec:
		h.ApplyDec(r.Key())
	}
}

// ReadJournals drains every journal in reg in a round-robin manner (one
// buffer from each per round, so no single noisy mutator can starve the
// others within a pass), bounded by bufferRun buffers per journal and
// journalRun total records, and finally applies the decrements that were
// deferred before this pass began. It returns the number of records
// read.
func ReadJournals(h *Heap, reg *journal.Registry, bufferRun, journalRun int) int {
	aged := h.BeginDrainPass()

	journals := reg.Snapshot()
	drained := make([]int, len(journals))
	recordsRead := 0

	for recordsRead < journalRun {
		progressed := false
		for i, j := range journals {
			if drained[i] >= bufferRun {
				continue
			}
			if recordsRead >= journalRun {
				break
			}
			if !j.HasPending() {
				continue
			}
			_, records := j.Drain(1, func(r journal.Record) { ingestOne(h, r) })
			if records == 0 {
				continue
			}
			recordsRead += records
			drained[i]++
			progressed = true
		}
		if !progressed {
			break
		}
	}

	h.ApplyAgedDecrements(aged)
	return recordsRead
}
