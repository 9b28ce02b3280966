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
	"sync/atomic"
	"unsafe"

	"github.com/vireogc/vireogc/gcconfig"
)

// bufferHead is the ready-queue handoff state: the producer-published
// record count and the fixed capacity/storage it guards, published with
// release ordering by the producer and read with acquire ordering by the
// consumer, plus the link to the next buffer in the consumer's ready
// queue.
type bufferHead struct {
	written   atomic.Uint32
	capacity  uint32
	records   []Record
	queueNext atomic.Pointer[Buffer]
}

// Buffer is a contiguous, fixed-capacity array of records plus the header
// the SPSC protocol needs to hand it off. pad keeps freeNext, the
// Treiber free-list link, off the cache line bufferHead occupies:
// allocBuffer/pushFree pop and push freeNext on every buffer retire or
// reuse, a CAS loop with nothing to do with the drain/publish path above
// and with no reason to invalidate its cache line on every free-list
// operation (gcconfig.CacheLine, spec.md §6 "CACHE_LINE"). A buffer is
// on at most one of queueNext/freeNext's lists at a time, per the
// single-ownership discipline described in the package doc.
type Buffer struct {
	bufferHead
	pad      [gcconfig.CacheLine - unsafe.Sizeof(bufferHead{})%gcconfig.CacheLine]byte
	freeNext atomic.Pointer[Buffer]
}

func newBuffer(capacity uint32) (*Buffer, error) {
	records, err := allocRecords(capacity)
	if err != nil {
		return nil, err
	}
	return &Buffer{bufferHead: bufferHead{capacity: capacity, records: records}}, nil
}

// reset prepares a retired buffer for reuse by the producer.
func (b *Buffer) reset() {
	b.written.Store(0)
	b.queueNext.Store(nil)
}

// publish makes the first n records visible to the consumer.
func (b *Buffer) publish(n uint32) {
	b.written.Store(n) // release
}

// Len returns the number of records the producer has published so far.
func (b *Buffer) Len() uint32 {
	return b.written.Load() // acquire
}

// At returns the i'th record. Callers must first check i < Len().
func (b *Buffer) At(i uint32) Record {
	return b.records[i]
}

// Cap returns the buffer's fixed record capacity.
func (b *Buffer) Cap() uint32 { return b.capacity }
