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

	"github.com/vireogc/vireogc/gcerr"
	"github.com/vireogc/vireogc/trace"
)

// nextPow2 rounds n up to the nearest power of two, never below 1.
func nextPow2(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// Journal is a single mutator's SPSC channel of fixed-size Buffers. The
// producer side (Emit) is only ever safe to call from the one thread that
// owns the Journal; the consumer side (Drain, owned by the collector
// thread) is safe to call concurrently with Emit from that one producer,
// but never from more than one consumer at a time.
type Journal struct {
	capacity uint32

	// producer-owned; touched only by Emit and its callers.
	cur *Buffer
	idx uint32
	// tail is the last Buffer this producer has linked into the ready
	// queue; producer-exclusive, never read by the consumer.
	tail *Buffer

	// head is read once by the consumer to find the first ready
	// buffer; written at most once per "queue was empty" transition,
	// which can only be the producer (the consumer never discovers
	// head is nil and then needs to set it).
	head atomic.Pointer[Buffer]

	// free is a Treiber stack of retired buffers: the consumer pushes
	// after a full drain pass, the producer pops in allocBuffer.
	free atomic.Pointer[Buffer]

	// consumer-owned; touched only by Drain and its callers.
	consumerNext    *Buffer
	consumerStarted bool

	closed atomic.Bool
}

// New creates a Journal whose buffers hold at least minCapacity records,
// rounded up to a power of two and, where the platform supports it, to
// fill at least one page.
func New(minCapacity uint32) *Journal {
	perPage := uint32(PageSize()) / uint32(recordSizeHint)
	if minCapacity < perPage {
		minCapacity = perPage
	}
	return &Journal{capacity: nextPow2(minCapacity)}
}

// recordSizeHint avoids an import-cycle-free dependency on unsafe.Sizeof
// here; alloc_linux.go defines the precise constant, this is a
// conservative cross-platform floor (two words).
const recordSizeHint = 16

// Emit appends one record to the producer's current buffer, publishing
// and rotating buffers as needed. It never blocks except on the
// underlying allocator, and only returns an error when a fresh buffer
// could not be allocated (gcerr.ErrBufferAlloc); the record being emitted
// is not written in that case, same as any other resource exhaustion at
// this layer (spec.md §7).
func (j *Journal) Emit(tag Tag, addr uintptr, vt trace.VTable) error {
	return j.EmitRecord(NewRecord(tag, addr, vt))
}

// EmitRecord is the producer entry point for a pre-built Record.
func (j *Journal) EmitRecord(r Record) error {
	if j.cur == nil {
		b, err := j.allocBuffer()
		if err != nil {
			return err
		}
		j.cur = b
	}
	j.cur.records[j.idx] = r
	j.idx++
	if j.idx == j.cur.capacity {
		j.rotate()
	}
	return nil
}

// rotate publishes the full current buffer, links it into the ready
// queue, and leaves the producer with no current buffer (the next Emit
// allocates one).
func (j *Journal) rotate() {
	b := j.cur
	b.publish(j.idx)
	if j.tail == nil {
		j.head.Store(b)
	} else {
		j.tail.queueNext.Store(b)
	}
	j.tail = b
	j.cur = nil
	j.idx = 0
}

// Close flushes any partially-filled current buffer and marks the journal
// closed: no more Emit calls are expected, and once Drain observes no
// more pending buffers, Drained() becomes true.
func (j *Journal) Close() {
	if j.cur != nil && j.idx > 0 {
		j.rotate()
	}
	j.closed.Store(true)
}

func (j *Journal) allocBuffer() (*Buffer, error) {
	if b := j.popFree(); b != nil {
		return b, nil
	}
	b, err := newBuffer(j.capacity)
	if err != nil {
		return nil, gcerr.ErrBufferAlloc
	}
	return b, nil
}

func (j *Journal) popFree() *Buffer {
	for {
		head := j.free.Load()
		if head == nil {
			return nil
		}
		next := head.freeNext.Load()
		if j.free.CompareAndSwap(head, next) {
			head.freeNext.Store(nil)
			head.reset()
			return head
		}
	}
}

func (j *Journal) pushFree(b *Buffer) {
	for {
		head := j.free.Load()
		b.freeNext.Store(head)
		if j.free.CompareAndSwap(head, b) {
			return
		}
	}
}

// Drain reads up to maxBuffers ready buffers (a BUFFER_RUN-style cap),
// calling fn for every record in program order, and returns how many
// buffers and records were processed. Buffers are retired to the free
// list as soon as they are fully read.
func (j *Journal) Drain(maxBuffers int, fn func(Record)) (buffers, records int) {
	for buffers < maxBuffers {
		var b *Buffer
		if !j.consumerStarted {
			b = j.head.Load()
		} else {
			b = j.consumerNext
		}
		if b == nil {
			break
		}
		j.consumerStarted = true
		n := b.Len()
		for i := uint32(0); i < n; i++ {
			fn(b.At(i))
		}
		records += int(n)
		next := b.queueNext.Load()
		j.pushFree(b)
		j.consumerNext = next
		buffers++
	}
	return
}

// HasPending reports whether a ready buffer is waiting to be drained,
// without consuming anything.
func (j *Journal) HasPending() bool {
	if !j.consumerStarted {
		return j.head.Load() != nil
	}
	return j.consumerNext != nil
}

// Closed reports whether Close has been called.
func (j *Journal) Closed() bool { return j.closed.Load() }

// Drained reports whether this journal is closed and every record it will
// ever produce has already been read.
func (j *Journal) Drained() bool { return j.Closed() && !j.HasPending() }
