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

// Package stats tracks the collector's per-cycle throughput signal, the
// input to the driver's adaptive sleep (spec.md §4.7 step 5).
package stats

import (
	"fmt"
	"sync"
	"time"
)

// Cycle summarizes one drain+mark+sweep pass.
type Cycle struct {
	Full           bool
	RecordsDrained int
	Marked         int
	Swept          int
	Promoted       int
	DeferExceeded  int
	MarkDuration   time.Duration
	SweepDuration  time.Duration
}

// Logger accumulates cycle history and exposes the signal the driver uses
// to decide whether to sleep longer or shorter before the next cycle.
// Logf, if set, is called once per cycle with a human-readable summary;
// it follows the teacher's printf-callback convention rather than pulling
// in a logging package.
type Logger struct {
	Logf func(format string, args ...any)

	mu      sync.Mutex
	last    Cycle
	cycles  int
	empties int // consecutive cycles that drained nothing
}

func (l *Logger) logf(format string, args ...any) {
	// let `go vet` know this is printf-like
	if false {
		_ = fmt.Sprintf(format, args...)
	}
	if l.Logf != nil {
		l.Logf(format, args...)
	}
}

// Record stores c as the most recent cycle and emits it through Logf.
func (l *Logger) Record(c Cycle) {
	l.mu.Lock()
	l.last = c
	l.cycles++
	if c.RecordsDrained == 0 {
		l.empties++
	} else {
		l.empties = 0
	}
	l.mu.Unlock()

	kind := "young"
	if c.Full {
		kind = "full"
	}
	l.logf("gc: %s cycle drained=%d marked=%d swept=%d promoted=%d mark=%s sweep=%s",
		kind, c.RecordsDrained, c.Marked, c.Swept, c.Promoted, c.MarkDuration, c.SweepDuration)
}

// Last returns the most recently recorded cycle.
func (l *Logger) Last() Cycle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// ConsecutiveEmpties returns how many drain passes in a row found nothing
// to read across every journal, the "back off" signal for adaptive sleep.
func (l *Logger) ConsecutiveEmpties() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.empties
}

// NextSleep computes the adaptive sleep duration bounded by [min, max]:
// empty drains back off geometrically towards max, any non-empty drain
// resets to min so the driver becomes responsive again as soon as there
// is work.
func (l *Logger) NextSleep(min, max time.Duration) time.Duration {
	empties := l.ConsecutiveEmpties()
	if empties == 0 {
		return min
	}
	d := min
	for i := 0; i < empties && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}
