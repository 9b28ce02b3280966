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

package stats

import (
	"testing"
	"time"
)

func TestRecordAndLast(t *testing.T) {
	var l Logger
	l.Record(Cycle{RecordsDrained: 5, Marked: 3})
	got := l.Last()
	if got.RecordsDrained != 5 || got.Marked != 3 {
		t.Fatalf("Last() = %+v", got)
	}
}

func TestConsecutiveEmptiesResetsOnNonEmptyDrain(t *testing.T) {
	var l Logger
	l.Record(Cycle{RecordsDrained: 0})
	l.Record(Cycle{RecordsDrained: 0})
	if l.ConsecutiveEmpties() != 2 {
		t.Fatalf("ConsecutiveEmpties() = %d, want 2", l.ConsecutiveEmpties())
	}
	l.Record(Cycle{RecordsDrained: 1})
	if l.ConsecutiveEmpties() != 0 {
		t.Fatalf("ConsecutiveEmpties() = %d, want 0 after a non-empty drain", l.ConsecutiveEmpties())
	}
}

func TestNextSleepBacksOffThenResets(t *testing.T) {
	var l Logger
	min, max := time.Millisecond, 100*time.Millisecond

	if got := l.NextSleep(min, max); got != min {
		t.Fatalf("with no history, NextSleep = %v, want min %v", got, min)
	}

	l.Record(Cycle{RecordsDrained: 0})
	l.Record(Cycle{RecordsDrained: 0})
	l.Record(Cycle{RecordsDrained: 0})
	backed := l.NextSleep(min, max)
	if backed <= min {
		t.Fatalf("expected backoff above min after empty drains, got %v", backed)
	}
	if backed > max {
		t.Fatalf("NextSleep exceeded max: got %v, want <= %v", backed, max)
	}

	l.Record(Cycle{RecordsDrained: 42})
	if got := l.NextSleep(min, max); got != min {
		t.Fatalf("NextSleep after a non-empty drain = %v, want min %v", got, min)
	}
}

func TestLogfCallback(t *testing.T) {
	var calls int
	l := Logger{Logf: func(string, ...any) { calls++ }}
	l.Record(Cycle{})
	if calls != 1 {
		t.Fatalf("Logf called %d times, want 1", calls)
	}
}
