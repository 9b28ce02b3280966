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

// Package gcconfig holds the tuning constants listed in spec.md §6, as a
// plain struct with sane defaults and an optional YAML loader, the same
// shape the teacher uses for its own GCConfig.
package gcconfig

import (
	"os"
	"time"

	"sigs.k8s.io/yaml"
)

// CacheLine is the journal header's padding/alignment unit (spec.md §6
// "CACHE_LINE"): journal.Buffer uses it to keep the ready-queue handoff
// fields a producer and consumer both touch off the same cache line as
// the Treiber free-list link, which a completely independent pair of
// CAS loops pushes and pops. Unlike the other tuning constants below,
// this one cannot live on Config: Go struct layout is fixed at compile
// time, so a runtime value would have nothing to resize.
const CacheLine = 64

// Config collects every tunable the collector reads. Normalize and
// LoadYAML fill zero-value fields with Defaults()'s values.
type Config struct {
	// JournalBufferSize is the minimum per-buffer record capacity;
	// journal.New rounds it up to a power of two and to a full page.
	JournalBufferSize uint32 `json:"journalBufferSize,omitempty"`

	// MajorCollectThreshold is the NEW-count that triggers a full cycle
	// instead of a young cycle.
	MajorCollectThreshold int `json:"majorCollectThreshold,omitempty"`

	// MinSleepDur and MaxSleepDur bound the driver's adaptive sleep
	// between cycles.
	MinSleepDur time.Duration `json:"minSleepDur,omitempty"`
	MaxSleepDur time.Duration `json:"maxSleepDur,omitempty"`

	// BufferRun and JournalRun cap, respectively, how many buffers per
	// journal and how many total records the driver processes in one
	// drain pass before yielding to mark/sweep.
	BufferRun  int `json:"bufferRun,omitempty"`
	JournalRun int `json:"journalRun,omitempty"`

	// Workers is the number of parallel mark/sweep worker goroutines
	// (K in spec.md §4.6). Zero means GOMAXPROCS.
	Workers int `json:"workers,omitempty"`

	// MaxDeferRetries bounds how many times a single Trace call is
	// retried within one mark phase after returning Defer (spec.md §9
	// open question, resolved in SPEC_FULL.md §6: treated as traced
	// once exceeded).
	MaxDeferRetries int `json:"maxDeferRetries,omitempty"`

	// ForcePromote, when set, makes every cycle the driver's main loop
	// runs a full cycle (and every full cycle promotes survivors),
	// regardless of MajorCollectThreshold. Driver.CollectNow does not
	// read it: its own argument selects full or young.
	ForcePromote bool `json:"forcePromote,omitempty"`
}

// Defaults returns the collector's out-of-the-box tuning.
func Defaults() Config {
	return Config{
		JournalBufferSize:     4096,
		MajorCollectThreshold: 1 << 16,
		MinSleepDur:           time.Millisecond,
		MaxSleepDur:           250 * time.Millisecond,
		BufferRun:             64,
		JournalRun:            1 << 20,
		Workers:               0,
		MaxDeferRetries:       3,
	}
}

// fillZero replaces any zero-valued tunable in c with Defaults()'s value,
// so a caller can specify only the fields they care about.
func (c Config) fillZero() Config {
	d := Defaults()
	if c.JournalBufferSize == 0 {
		c.JournalBufferSize = d.JournalBufferSize
	}
	if c.MajorCollectThreshold == 0 {
		c.MajorCollectThreshold = d.MajorCollectThreshold
	}
	if c.MinSleepDur == 0 {
		c.MinSleepDur = d.MinSleepDur
	}
	if c.MaxSleepDur == 0 {
		c.MaxSleepDur = d.MaxSleepDur
	}
	if c.BufferRun == 0 {
		c.BufferRun = d.BufferRun
	}
	if c.JournalRun == 0 {
		c.JournalRun = d.JournalRun
	}
	if c.MaxDeferRetries == 0 {
		c.MaxDeferRetries = d.MaxDeferRetries
	}
	return c
}

// Normalize fills in zero fields with defaults and returns the result; it
// never mutates c.
func (c Config) Normalize() Config {
	return c.fillZero()
}

// LoadYAML reads a Config from a YAML file, filling any field the file
// omits with Defaults()'s value.
func LoadYAML(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c.fillZero(), nil
}
