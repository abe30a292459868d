// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package txbuilder

import (
	"time"
)

// SlotConfig maps between wall-clock time and slot numbers for a network.
// ZeroTime and ZeroSlot anchor the start of the Shelley era
type SlotConfig struct {
	ZeroTime   time.Time
	ZeroSlot   uint64
	SlotLength time.Duration
}

var (
	SlotConfigMainnet = SlotConfig{
		ZeroTime:   time.Unix(1596059091, 0),
		ZeroSlot:   4492800,
		SlotLength: time.Second,
	}
	SlotConfigPreprod = SlotConfig{
		ZeroTime:   time.Unix(1655769600, 0),
		ZeroSlot:   86400,
		SlotLength: time.Second,
	}
	SlotConfigPreview = SlotConfig{
		ZeroTime:   time.Unix(1666656000, 0),
		ZeroSlot:   0,
		SlotLength: time.Second,
	}
)

// SlotFromTime returns the slot containing the given time. Times before
// ZeroTime map to ZeroSlot
func (s SlotConfig) SlotFromTime(t time.Time) uint64 {
	if s.SlotLength <= 0 || !t.After(s.ZeroTime) {
		return s.ZeroSlot
	}
	elapsed := t.Sub(s.ZeroTime)
	return s.ZeroSlot + uint64(elapsed/s.SlotLength)
}

// TimeFromSlot returns the start time of the given slot. Slots before
// ZeroSlot map to ZeroTime
func (s SlotConfig) TimeFromSlot(slot uint64) time.Time {
	if slot <= s.ZeroSlot {
		return s.ZeroTime
	}
	// #nosec G115
	return s.ZeroTime.Add(time.Duration(slot-s.ZeroSlot) * s.SlotLength)
}

// IsZero reports whether the slot config is unset
func (s SlotConfig) IsZero() bool {
	return s.ZeroTime.IsZero() && s.ZeroSlot == 0 && s.SlotLength == 0
}
