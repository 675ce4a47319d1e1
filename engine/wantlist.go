// Copyright 2026 Blink Labs Software
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

package engine

import (
	"slices"

	"github.com/blinklabs-io/goblockswap/block"
)

// WantRecord is a single entry in the local WantList
type WantRecord struct {
	Id       block.Id
	Priority int32
	WantType WantType
}

// WantList holds the identifiers the local node is trying to obtain. It is
// owned by the engine goroutine and is not safe for concurrent use
type WantList struct {
	wants map[block.Id]WantRecord
}

func NewWantList() *WantList {
	return &WantList{
		wants: make(map[block.Id]WantRecord),
	}
}

// Insert adds a want or replaces the priority and type of an existing one. It
// returns true if the identifier was not already wanted
func (w *WantList) Insert(id block.Id, priority int32, wantType WantType) bool {
	_, exists := w.wants[id]
	w.wants[id] = WantRecord{
		Id:       id,
		Priority: priority,
		WantType: wantType,
	}
	return !exists
}

// Remove deletes a want and returns whether it existed
func (w *WantList) Remove(id block.Id) bool {
	if _, ok := w.wants[id]; !ok {
		return false
	}
	delete(w.wants, id)
	return true
}

func (w *WantList) Contains(id block.Id) bool {
	_, ok := w.wants[id]
	return ok
}

func (w *WantList) Get(id block.Id) (WantRecord, bool) {
	rec, ok := w.wants[id]
	return rec, ok
}

func (w *WantList) Len() int {
	return len(w.wants)
}

// Snapshot returns a copy of the WantList ordered by priority, highest first.
// Equal priorities are ordered by identifier
func (w *WantList) Snapshot() []WantRecord {
	ret := make([]WantRecord, 0, len(w.wants))
	for _, rec := range w.wants {
		ret = append(ret, rec)
	}
	slices.SortFunc(ret, func(a, b WantRecord) int {
		if a.Priority != b.Priority {
			if a.Priority > b.Priority {
				return -1
			}
			return 1
		}
		return compareIds(a.Id, b.Id)
	})
	return ret
}
