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

// Package blockstore provides an in-memory block store
package blockstore

import (
	"errors"
	"sync"

	"github.com/blinklabs-io/goblockswap/block"
)

var ErrUndefinedId = errors.New("cannot store block with undefined identifier")

// MemoryStore holds block payloads in memory, keyed by identifier
type MemoryStore struct {
	sync.RWMutex
	blocks map[block.Id][]byte
	size   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks: make(map[block.Id][]byte),
	}
}

// Get returns the payload for id. The returned slice must not be modified
func (s *MemoryStore) Get(id block.Id) ([]byte, bool) {
	s.RLock()
	defer s.RUnlock()
	data, ok := s.blocks[id]
	return data, ok
}

// Put stores data under id. Storing an identifier that is already present is a no-op
func (s *MemoryStore) Put(id block.Id, data []byte) error {
	if !id.Defined() {
		return ErrUndefinedId
	}
	s.Lock()
	defer s.Unlock()
	if _, ok := s.blocks[id]; ok {
		return nil
	}
	s.blocks[id] = data
	s.size += len(data)
	return nil
}

// PutBlock stores blk
func (s *MemoryStore) PutBlock(blk *block.Block) error {
	return s.Put(blk.Id(), blk.Data())
}

func (s *MemoryStore) Has(id block.Id) bool {
	s.RLock()
	defer s.RUnlock()
	_, ok := s.blocks[id]
	return ok
}

func (s *MemoryStore) Delete(id block.Id) bool {
	s.Lock()
	defer s.Unlock()
	data, ok := s.blocks[id]
	if !ok {
		return false
	}
	delete(s.blocks, id)
	s.size -= len(data)
	return true
}

// Len returns the number of stored blocks
func (s *MemoryStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.blocks)
}

// Size returns the total payload bytes stored
func (s *MemoryStore) Size() int {
	s.RLock()
	defer s.RUnlock()
	return s.size
}

// Ids returns the stored identifiers in no particular order
func (s *MemoryStore) Ids() []block.Id {
	s.RLock()
	defer s.RUnlock()
	ret := make([]block.Id, 0, len(s.blocks))
	for id := range s.blocks {
		ret = append(ret, id)
	}
	return ret
}
