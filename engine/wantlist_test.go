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
	"bytes"
	"testing"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testId(t *testing.T, payload string) block.Id {
	t.Helper()
	id, err := block.Compute([]byte(payload), block.HashSha2_256, block.CodecRaw)
	require.NoError(t, err)
	return id
}

func testPeer(t *testing.T, seed byte) peer.Id {
	t.Helper()
	kp, err := peer.KeyPairFromSeed(bytes.Repeat([]byte{seed}, 32))
	require.NoError(t, err)
	return kp.Id()
}

func TestWantListInsert(t *testing.T) {
	wl := NewWantList()
	id := testId(t, "a")
	assert.True(t, wl.Insert(id, 1, WantTypeBlock))
	assert.False(t, wl.Insert(id, 5, WantTypeHave))
	assert.Equal(t, 1, wl.Len())
	rec, ok := wl.Get(id)
	require.True(t, ok)
	assert.Equal(t, int32(5), rec.Priority)
	assert.Equal(t, WantTypeHave, rec.WantType)
}

func TestWantListRemove(t *testing.T) {
	wl := NewWantList()
	id := testId(t, "a")
	assert.False(t, wl.Remove(id))
	wl.Insert(id, 1, WantTypeBlock)
	assert.True(t, wl.Contains(id))
	assert.True(t, wl.Remove(id))
	assert.False(t, wl.Remove(id))
	assert.False(t, wl.Contains(id))
	assert.Equal(t, 0, wl.Len())
}

func TestWantListSnapshotOrder(t *testing.T) {
	wl := NewWantList()
	low := testId(t, "low")
	high := testId(t, "high")
	tieA := testId(t, "tie-a")
	tieB := testId(t, "tie-b")
	wl.Insert(low, 1, WantTypeBlock)
	wl.Insert(high, 100, WantTypeBlock)
	wl.Insert(tieA, 50, WantTypeBlock)
	wl.Insert(tieB, 50, WantTypeHave)
	snap := wl.Snapshot()
	require.Len(t, snap, 4)
	assert.Equal(t, high, snap[0].Id)
	assert.True(t, snap[1].Id.Less(snap[2].Id))
	assert.Equal(t, int32(50), snap[1].Priority)
	assert.Equal(t, int32(50), snap[2].Priority)
	assert.Equal(t, low, snap[3].Id)
	// The snapshot is a copy
	snap[0].Priority = -1
	rec, _ := wl.Get(high)
	assert.Equal(t, int32(100), rec.Priority)
}
