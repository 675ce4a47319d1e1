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
	"fmt"
	"slices"
	"time"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/jinzhu/copier"
)

// PeerWant is a want received from a peer
type PeerWant struct {
	Priority int32
	WantType WantType
}

// Accounting tracks the data exchanged with a peer
type Accounting struct {
	BytesSent      uint64
	BytesReceived  uint64
	BlocksSent     uint64
	BlocksReceived uint64
	LastExchange   time.Time
}

// LedgerSnapshot is a point-in-time copy of the ledger entry for a peer
type LedgerSnapshot struct {
	Peer       peer.Id
	PeerWants  map[block.Id]PeerWant
	LocalWants []block.Id
	Accounting Accounting
}

type ledgerEntry struct {
	peerWants  map[block.Id]PeerWant
	localWants map[block.Id]struct{}
	accounting Accounting
}

// PeerLedger records the outstanding wants in both directions for each peer.
// Recording or clearing for an unknown peer creates an empty entry. It is
// owned by the engine goroutine and is not safe for concurrent use
type PeerLedger struct {
	entries map[peer.Id]*ledgerEntry
}

func NewPeerLedger() *PeerLedger {
	return &PeerLedger{
		entries: make(map[peer.Id]*ledgerEntry),
	}
}

func (l *PeerLedger) entry(p peer.Id) *ledgerEntry {
	e, ok := l.entries[p]
	if !ok {
		e = &ledgerEntry{
			peerWants:  make(map[block.Id]PeerWant),
			localWants: make(map[block.Id]struct{}),
		}
		l.entries[p] = e
	}
	return e
}

// AddPeer creates an empty entry for the peer if none exists
func (l *PeerLedger) AddPeer(p peer.Id) {
	l.entry(p)
}

// RemovePeer drops every record for the peer and returns whether it had an entry
func (l *PeerLedger) RemovePeer(p peer.Id) bool {
	if _, ok := l.entries[p]; !ok {
		return false
	}
	delete(l.entries, p)
	return true
}

func (l *PeerLedger) HasPeer(p peer.Id) bool {
	_, ok := l.entries[p]
	return ok
}

// Peers returns the peers with a ledger entry, in order
func (l *PeerLedger) Peers() []peer.Id {
	ret := make([]peer.Id, 0, len(l.entries))
	for p := range l.entries {
		ret = append(ret, p)
	}
	sortPeers(ret)
	return ret
}

// RecordPeerWant records that the peer wants the block from us
func (l *PeerLedger) RecordPeerWant(p peer.Id, id block.Id, priority int32, wantType WantType) {
	l.entry(p).peerWants[id] = PeerWant{
		Priority: priority,
		WantType: wantType,
	}
}

func (l *PeerLedger) ClearPeerWant(p peer.Id, id block.Id) {
	delete(l.entry(p).peerWants, id)
}

// PeerWants returns whether the peer has an outstanding want for the block
func (l *PeerLedger) PeerWants(p peer.Id, id block.Id) bool {
	_, ok := l.PeerWant(p, id)
	return ok
}

func (l *PeerLedger) PeerWant(p peer.Id, id block.Id) (PeerWant, bool) {
	e, ok := l.entries[p]
	if !ok {
		return PeerWant{}, false
	}
	want, ok := e.peerWants[id]
	return want, ok
}

// PeersWanting returns the peers with an outstanding want for the block, in order
func (l *PeerLedger) PeersWanting(id block.Id) []peer.Id {
	var ret []peer.Id
	for p, e := range l.entries {
		if _, ok := e.peerWants[id]; ok {
			ret = append(ret, p)
		}
	}
	sortPeers(ret)
	return ret
}

// RecordLocalWant records that we sent the peer a Want for the block
func (l *PeerLedger) RecordLocalWant(p peer.Id, id block.Id) {
	l.entry(p).localWants[id] = struct{}{}
}

func (l *PeerLedger) ClearLocalWant(p peer.Id, id block.Id) {
	delete(l.entry(p).localWants, id)
}

func (l *PeerLedger) HasLocalWant(p peer.Id, id block.Id) bool {
	e, ok := l.entries[p]
	if !ok {
		return false
	}
	_, ok = e.localWants[id]
	return ok
}

// PeersWithLocalWant returns the peers we sent a Want for the block, in order
func (l *PeerLedger) PeersWithLocalWant(id block.Id) []peer.Id {
	var ret []peer.Id
	for p, e := range l.entries {
		if _, ok := e.localWants[id]; ok {
			ret = append(ret, p)
		}
	}
	sortPeers(ret)
	return ret
}

// RecordSent adds a block sent to the peer to its accounting
func (l *PeerLedger) RecordSent(p peer.Id, size int) {
	e := l.entry(p)
	e.accounting.BlocksSent++
	// #nosec G115
	e.accounting.BytesSent += uint64(size)
	e.accounting.LastExchange = time.Now()
}

// RecordReceived adds a block received from the peer to its accounting
func (l *PeerLedger) RecordReceived(p peer.Id, size int) {
	e := l.entry(p)
	e.accounting.BlocksReceived++
	// #nosec G115
	e.accounting.BytesReceived += uint64(size)
	e.accounting.LastExchange = time.Now()
}

// snapshotCopyOption deep copies ledger maps. Ids and timestamps are immutable
// values with unexported fields, so they are passed through as-is
var snapshotCopyOption = copier.Option{
	DeepCopy: true,
	Converters: []copier.TypeConverter{
		{
			SrcType: block.Id{},
			DstType: block.Id{},
			Fn: func(src any) (any, error) {
				return src, nil
			},
		},
		{
			SrcType: time.Time{},
			DstType: time.Time{},
			Fn: func(src any) (any, error) {
				return src, nil
			},
		},
	},
}

// Snapshot returns a copy of the entry for the peer that shares no state with
// the ledger
func (l *PeerLedger) Snapshot(p peer.Id) (LedgerSnapshot, error) {
	e, ok := l.entries[p]
	if !ok {
		return LedgerSnapshot{}, fmt.Errorf("%w: %s", ErrUnknownPeer, p.String())
	}
	view := struct {
		PeerWants  map[block.Id]PeerWant
		Accounting Accounting
	}{
		PeerWants:  e.peerWants,
		Accounting: e.accounting,
	}
	ret := LedgerSnapshot{
		Peer:       p,
		LocalWants: make([]block.Id, 0, len(e.localWants)),
	}
	if err := copier.CopyWithOption(&ret, &view, snapshotCopyOption); err != nil {
		return LedgerSnapshot{}, fmt.Errorf("copy ledger entry: %w", err)
	}
	for id := range e.localWants {
		ret.LocalWants = append(ret.LocalWants, id)
	}
	slices.SortFunc(ret.LocalWants, compareIds)
	return ret, nil
}

func sortPeers(peers []peer.Id) {
	slices.SortFunc(peers, func(a, b peer.Id) int {
		if a.Less(b) {
			return -1
		}
		if b.Less(a) {
			return 1
		}
		return 0
	})
}

func compareIds(a, b block.Id) int {
	if a.Less(b) {
		return -1
	}
	if b.Less(a) {
		return 1
	}
	return 0
}
