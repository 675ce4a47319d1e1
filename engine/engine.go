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

// Package engine implements the block exchange state machine. A single
// goroutine drains a FIFO queue of protocol events and application commands,
// so the WantList and PeerLedger are only ever touched from that goroutine.
// The state of each (peer, identifier) pair is the presence or absence of
// ledger records
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/blinklabs-io/goblockswap/protocol"
	"github.com/blinklabs-io/goblockswap/protocol/bitswap"
)

type WantType = bitswap.WantType

const (
	WantTypeBlock = bitswap.WantTypeBlock
	WantTypeHave  = bitswap.WantTypeHave
)

// BlockStore provides the blocks the engine serves and persists the blocks it receives
type BlockStore interface {
	Get(block.Id) ([]byte, bool)
	Put(block.Id, []byte) error
}

// Transport delivers messages to connected peers. SendMessage must not block;
// failures after it returns are reported back with Engine.SendFailed
type Transport interface {
	SendMessage(peer.Id, protocol.Message) error
}

// Engine is the block exchange protocol state machine
type Engine struct {
	config    Config
	logger    *slog.Logger
	metrics   *Metrics
	eventChan chan any
	doneChan  chan struct{}
	running   atomic.Bool
	onceStop  sync.Once
	wantList  *WantList
	ledger    *PeerLedger
	connected map[peer.Id]struct{}
}

type wantEvent struct {
	id       block.Id
	priority int32
	wantType WantType
}

type cancelEvent struct {
	id block.Id
}

type haveBlockEvent struct {
	block *block.Block
}

type peerConnectedEvent struct {
	peer peer.Id
}

type peerDisconnectedEvent struct {
	peer peer.Id
}

type messageEvent struct {
	peer peer.Id
	msg  protocol.Message
}

type decodeErrorEvent struct {
	peer peer.Id
	err  error
}

type sendFailedEvent struct {
	peer peer.Id
	msg  protocol.Message
	err  error
}

type queryEvent struct {
	fn func()
}

// New returns a new Engine. Run must be called to start processing
func New(cfg Config) (*Engine, error) {
	if cfg.BlockStore == nil {
		return nil, errors.New("engine: no block store configured")
	}
	if cfg.Transport == nil {
		return nil, errors.New("engine: no transport configured")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		config:    cfg,
		logger:    logger.With("component", "engine"),
		metrics:   NewMetrics(cfg.PrometheusRegistry),
		eventChan: make(chan any, cfg.QueueSize),
		doneChan:  make(chan struct{}),
		wantList:  NewWantList(),
		ledger:    NewPeerLedger(),
		connected: make(map[peer.Id]struct{}),
	}
	return e, nil
}

// Run processes queued events until ctx is cancelled. It returns nil on
// cancellation, after which every input returns ErrEngineStopped
func (e *Engine) Run(ctx context.Context) error {
	select {
	case <-e.doneChan:
		return ErrEngineStopped
	default:
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrEngineRunning
	}
	defer e.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-e.eventChan:
			e.handleEvent(evt)
		}
	}
}

func (e *Engine) stop() {
	e.onceStop.Do(func() {
		close(e.doneChan)
	})
}

// DoneChan returns a channel that is closed when the engine stops
func (e *Engine) DoneChan() <-chan struct{} {
	return e.doneChan
}

// Metrics returns the engine metrics
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

func (e *Engine) enqueue(evt any) error {
	select {
	case <-e.doneChan:
		return ErrEngineStopped
	default:
	}
	select {
	case e.eventChan <- evt:
		return nil
	case <-e.doneChan:
		return ErrEngineStopped
	}
}

// Want adds a block to the WantList and asks connected peers for it
func (e *Engine) Want(id block.Id, priority int32) error {
	if !id.Defined() {
		return ErrUndefinedId
	}
	return e.enqueue(wantEvent{id: id, priority: priority, wantType: WantTypeBlock})
}

// WantPresence adds a presence-only want: peers answer with Have instead of the block
func (e *Engine) WantPresence(id block.Id, priority int32) error {
	if !id.Defined() {
		return ErrUndefinedId
	}
	return e.enqueue(wantEvent{id: id, priority: priority, wantType: WantTypeHave})
}

// Cancel removes a block from the WantList and withdraws the Wants sent for it
func (e *Engine) Cancel(id block.Id) error {
	if !id.Defined() {
		return ErrUndefinedId
	}
	return e.enqueue(cancelEvent{id: id})
}

// HaveBlock announces a block that became available locally. The block is
// trusted and is not verified
func (e *Engine) HaveBlock(blk *block.Block) error {
	if blk == nil {
		return ErrNilBlock
	}
	return e.enqueue(haveBlockEvent{block: blk})
}

func (e *Engine) PeerConnected(p peer.Id) error {
	return e.enqueue(peerConnectedEvent{peer: p})
}

func (e *Engine) PeerDisconnected(p peer.Id) error {
	return e.enqueue(peerDisconnectedEvent{peer: p})
}

// HandleMessage queues an inbound bitswap message from a peer
func (e *Engine) HandleMessage(p peer.Id, msg protocol.Message) error {
	return e.enqueue(messageEvent{peer: p, msg: msg})
}

// HandleDecodeError reports an inbound message from a peer that could not be decoded
func (e *Engine) HandleDecodeError(p peer.Id, err error) error {
	return e.enqueue(decodeErrorEvent{peer: p, err: err})
}

// SendFailed reports an outbound message the transport could not deliver
func (e *Engine) SendFailed(p peer.Id, msg protocol.Message, err error) error {
	return e.enqueue(sendFailedEvent{peer: p, msg: msg, err: err})
}

// query runs fn on the engine goroutine and waits for it to finish
func (e *Engine) query(ctx context.Context, fn func()) error {
	doneChan := make(chan struct{})
	err := e.enqueue(queryEvent{fn: func() {
		fn()
		close(doneChan)
	}})
	if err != nil {
		return err
	}
	select {
	case <-doneChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.doneChan:
		return ErrEngineStopped
	}
}

// WantList returns a copy of the WantList, highest priority first
func (e *Engine) WantList(ctx context.Context) ([]WantRecord, error) {
	var ret []WantRecord
	err := e.query(ctx, func() {
		ret = e.wantList.Snapshot()
	})
	return ret, err
}

// Ledger returns a copy of the ledger entry for a connected peer
func (e *Engine) Ledger(ctx context.Context, p peer.Id) (LedgerSnapshot, error) {
	var ret LedgerSnapshot
	var snapErr error
	err := e.query(ctx, func() {
		ret, snapErr = e.ledger.Snapshot(p)
	})
	if err != nil {
		return LedgerSnapshot{}, err
	}
	if snapErr != nil {
		return LedgerSnapshot{}, snapErr
	}
	return ret, nil
}

// ConnectedPeers returns the connected peers, in order
func (e *Engine) ConnectedPeers(ctx context.Context) ([]peer.Id, error) {
	var ret []peer.Id
	err := e.query(ctx, func() {
		ret = e.connectedPeers()
	})
	return ret, err
}

func (e *Engine) connectedPeers() []peer.Id {
	ret := make([]peer.Id, 0, len(e.connected))
	for p := range e.connected {
		ret = append(ret, p)
	}
	sortPeers(ret)
	return ret
}

func (e *Engine) isConnected(p peer.Id) bool {
	_, ok := e.connected[p]
	return ok
}

func (e *Engine) handleEvent(evt any) {
	switch evt := evt.(type) {
	case wantEvent:
		e.handleWant(evt.id, evt.priority, evt.wantType)
	case cancelEvent:
		e.handleCancel(evt.id)
	case haveBlockEvent:
		e.handleHaveBlock(evt.block)
	case peerConnectedEvent:
		e.handlePeerConnected(evt.peer)
	case peerDisconnectedEvent:
		e.handlePeerDisconnected(evt.peer)
	case messageEvent:
		e.handleMessage(evt.peer, evt.msg)
	case decodeErrorEvent:
		e.handleDecodeError(evt.peer, evt.err)
	case sendFailedEvent:
		e.handleSendFailed(evt.peer, evt.msg, evt.err)
	case queryEvent:
		evt.fn()
	default:
		e.logger.Error(fmt.Sprintf("unknown event type %T", evt))
	}
}

func (e *Engine) handleWant(id block.Id, priority int32, wantType WantType) {
	existing, exists := e.wantList.Get(id)
	e.wantList.Insert(id, priority, wantType)
	e.metrics.WantListSize.Set(float64(e.wantList.Len()))
	changed := !exists || existing.Priority != priority || existing.WantType != wantType
	e.logger.Debug("want",
		"cid", id.String(),
		"priority", priority,
		"want_type", wantType.String(),
		"changed", changed,
	)
	for _, p := range e.connectedPeers() {
		// Peers holding an unchanged outstanding want are not asked again
		if !changed && e.ledger.HasLocalWant(p, id) {
			continue
		}
		e.sendWant(p, id, priority, wantType)
	}
}

func (e *Engine) handleCancel(id block.Id) {
	if !e.wantList.Remove(id) {
		return
	}
	e.metrics.WantListSize.Set(float64(e.wantList.Len()))
	e.logger.Debug("cancel", "cid", id.String())
	e.cancelLocalWants(id, peer.Id{})
}

func (e *Engine) handleHaveBlock(blk *block.Block) {
	id := blk.Id()
	if err := e.config.BlockStore.Put(id, blk.Data()); err != nil {
		e.logger.Error("failed to store block",
			"cid", id.String(),
			"error", err,
		)
		e.emitError(peer.Id{}, fmt.Errorf("store block %s: %w", id.String(), err))
		return
	}
	e.logger.Debug("have block", "cid", id.String(), "size", blk.Size())
	e.serveWaitingPeers(blk)
	if e.wantList.Remove(id) {
		e.metrics.WantListSize.Set(float64(e.wantList.Len()))
		e.cancelLocalWants(id, peer.Id{})
	}
}

func (e *Engine) handlePeerConnected(p peer.Id) {
	if e.isConnected(p) {
		return
	}
	e.connected[p] = struct{}{}
	e.ledger.AddPeer(p)
	e.metrics.ConnectedPeers.Set(float64(len(e.connected)))
	e.logger.Debug("peer connected", "peer", p.String())
	for _, rec := range e.wantList.Snapshot() {
		e.sendWant(p, rec.Id, rec.Priority, rec.WantType)
	}
}

func (e *Engine) handlePeerDisconnected(p peer.Id) {
	if !e.isConnected(p) {
		return
	}
	delete(e.connected, p)
	e.ledger.RemovePeer(p)
	e.metrics.ConnectedPeers.Set(float64(len(e.connected)))
	e.logger.Debug("peer disconnected", "peer", p.String())
}

func (e *Engine) handleMessage(p peer.Id, msg protocol.Message) {
	if !e.isConnected(p) {
		e.logger.Debug("dropping message from unknown peer",
			"peer", p.String(),
			"message_type", msg.Type(),
		)
		return
	}
	switch msg := msg.(type) {
	case *bitswap.MsgWant:
		e.handlePeerWant(p, msg.Cid, msg.Priority, msg.WantType)
	case *bitswap.MsgBlock:
		e.handleBlock(p, msg.Cid, msg.Data)
	case *bitswap.MsgCancel:
		e.handlePeerCancel(p, msg.Cid)
	case *bitswap.MsgHave:
		e.handleHave(p, msg.Cid)
	default:
		e.logger.Warn(fmt.Sprintf("unexpected message type %T", msg),
			"peer", p.String(),
		)
	}
}

func (e *Engine) handlePeerWant(p peer.Id, id block.Id, priority int32, wantType WantType) {
	e.ledger.RecordPeerWant(p, id, priority, wantType)
	e.logger.Debug("received want",
		"peer", p.String(),
		"cid", id.String(),
		"priority", priority,
		"want_type", wantType.String(),
	)
	if e.config.WantReceivedFunc != nil {
		e.config.WantReceivedFunc(p, id, priority, wantType)
	}
	data, ok := e.config.BlockStore.Get(id)
	if !ok {
		return
	}
	e.serve(p, block.NewBlock(id, data), wantType)
}

func (e *Engine) handleBlock(p peer.Id, id block.Id, data []byte) {
	// Verification always comes first so integrity failures are observable
	// even for blocks that are no longer wanted
	blk, err := block.VerifyBlock(id, data)
	if err != nil {
		e.metrics.IntegrityFailures.Inc()
		e.logger.Warn("discarding block that failed verification",
			"peer", p.String(),
			"cid", id.String(),
			"error", err,
		)
		e.emitError(p, err)
		return
	}
	e.ledger.RecordReceived(p, blk.Size())
	// The sender evidently holds the block
	e.ledger.ClearPeerWant(p, id)
	if !e.wantList.Remove(id) {
		e.metrics.DuplicateBlocks.Inc()
		e.logger.Debug("dropping unwanted block",
			"peer", p.String(),
			"cid", id.String(),
		)
		return
	}
	e.metrics.WantListSize.Set(float64(e.wantList.Len()))
	e.metrics.BlocksReceived.Inc()
	e.logger.Debug("received block",
		"peer", p.String(),
		"cid", id.String(),
		"size", blk.Size(),
	)
	e.ledger.ClearLocalWant(p, id)
	e.cancelLocalWants(id, p)
	if err := e.config.BlockStore.Put(id, blk.Data()); err != nil {
		e.logger.Error("failed to store block",
			"cid", id.String(),
			"error", err,
		)
		e.emitError(p, fmt.Errorf("store block %s: %w", id.String(), err))
	} else {
		e.serveWaitingPeers(blk)
	}
	if e.config.BlockReceivedFunc != nil {
		e.config.BlockReceivedFunc(p, blk)
	}
}

func (e *Engine) handlePeerCancel(p peer.Id, id block.Id) {
	e.ledger.ClearPeerWant(p, id)
	e.logger.Debug("received cancel", "peer", p.String(), "cid", id.String())
	if e.config.CancelReceivedFunc != nil {
		e.config.CancelReceivedFunc(p, id)
	}
}

func (e *Engine) handleHave(p peer.Id, id block.Id) {
	e.logger.Debug("received have", "peer", p.String(), "cid", id.String())
	if e.config.HaveReceivedFunc != nil {
		e.config.HaveReceivedFunc(p, id)
	}
	rec, ok := e.wantList.Get(id)
	if !ok || rec.WantType != WantTypeHave {
		return
	}
	// A presence-only want is satisfied by the first Have
	e.wantList.Remove(id)
	e.metrics.WantListSize.Set(float64(e.wantList.Len()))
	e.ledger.ClearLocalWant(p, id)
	e.cancelLocalWants(id, p)
}

func (e *Engine) handleDecodeError(p peer.Id, err error) {
	e.metrics.DecodeErrors.Inc()
	e.logger.Debug("dropped undecodable message",
		"peer", p.String(),
		"error", err,
	)
	e.emitError(p, err)
}

func (e *Engine) handleSendFailed(p peer.Id, msg protocol.Message, err error) {
	e.metrics.SendFailures.Inc()
	sendErr := &SendError{
		Peer:        p,
		MessageType: msg.Type(),
		Err:         err,
	}
	switch msg := msg.(type) {
	case *bitswap.MsgWant:
		sendErr.Id = msg.Cid
		// Allow the want to be sent to this peer again
		if e.isConnected(p) {
			e.ledger.ClearLocalWant(p, msg.Cid)
		}
	case *bitswap.MsgBlock:
		sendErr.Id = msg.Cid
	case *bitswap.MsgCancel:
		sendErr.Id = msg.Cid
	case *bitswap.MsgHave:
		sendErr.Id = msg.Cid
	}
	e.logger.Warn("failed to send message",
		"peer", p.String(),
		"cid", sendErr.Id.String(),
		"message_type", msg.Type(),
		"error", err,
	)
	e.emitError(p, sendErr)
}

// serveWaitingPeers answers every peer with an outstanding want for the block
func (e *Engine) serveWaitingPeers(blk *block.Block) {
	for _, p := range e.ledger.PeersWanting(blk.Id()) {
		want, _ := e.ledger.PeerWant(p, blk.Id())
		e.serve(p, blk, want.WantType)
	}
}

// serve answers a peer want with the block or a Have, and clears the want once sent
func (e *Engine) serve(p peer.Id, blk *block.Block, wantType WantType) {
	if wantType == WantTypeHave {
		if !e.send(p, bitswap.NewMsgHave(blk.Id())) {
			return
		}
		e.metrics.HavesSent.Inc()
	} else {
		if !e.send(p, bitswap.NewMsgBlock(blk.Id(), blk.Data())) {
			return
		}
		e.metrics.BlocksSent.Inc()
		e.ledger.RecordSent(p, blk.Size())
	}
	e.ledger.ClearPeerWant(p, blk.Id())
	e.logger.Debug("served want",
		"peer", p.String(),
		"cid", blk.Id().String(),
		"want_type", wantType.String(),
	)
}

func (e *Engine) sendWant(p peer.Id, id block.Id, priority int32, wantType WantType) {
	e.ledger.RecordLocalWant(p, id)
	if e.send(p, bitswap.NewMsgWant(id, priority, wantType)) {
		e.metrics.WantsSent.Inc()
	}
}

// cancelLocalWants sends Cancel to every peer holding a local want for the
// block, except the given peer
func (e *Engine) cancelLocalWants(id block.Id, except peer.Id) {
	for _, p := range e.ledger.PeersWithLocalWant(id) {
		e.ledger.ClearLocalWant(p, id)
		if p == except {
			continue
		}
		if e.send(p, bitswap.NewMsgCancel(id)) {
			e.metrics.CancelsSent.Inc()
		}
	}
}

// send hands a message to the transport. A synchronous failure is handled
// the same as one reported later through SendFailed
func (e *Engine) send(p peer.Id, msg protocol.Message) bool {
	if err := e.config.Transport.SendMessage(p, msg); err != nil {
		e.handleSendFailed(p, msg, err)
		return false
	}
	return true
}

func (e *Engine) emitError(p peer.Id, err error) {
	if e.config.ErrorFunc != nil {
		e.config.ErrorFunc(p, err)
	}
}
