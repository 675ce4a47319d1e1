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

// Package bitswap implements the block exchange mini-protocol. Both sides of a
// connection may send any message at any time
package bitswap

import (
	"fmt"
	"sync"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/connection"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/blinklabs-io/goblockswap/protocol"
)

// Protocol identifiers
const (
	ProtocolName        = "bitswap"
	ProtocolId   uint16 = 1
)

var stateExchange = protocol.NewState(1, "Exchange")

// StateMap is the bitswap protocol state machine for inbound messages
var StateMap = protocol.StateMap{
	stateExchange: protocol.StateMapEntry{
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeWant,
				NewState: stateExchange,
			},
			{
				MsgType:  MessageTypeBlock,
				NewState: stateExchange,
			},
			{
				MsgType:  MessageTypeCancel,
				NewState: stateExchange,
			},
			{
				MsgType:  MessageTypeHave,
				NewState: stateExchange,
			},
		},
	},
}

// Bitswap runs the block exchange mini-protocol on a single connection
type Bitswap struct {
	*protocol.Protocol
	config          *Config
	callbackContext CallbackContext
	onceStart       sync.Once
}

// Config is used to configure the Bitswap protocol instance
type Config struct {
	WantFunc        WantFunc
	BlockFunc       BlockFunc
	CancelFunc      CancelFunc
	HaveFunc        HaveFunc
	DecodeErrorFunc DecodeErrorFunc
	SendErrorFunc   SendErrorFunc
	SendQueueSize   int
}

// CallbackContext provides context to the callback functions
type CallbackContext struct {
	ConnectionId connection.ConnectionId
	Peer         peer.Id
	Bitswap      *Bitswap
}

// Callback function types
type (
	WantFunc        func(CallbackContext, *MsgWant) error
	BlockFunc       func(CallbackContext, *MsgBlock) error
	CancelFunc      func(CallbackContext, *MsgCancel) error
	HaveFunc        func(CallbackContext, *MsgHave) error
	DecodeErrorFunc func(CallbackContext, error)
	SendErrorFunc   func(CallbackContext, protocol.Message, error)
)

// New returns a new Bitswap object. It registers with the muxer immediately, but
// does not process messages until Start is called
func New(protoOptions protocol.ProtocolOptions, cfg *Config) *Bitswap {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	b := &Bitswap{
		config: cfg,
	}
	b.callbackContext = CallbackContext{
		ConnectionId: protoOptions.ConnectionId,
		Bitswap:      b,
	}
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          ProtocolId,
		ConnectionId:        protoOptions.ConnectionId,
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		MessageHandlerFunc:  b.messageHandler,
		MessageFromCborFunc: NewMsgFromCbor,
		DecodeErrorFunc:     b.handleDecodeError,
		SendErrorFunc:       b.handleSendError,
		StateMap:            StateMap.Copy(),
		InitialState:        stateExchange,
		SendQueueSize:       cfg.SendQueueSize,
	}
	b.Protocol = protocol.New(protoConfig)
	return b
}

// Start begins processing messages from the remote peer
func (b *Bitswap) Start(remotePeer peer.Id) {
	b.onceStart.Do(func() {
		b.callbackContext.Peer = remotePeer
		b.Logger().Debug("starting protocol",
			"component", "network",
			"protocol", ProtocolName,
			"connection_id", b.callbackContext.ConnectionId.String(),
			"peer", remotePeer.String(),
		)
		b.Protocol.Start()
	})
}

// Peer returns the remote peer ID
func (b *Bitswap) Peer() peer.Id {
	return b.callbackContext.Peer
}

// Want asks the remote peer for a block or for its presence
func (b *Bitswap) Want(id block.Id, priority int32, wantType WantType) error {
	return b.SendMessage(NewMsgWant(id, priority, wantType))
}

// SendBlock sends a block to the remote peer
func (b *Bitswap) SendBlock(blk *block.Block) error {
	return b.SendMessage(NewMsgBlock(blk.Id(), blk.Data()))
}

// Cancel withdraws an earlier Want
func (b *Bitswap) Cancel(id block.Id) error {
	return b.SendMessage(NewMsgCancel(id))
}

// Have tells the remote peer that we hold a block
func (b *Bitswap) Have(id block.Id) error {
	return b.SendMessage(NewMsgHave(id))
}

func (b *Bitswap) messageHandler(msg protocol.Message) error {
	var err error
	switch msg.Type() {
	case MessageTypeWant:
		err = b.handleWant(msg)
	case MessageTypeBlock:
		err = b.handleBlock(msg)
	case MessageTypeCancel:
		err = b.handleCancel(msg)
	case MessageTypeHave:
		err = b.handleHave(msg)
	default:
		err = fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return err
}

func (b *Bitswap) handleWant(msgGeneric protocol.Message) error {
	msg, ok := msgGeneric.(*MsgWant)
	if !ok {
		return fmt.Errorf("%s: unexpected message type %T", ProtocolName, msgGeneric)
	}
	if b.config.WantFunc == nil {
		return fmt.Errorf(
			"received %s Want message but no callback function is defined",
			ProtocolName,
		)
	}
	return b.config.WantFunc(b.callbackContext, msg)
}

func (b *Bitswap) handleBlock(msgGeneric protocol.Message) error {
	msg, ok := msgGeneric.(*MsgBlock)
	if !ok {
		return fmt.Errorf("%s: unexpected message type %T", ProtocolName, msgGeneric)
	}
	if b.config.BlockFunc == nil {
		return fmt.Errorf(
			"received %s Block message but no callback function is defined",
			ProtocolName,
		)
	}
	return b.config.BlockFunc(b.callbackContext, msg)
}

func (b *Bitswap) handleCancel(msgGeneric protocol.Message) error {
	msg, ok := msgGeneric.(*MsgCancel)
	if !ok {
		return fmt.Errorf("%s: unexpected message type %T", ProtocolName, msgGeneric)
	}
	if b.config.CancelFunc == nil {
		return fmt.Errorf(
			"received %s Cancel message but no callback function is defined",
			ProtocolName,
		)
	}
	return b.config.CancelFunc(b.callbackContext, msg)
}

func (b *Bitswap) handleHave(msgGeneric protocol.Message) error {
	msg, ok := msgGeneric.(*MsgHave)
	if !ok {
		return fmt.Errorf("%s: unexpected message type %T", ProtocolName, msgGeneric)
	}
	if b.config.HaveFunc == nil {
		return fmt.Errorf(
			"received %s Have message but no callback function is defined",
			ProtocolName,
		)
	}
	return b.config.HaveFunc(b.callbackContext, msg)
}

func (b *Bitswap) handleDecodeError(err error) {
	if b.config.DecodeErrorFunc != nil {
		b.config.DecodeErrorFunc(b.callbackContext, err)
	}
}

func (b *Bitswap) handleSendError(msg protocol.Message, err error) {
	if b.config.SendErrorFunc != nil {
		b.config.SendErrorFunc(b.callbackContext, msg, err)
	}
}

// BitswapOptionFunc represents a function used to modify the Bitswap protocol config
type BitswapOptionFunc func(*Config)

// NewConfig returns a new Bitswap config object with the provided options
func NewConfig(options ...BitswapOptionFunc) Config {
	c := Config{
		SendQueueSize: protocol.DefaultSendQueueSize,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithWantFunc specifies the Want callback function
func WithWantFunc(wantFunc WantFunc) BitswapOptionFunc {
	return func(c *Config) {
		c.WantFunc = wantFunc
	}
}

// WithBlockFunc specifies the Block callback function
func WithBlockFunc(blockFunc BlockFunc) BitswapOptionFunc {
	return func(c *Config) {
		c.BlockFunc = blockFunc
	}
}

// WithCancelFunc specifies the Cancel callback function
func WithCancelFunc(cancelFunc CancelFunc) BitswapOptionFunc {
	return func(c *Config) {
		c.CancelFunc = cancelFunc
	}
}

// WithHaveFunc specifies the Have callback function
func WithHaveFunc(haveFunc HaveFunc) BitswapOptionFunc {
	return func(c *Config) {
		c.HaveFunc = haveFunc
	}
}

// WithDecodeErrorFunc specifies the callback for messages that could not be decoded
func WithDecodeErrorFunc(decodeErrorFunc DecodeErrorFunc) BitswapOptionFunc {
	return func(c *Config) {
		c.DecodeErrorFunc = decodeErrorFunc
	}
}

// WithSendErrorFunc specifies the callback for messages that could not be sent
func WithSendErrorFunc(sendErrorFunc SendErrorFunc) BitswapOptionFunc {
	return func(c *Config) {
		c.SendErrorFunc = sendErrorFunc
	}
}

// WithSendQueueSize specifies the number of outbound messages buffered
func WithSendQueueSize(size int) BitswapOptionFunc {
	return func(c *Config) {
		c.SendQueueSize = size
	}
}
