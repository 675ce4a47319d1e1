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

// Package handshake implements the connection handshake protocol. Each side
// announces its protocol version, network magic, node public key and a random
// nonce, then proves that it holds the private key by signing the nonce of the
// other side. The public key of the remote side becomes its peer ID
package handshake

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/blinklabs-io/goblockswap/connection"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/blinklabs-io/goblockswap/protocol"
)

// Protocol identifiers
const (
	ProtocolName        = "handshake"
	ProtocolId   uint16 = 0
)

// ProtocolVersion is the current block exchange protocol version
const ProtocolVersion uint16 = 1

// DefaultTimeout is the default time allowed for a connection to finish the handshake
const DefaultTimeout = 5 * time.Second

var (
	ErrVersionMismatch      = errors.New("protocol version mismatch")
	ErrNetworkMagicMismatch = errors.New("network magic mismatch")
	ErrSelfConnection       = errors.New("connected to self")
	ErrRefused              = errors.New("handshake refused by peer")
	ErrInvalidProof         = errors.New("invalid key proof")
	ErrNoKeyPair            = errors.New("no key pair configured")
)

// proofDomain prefixes every signed handshake payload
const proofDomain = "blockswap-handshake-proof"

var (
	stateHello = protocol.NewState(1, "Hello")
	stateProof = protocol.NewState(2, "Proof")
	stateDone  = protocol.NewState(3, "Done")
)

// StateMap is the handshake protocol state machine for inbound messages
var StateMap = protocol.StateMap{
	stateHello: protocol.StateMapEntry{
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeHello,
				NewState: stateProof,
			},
			{
				MsgType:  MessageTypeRefuse,
				NewState: stateDone,
			},
		},
	},
	stateProof: protocol.StateMapEntry{
		Transitions: []protocol.StateTransition{
			{
				MsgType:  MessageTypeProof,
				NewState: stateDone,
			},
			{
				MsgType:  MessageTypeRefuse,
				NewState: stateDone,
			},
		},
	},
	stateDone: protocol.StateMapEntry{
		Terminal: true,
	},
}

// Handshake runs the handshake mini-protocol on a single connection
type Handshake struct {
	*protocol.Protocol
	config          *Config
	callbackContext CallbackContext
	onceStart       sync.Once
	// Set before the protocol starts and only read by the recv loop afterward
	nonce      []byte
	remotePeer peer.Id
	remoteKey  ed25519.PublicKey
}

// Config is used to configure the Handshake protocol instance
type Config struct {
	ProtocolVersion uint16
	NetworkMagic    uint32
	KeyPair         *peer.KeyPair
	FinishedFunc    FinishedFunc
}

// CallbackContext provides context to the callback functions
type CallbackContext struct {
	ConnectionId connection.ConnectionId
	Handshake    *Handshake
}

// Callback function types
type FinishedFunc func(CallbackContext, peer.Id) error

// New returns a new Handshake object
func New(protoOptions protocol.ProtocolOptions, cfg *Config) *Handshake {
	if cfg == nil {
		tmpCfg := NewConfig()
		cfg = &tmpCfg
	}
	h := &Handshake{
		config: cfg,
	}
	h.callbackContext = CallbackContext{
		ConnectionId: protoOptions.ConnectionId,
		Handshake:    h,
	}
	protoConfig := protocol.ProtocolConfig{
		Name:                ProtocolName,
		ProtocolId:          ProtocolId,
		ConnectionId:        protoOptions.ConnectionId,
		Muxer:               protoOptions.Muxer,
		Logger:              protoOptions.Logger,
		ErrorChan:           protoOptions.ErrorChan,
		MessageHandlerFunc:  h.messageHandler,
		MessageFromCborFunc: NewMsgFromCbor,
		StateMap:            StateMap.Copy(),
		InitialState:        stateHello,
		SendQueueSize:       4,
	}
	h.Protocol = protocol.New(protoConfig)
	return h
}

// Start begins the handshake by sending our Hello message
func (h *Handshake) Start() {
	h.onceStart.Do(func() {
		if h.config.KeyPair == nil {
			h.SendError(fmt.Errorf("%s: %w", ProtocolName, ErrNoKeyPair))
			return
		}
		h.nonce = make([]byte, NonceSize)
		if _, err := rand.Read(h.nonce); err != nil {
			h.SendError(fmt.Errorf("%s: failed to generate nonce: %w", ProtocolName, err))
			return
		}
		h.Protocol.Start()
		msg := NewMsgHello(
			h.config.ProtocolVersion,
			h.config.NetworkMagic,
			h.config.KeyPair.PublicKey,
			h.nonce,
		)
		if err := h.SendMessage(msg); err != nil {
			h.SendError(fmt.Errorf("%s: failed to send hello: %w", ProtocolName, err))
		}
	})
}

// proofPayload returns the bytes signed to answer a nonce on a network
func proofPayload(networkMagic uint32, nonce []byte) []byte {
	ret := make([]byte, 0, len(proofDomain)+4+len(nonce))
	ret = append(ret, proofDomain...)
	ret = binary.BigEndian.AppendUint32(ret, networkMagic)
	return append(ret, nonce...)
}

func (h *Handshake) messageHandler(msg protocol.Message) error {
	var err error
	switch msg.Type() {
	case MessageTypeHello:
		err = h.handleHello(msg)
	case MessageTypeProof:
		err = h.handleProof(msg)
	case MessageTypeRefuse:
		err = h.handleRefuse(msg)
	default:
		err = fmt.Errorf(
			"%s: received unexpected message type %d",
			ProtocolName,
			msg.Type(),
		)
	}
	return err
}

func (h *Handshake) handleHello(msgGeneric protocol.Message) error {
	msg, ok := msgGeneric.(*MsgHello)
	if !ok {
		return fmt.Errorf("%s: unexpected message type %T", ProtocolName, msgGeneric)
	}
	h.Logger().Debug("received hello",
		"component", "network",
		"protocol", ProtocolName,
		"connection_id", h.callbackContext.ConnectionId.String(),
		"version", msg.Version,
		"network_magic", msg.NetworkMagic,
	)
	if msg.Version != h.config.ProtocolVersion {
		h.refuse(
			RefuseReasonVersionMismatch,
			fmt.Sprintf("supported version %d", h.config.ProtocolVersion),
		)
		return fmt.Errorf(
			"%s: %w: remote %d, local %d",
			ProtocolName,
			ErrVersionMismatch,
			msg.Version,
			h.config.ProtocolVersion,
		)
	}
	if msg.NetworkMagic != h.config.NetworkMagic {
		h.refuse(
			RefuseReasonNetworkMagicMismatch,
			fmt.Sprintf("network magic %d", h.config.NetworkMagic),
		)
		return fmt.Errorf(
			"%s: %w: remote %d, local %d",
			ProtocolName,
			ErrNetworkMagicMismatch,
			msg.NetworkMagic,
			h.config.NetworkMagic,
		)
	}
	peerId, err := peer.IdFromPublicKey(msg.PublicKey)
	if err != nil {
		h.refuse(RefuseReasonInvalidKey, err.Error())
		return fmt.Errorf("%s: %w", ProtocolName, err)
	}
	if h.config.KeyPair == nil {
		return fmt.Errorf("%s: %w", ProtocolName, ErrNoKeyPair)
	}
	if peerId == h.config.KeyPair.Id() {
		return fmt.Errorf("%s: %w", ProtocolName, ErrSelfConnection)
	}
	if len(msg.Nonce) != NonceSize {
		h.refuse(RefuseReasonInvalidProof, fmt.Sprintf("nonce must be %d bytes", NonceSize))
		return fmt.Errorf(
			"%s: %w: nonce is %d bytes",
			ProtocolName,
			ErrInvalidProof,
			len(msg.Nonce),
		)
	}
	h.remotePeer = peerId
	h.remoteKey = ed25519.PublicKey(msg.PublicKey)
	signature := ed25519.Sign(
		h.config.KeyPair.PrivateKey,
		proofPayload(h.config.NetworkMagic, msg.Nonce),
	)
	if err := h.SendMessage(NewMsgProof(signature)); err != nil {
		return fmt.Errorf("%s: failed to send proof: %w", ProtocolName, err)
	}
	return nil
}

func (h *Handshake) handleProof(msgGeneric protocol.Message) error {
	msg, ok := msgGeneric.(*MsgProof)
	if !ok {
		return fmt.Errorf("%s: unexpected message type %T", ProtocolName, msgGeneric)
	}
	if h.remoteKey == nil {
		return fmt.Errorf("%s: received Proof message before Hello", ProtocolName)
	}
	if !ed25519.Verify(h.remoteKey, proofPayload(h.config.NetworkMagic, h.nonce), msg.Signature) {
		h.refuse(RefuseReasonInvalidProof, "signature does not match public key")
		return fmt.Errorf("%s: %w", ProtocolName, ErrInvalidProof)
	}
	if h.config.FinishedFunc == nil {
		return fmt.Errorf(
			"%s: received Proof message but no callback function is defined",
			ProtocolName,
		)
	}
	return h.config.FinishedFunc(h.callbackContext, h.remotePeer)
}

func (h *Handshake) handleRefuse(msgGeneric protocol.Message) error {
	msg, ok := msgGeneric.(*MsgRefuse)
	if !ok {
		return fmt.Errorf("%s: unexpected message type %T", ProtocolName, msgGeneric)
	}
	return fmt.Errorf(
		"%s: %w: %s: %s",
		ProtocolName,
		ErrRefused,
		RefuseReasonString(msg.Reason),
		msg.Message,
	)
}

func (h *Handshake) refuse(reason uint8, message string) {
	if err := h.SendMessage(NewMsgRefuse(reason, message)); err != nil {
		h.Logger().Debug("failed to send refuse",
			"component", "network",
			"protocol", ProtocolName,
			"error", err,
		)
	}
}

// HandshakeOptionFunc represents a function used to modify the Handshake protocol config
type HandshakeOptionFunc func(*Config)

// NewConfig returns a new Handshake config object with the provided options
func NewConfig(options ...HandshakeOptionFunc) Config {
	c := Config{
		ProtocolVersion: ProtocolVersion,
	}
	// Apply provided options functions
	for _, option := range options {
		option(&c)
	}
	return c
}

// WithProtocolVersion specifies the protocol version to announce
func WithProtocolVersion(version uint16) HandshakeOptionFunc {
	return func(c *Config) {
		c.ProtocolVersion = version
	}
}

// WithNetworkMagic specifies the network magic value
func WithNetworkMagic(networkMagic uint32) HandshakeOptionFunc {
	return func(c *Config) {
		c.NetworkMagic = networkMagic
	}
}

// WithKeyPair specifies the local node key pair
func WithKeyPair(keyPair *peer.KeyPair) HandshakeOptionFunc {
	return func(c *Config) {
		c.KeyPair = keyPair
	}
}

// WithFinishedFunc specifies the Finished callback function
func WithFinishedFunc(finishedFunc FinishedFunc) HandshakeOptionFunc {
	return func(c *Config) {
		c.FinishedFunc = finishedFunc
	}
}
