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

// Package protocol provides the common functionality for mini-protocols
package protocol

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/cbor"
	"github.com/blinklabs-io/goblockswap/connection"
	"github.com/blinklabs-io/goblockswap/muxer"
)

// DefaultSendQueueSize is the number of outbound messages buffered per mini-protocol
const DefaultSendQueueSize = 256

// Protocol implements the base functionality of a mini-protocol
type Protocol struct {
	config        ProtocolConfig
	currentState  State
	stateMutex    sync.Mutex
	sendQueueChan chan Message
	muxerSendChan chan *muxer.Segment
	muxerRecvChan chan *muxer.Segment
	muxerDoneChan chan struct{}
	doneChan      chan struct{}
	onceStart     sync.Once
	onceStop      sync.Once
}

// ProtocolConfig provides the configuration for Protocol
type ProtocolConfig struct {
	Name                string
	ProtocolId          uint16
	ConnectionId        connection.ConnectionId
	Muxer               *muxer.Muxer
	Logger              *slog.Logger
	ErrorChan           chan error
	StateMap            StateMap
	InitialState        State
	SendQueueSize       int
	MessageHandlerFunc  MessageHandlerFunc
	MessageFromCborFunc MessageFromCborFunc
	DecodeErrorFunc     DecodeErrorFunc
	SendErrorFunc       SendErrorFunc
}

// ProtocolOptions provides common arguments for all mini-protocols
type ProtocolOptions struct {
	ConnectionId connection.ConnectionId
	Muxer        *muxer.Muxer
	Logger       *slog.Logger
	ErrorChan    chan error
}

// MessageHandlerFunc represents a function that handles an incoming message.
// A returned error is fatal to the connection
type MessageHandlerFunc func(Message) error

// MessageFromCborFunc represents a function that parses a mini-protocol message
type MessageFromCborFunc func(uint, []byte) (Message, error)

// DecodeErrorFunc is called for each inbound segment that could not be decoded.
// The segment is dropped and the connection stays up
type DecodeErrorFunc func(error)

// SendErrorFunc is called when a queued outbound message could not be sent
type SendErrorFunc func(Message, error)

// New returns a new Protocol object and registers it with the muxer
func New(config ProtocolConfig) *Protocol {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.SendQueueSize <= 0 {
		config.SendQueueSize = DefaultSendQueueSize
	}
	p := &Protocol{
		config:        config,
		currentState:  config.InitialState,
		sendQueueChan: make(chan Message, config.SendQueueSize),
		doneChan:      make(chan struct{}),
	}
	if config.Muxer != nil {
		p.muxerSendChan, p.muxerRecvChan, p.muxerDoneChan = config.Muxer.RegisterProtocol(
			config.ProtocolId,
		)
	}
	if p.muxerDoneChan == nil {
		// Muxer is missing or already shut down
		p.muxerDoneChan = make(chan struct{})
		close(p.muxerDoneChan)
	}
	return p
}

// Start starts the send and receive loops
func (p *Protocol) Start() {
	p.onceStart.Do(func() {
		p.Logger().Debug("starting protocol",
			"component", "network",
			"protocol", p.config.Name,
			"connection_id", p.config.ConnectionId.String(),
		)
		go p.sendLoop()
		go p.recvLoop()
	})
}

// Stop shuts down the protocol loops
func (p *Protocol) Stop() {
	p.onceStop.Do(func() {
		close(p.doneChan)
	})
}

// DoneChan returns a channel that is closed when the protocol shuts down
func (p *Protocol) DoneChan() <-chan struct{} {
	return p.doneChan
}

func (p *Protocol) IsDone() bool {
	select {
	case <-p.doneChan:
		return true
	case <-p.muxerDoneChan:
		return true
	default:
		return false
	}
}

// Logger returns the protocol logger
func (p *Protocol) Logger() *slog.Logger {
	return p.config.Logger
}

func (p *Protocol) Name() string {
	return p.config.Name
}

func (p *Protocol) ConnectionId() connection.ConnectionId {
	return p.config.ConnectionId
}

// CurrentState returns the state reached by the last inbound message
func (p *Protocol) CurrentState() State {
	p.stateMutex.Lock()
	defer p.stateMutex.Unlock()
	return p.currentState
}

// SendMessage queues a message for sending. It never blocks: a full queue
// returns ErrSendQueueFull
func (p *Protocol) SendMessage(msg Message) error {
	if p.IsDone() {
		return ErrProtocolShuttingDown
	}
	select {
	case p.sendQueueChan <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

func (p *Protocol) sendLoop() {
	for {
		select {
		case <-p.doneChan:
			return
		case <-p.muxerDoneChan:
			return
		case msg := <-p.sendQueueChan:
			data := msg.Cbor()
			if data == nil {
				var err error
				data, err = cbor.Encode(msg)
				if err != nil {
					p.sendError(msg, fmt.Errorf("%s: encode error: %w", p.config.Name, err))
					continue
				}
			}
			segment := muxer.NewSegment(p.config.ProtocolId, data)
			if segment == nil {
				p.sendError(
					msg,
					fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(data)),
				)
				continue
			}
			select {
			case p.muxerSendChan <- segment:
			case <-p.doneChan:
				return
			case <-p.muxerDoneChan:
				return
			}
		}
	}
}

func (p *Protocol) recvLoop() {
	for {
		select {
		case <-p.doneChan:
			return
		case <-p.muxerDoneChan:
			return
		case segment := <-p.muxerRecvChan:
			if err := p.handleSegment(segment.Payload); err != nil {
				p.SendError(err)
				return
			}
		}
	}
}

func (p *Protocol) handleSegment(payload []byte) error {
	msgType, err := cbor.DecodeIdFromList(payload)
	if err != nil {
		p.decodeError(&block.DecodeError{Offset: 0, Err: err})
		return nil
	}
	// #nosec G115 -- DecodeIdFromList never returns a negative value
	msg, err := p.config.MessageFromCborFunc(uint(msgType), payload)
	if err != nil {
		p.decodeError(err)
		return nil
	}
	if msg == nil {
		p.decodeError(
			&block.DecodeError{
				Offset: 0,
				Err:    fmt.Errorf("%w: %d", ErrProtocolViolationUnknownMessage, msgType),
			},
		)
		return nil
	}
	if p.config.StateMap != nil {
		p.stateMutex.Lock()
		nextState, ok := p.config.StateMap.nextState(p.currentState, msg.Type())
		if !ok {
			currentState := p.currentState
			p.stateMutex.Unlock()
			return fmt.Errorf(
				"%s: %w: message type %d in state %s",
				p.config.Name,
				ErrProtocolViolationUnexpectedMessage,
				msg.Type(),
				currentState,
			)
		}
		p.currentState = nextState
		p.stateMutex.Unlock()
	}
	return p.config.MessageHandlerFunc(msg)
}

func (p *Protocol) decodeError(err error) {
	p.Logger().Warn("dropping undecodable message",
		"component", "network",
		"protocol", p.config.Name,
		"connection_id", p.config.ConnectionId.String(),
		"error", err,
	)
	if p.config.DecodeErrorFunc != nil {
		p.config.DecodeErrorFunc(err)
	}
}

func (p *Protocol) sendError(msg Message, err error) {
	p.Logger().Warn("failed to send message",
		"component", "network",
		"protocol", p.config.Name,
		"connection_id", p.config.ConnectionId.String(),
		"message_type", msg.Type(),
		"error", err,
	)
	if p.config.SendErrorFunc != nil {
		p.config.SendErrorFunc(msg, err)
	}
}

// SendError reports a fatal error to the connection and stops the protocol
func (p *Protocol) SendError(err error) {
	if p.config.ErrorChan != nil {
		select {
		case p.config.ErrorChan <- err:
		case <-p.doneChan:
		default:
			if !errors.Is(err, ErrProtocolShuttingDown) {
				p.Logger().Error("dropping protocol error",
					"component", "network",
					"protocol", p.config.Name,
					"error", err,
				)
			}
		}
	}
	p.Stop()
}
