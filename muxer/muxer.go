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

// Package muxer multiplexes mini-protocol segments over a single stream connection
package muxer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

var ErrMuxerShuttingDown = errors.New("muxer is shutting down")

// Muxer wraps a net.Conn and routes segments between the connection and the
// registered mini-protocols
type Muxer struct {
	conn              net.Conn
	sendMutex         sync.Mutex
	startChan         chan struct{}
	doneChan          chan struct{}
	errorChan         chan error
	protocolsMutex    sync.Mutex
	protocolSenders   map[uint16]chan *Segment
	protocolReceivers map[uint16]chan *Segment
	onceStart         sync.Once
	onceStop          sync.Once
}

// New creates a new Muxer object and starts the read loop. No segments are read
// until Start is called
func New(conn net.Conn) *Muxer {
	m := &Muxer{
		conn:              conn,
		startChan:         make(chan struct{}),
		doneChan:          make(chan struct{}),
		errorChan:         make(chan error, 10),
		protocolSenders:   make(map[uint16]chan *Segment),
		protocolReceivers: make(map[uint16]chan *Segment),
	}
	go m.readLoop()
	return m
}

func (m *Muxer) ErrorChan() chan error {
	return m.errorChan
}

// Start allows the read loop to begin delivering segments. Register all
// mini-protocols before calling Start
func (m *Muxer) Start() {
	m.onceStart.Do(func() {
		close(m.startChan)
	})
}

// Stop shuts down the muxer. The underlying connection is left open
func (m *Muxer) Stop() {
	m.onceStop.Do(func() {
		close(m.doneChan)
	})
}

func (m *Muxer) IsDone() bool {
	select {
	case <-m.doneChan:
		return true
	default:
		return false
	}
}

func (m *Muxer) sendError(err error) {
	if m.IsDone() {
		return
	}
	// Send error to consumer without blocking if nobody is listening
	select {
	case m.errorChan <- err:
	default:
	}
	// Stop the muxer on any error
	m.Stop()
}

// RegisterProtocol registers a mini-protocol and returns the channels used to
// send and receive its segments, plus a channel that is closed on shutdown.
// It returns nil channels if the muxer is already shutting down
func (m *Muxer) RegisterProtocol(
	protocolId uint16,
) (chan *Segment, chan *Segment, chan struct{}) {
	if m.IsDone() {
		return nil, nil, nil
	}
	senderChan := make(chan *Segment, 10)
	receiverChan := make(chan *Segment, 10)
	m.protocolsMutex.Lock()
	m.protocolSenders[protocolId] = senderChan
	m.protocolReceivers[protocolId] = receiverChan
	m.protocolsMutex.Unlock()
	// Start goroutine to handle outbound segments
	go func() {
		for {
			select {
			case <-m.doneChan:
				return
			case segment, ok := <-senderChan:
				if !ok {
					return
				}
				if err := m.Send(segment); err != nil {
					m.sendError(err)
					return
				}
			}
		}
	}()
	return senderChan, receiverChan, m.doneChan
}

// UnregisterProtocol stops routing segments for the given protocol ID
func (m *Muxer) UnregisterProtocol(protocolId uint16) {
	m.protocolsMutex.Lock()
	defer m.protocolsMutex.Unlock()
	delete(m.protocolSenders, protocolId)
	delete(m.protocolReceivers, protocolId)
}

// Send writes a segment to the connection
func (m *Muxer) Send(segment *Segment) error {
	if segment == nil {
		return errors.New("cannot send nil segment")
	}
	// We use a mutex to make sure only one protocol can send at a time
	m.sendMutex.Lock()
	defer m.sendMutex.Unlock()
	if m.IsDone() {
		return ErrMuxerShuttingDown
	}
	buf := bytes.NewBuffer(make([]byte, 0, SegmentHeaderLength+len(segment.Payload)))
	if err := binary.Write(buf, binary.BigEndian, segment.SegmentHeader); err != nil {
		return err
	}
	buf.Write(segment.Payload)
	if _, err := m.conn.Write(buf.Bytes()); err != nil {
		return err
	}
	return nil
}

func (m *Muxer) readLoop() {
	select {
	case <-m.doneChan:
		return
	case <-m.startChan:
	}
	for {
		header := SegmentHeader{}
		if err := binary.Read(m.conn, binary.BigEndian, &header); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			m.sendError(err)
			return
		}
		if header.PayloadLength == 0 {
			m.sendError(errors.New("received zero-byte segment payload"))
			return
		}
		if header.PayloadLength > SegmentMaxPayloadLength {
			m.sendError(
				fmt.Errorf(
					"segment payload length %d exceeds maximum of %d",
					header.PayloadLength,
					SegmentMaxPayloadLength,
				),
			)
			return
		}
		segment := &Segment{
			SegmentHeader: header,
			Payload:       make([]byte, header.PayloadLength),
		}
		// We use ReadFull because it guarantees to read the expected number of bytes or
		// return an error
		if _, err := io.ReadFull(m.conn, segment.Payload); err != nil {
			m.sendError(err)
			return
		}
		m.protocolsMutex.Lock()
		recvChan := m.protocolReceivers[segment.ProtocolId]
		m.protocolsMutex.Unlock()
		if recvChan == nil {
			m.sendError(
				fmt.Errorf(
					"received message for unknown protocol ID %d",
					segment.ProtocolId,
				),
			)
			return
		}
		select {
		case <-m.doneChan:
			return
		case recvChan <- segment:
		}
	}
}
