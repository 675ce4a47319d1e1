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

package protocol

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/cbor"
	"github.com/blinklabs-io/goblockswap/muxer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const (
	testMessageTypePing = 0
	testMessageTypeDone = 1
)

type testMsg struct {
	MessageBase
	Value uint64
}

func newTestMsg(msgType uint8, value uint64) *testMsg {
	return &testMsg{
		MessageBase: NewMessageBase(msgType),
		Value:       value,
	}
}

func testMsgFromCbor(msgType uint, data []byte) (Message, error) {
	switch msgType {
	case testMessageTypePing, testMessageTypeDone:
		var msg testMsg
		if _, err := cbor.Decode(data, &msg); err != nil {
			return nil, &block.DecodeError{Offset: 1, Err: err}
		}
		msg.SetCbor(data)
		return &msg, nil
	}
	return nil, nil
}

var (
	testStateActive = NewState(1, "Active")
	testStateDone   = NewState(2, "Done")
	testStateMap    = StateMap{
		testStateActive: StateMapEntry{
			Transitions: []StateTransition{
				{MsgType: testMessageTypePing, NewState: testStateActive},
				{MsgType: testMessageTypeDone, NewState: testStateDone},
			},
		},
		testStateDone: StateMapEntry{
			Terminal: true,
		},
	}
)

func encodeTestMsg(t *testing.T, msg Message) []byte {
	t.Helper()
	data, err := cbor.Encode(msg)
	require.NoError(t, err)
	return data
}

func TestHandleSegmentStateTransitions(t *testing.T) {
	var handled []uint64
	p := New(ProtocolConfig{
		Name:                "test",
		StateMap:            testStateMap,
		InitialState:        testStateActive,
		MessageFromCborFunc: testMsgFromCbor,
		MessageHandlerFunc: func(msg Message) error {
			handled = append(handled, msg.(*testMsg).Value)
			return nil
		},
	})
	require.NoError(t, p.handleSegment(encodeTestMsg(t, newTestMsg(testMessageTypePing, 1))))
	assert.Equal(t, testStateActive, p.CurrentState())
	require.NoError(t, p.handleSegment(encodeTestMsg(t, newTestMsg(testMessageTypeDone, 2))))
	assert.Equal(t, testStateDone, p.CurrentState())
	err := p.handleSegment(encodeTestMsg(t, newTestMsg(testMessageTypePing, 3)))
	assert.ErrorIs(t, err, ErrProtocolViolationUnexpectedMessage)
	assert.Equal(t, []uint64{1, 2}, handled)
}

func TestHandleSegmentDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		errIs   error
	}{
		{name: "not a list", payload: []byte{0x01}},
		{name: "unknown message type", payload: []byte{0x82, 0x09, 0x01}, errIs: ErrProtocolViolationUnknownMessage},
		{name: "truncated message", payload: []byte{0x82, 0x00}, errIs: io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decodeErrs []error
			handlerCalled := false
			p := New(ProtocolConfig{
				Name:                "test",
				MessageFromCborFunc: testMsgFromCbor,
				MessageHandlerFunc: func(Message) error {
					handlerCalled = true
					return nil
				},
				DecodeErrorFunc: func(err error) {
					decodeErrs = append(decodeErrs, err)
				},
			})
			// Decode errors are not fatal
			require.NoError(t, p.handleSegment(tt.payload))
			require.Len(t, decodeErrs, 1)
			var decodeErr *block.DecodeError
			assert.True(t, errors.As(decodeErrs[0], &decodeErr))
			if tt.errIs != nil {
				assert.ErrorIs(t, decodeErrs[0], tt.errIs)
			}
			assert.False(t, handlerCalled)
		})
	}
}

func TestSendMessageQueueFull(t *testing.T) {
	p := New(ProtocolConfig{
		Name:          "test",
		SendQueueSize: 1,
	})
	// Without a muxer the protocol is already shut down
	assert.ErrorIs(t, p.SendMessage(newTestMsg(testMessageTypePing, 1)), ErrProtocolShuttingDown)

	connA, connB := net.Pipe()
	defer connA.Close()
	defer connB.Close()
	m := muxer.New(connA)
	defer m.Stop()
	p = New(ProtocolConfig{
		Name:          "test",
		Muxer:         m,
		SendQueueSize: 1,
	})
	// Not started, so the queue is not drained
	require.NoError(t, p.SendMessage(newTestMsg(testMessageTypePing, 1)))
	assert.ErrorIs(t, p.SendMessage(newTestMsg(testMessageTypePing, 2)), ErrSendQueueFull)
}

func TestProtocolRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t)
	connA, connB := net.Pipe()
	muxA := muxer.New(connA)
	muxB := muxer.New(connB)
	recvChan := make(chan uint64, 10)
	decodeErrChan := make(chan error, 10)
	sender := New(ProtocolConfig{
		Name:                "test",
		ProtocolId:          5,
		Muxer:               muxA,
		MessageFromCborFunc: testMsgFromCbor,
		MessageHandlerFunc:  func(Message) error { return nil },
	})
	receiver := New(ProtocolConfig{
		Name:                "test",
		ProtocolId:          5,
		Muxer:               muxB,
		StateMap:            testStateMap,
		InitialState:        testStateActive,
		MessageFromCborFunc: testMsgFromCbor,
		MessageHandlerFunc: func(msg Message) error {
			recvChan <- msg.(*testMsg).Value
			return nil
		},
		DecodeErrorFunc: func(err error) {
			decodeErrChan <- err
		},
	})
	defer func() {
		sender.Stop()
		receiver.Stop()
		muxA.Stop()
		muxB.Stop()
		connA.Close()
		connB.Close()
	}()
	sender.Start()
	receiver.Start()
	muxA.Start()
	muxB.Start()

	require.NoError(t, sender.SendMessage(newTestMsg(testMessageTypePing, 42)))
	// Undecodable segment sent directly through the muxer
	require.NoError(t, muxA.Send(muxer.NewSegment(5, []byte{0x82, 0x09, 0x00})))
	require.NoError(t, sender.SendMessage(newTestMsg(testMessageTypePing, 43)))

	for _, expected := range []uint64{42, 43} {
		select {
		case value := <-recvChan:
			assert.Equal(t, expected, value)
		case <-time.After(2 * time.Second):
			t.Fatal("did not receive message within timeout")
		}
	}
	select {
	case err := <-decodeErrChan:
		assert.ErrorIs(t, err, ErrProtocolViolationUnknownMessage)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive decode error within timeout")
	}
}

func TestSendErrorTooLarge(t *testing.T) {
	defer goleak.VerifyNone(t)
	connA, connB := net.Pipe()
	m := muxer.New(connA)
	sendErrChan := make(chan error, 1)
	p := New(ProtocolConfig{
		Name:  "test",
		Muxer: m,
		SendErrorFunc: func(_ Message, err error) {
			sendErrChan <- err
		},
	})
	defer func() {
		p.Stop()
		m.Stop()
		connA.Close()
		connB.Close()
	}()
	p.Start()
	msg := &testMsg{MessageBase: NewMessageBase(testMessageTypePing)}
	msg.SetCbor(make([]byte, muxer.SegmentMaxPayloadLength+1))
	require.NoError(t, p.SendMessage(msg))
	select {
	case err := <-sendErrChan:
		assert.ErrorIs(t, err, ErrMessageTooLarge)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive send error within timeout")
	}
}
