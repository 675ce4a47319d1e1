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

package muxer_test

import (
	"bytes"
	"encoding/binary"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/blinklabs-io/goblockswap/muxer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newMuxerPair(t *testing.T) (*muxer.Muxer, net.Conn, *muxer.Muxer, net.Conn) {
	t.Helper()
	connA, connB := net.Pipe()
	return muxer.New(connA), connA, muxer.New(connB), connB
}

func shutdown(muxers []*muxer.Muxer, conns []net.Conn) {
	for _, m := range muxers {
		m.Stop()
	}
	for _, c := range conns {
		c.Close()
	}
}

func TestNewSegment(t *testing.T) {
	tests := []struct {
		name      string
		payload   []byte
		expectNil bool
	}{
		{name: "valid payload", payload: []byte("test payload")},
		{name: "maximum payload size", payload: make([]byte, muxer.SegmentMaxPayloadLength)},
		{name: "empty payload", payload: []byte{}, expectNil: true},
		{name: "payload too large", payload: make([]byte, muxer.SegmentMaxPayloadLength+1), expectNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segment := muxer.NewSegment(0x01, tt.payload)
			if tt.expectNil {
				assert.Nil(t, segment)
				return
			}
			require.NotNil(t, segment)
			assert.Equal(t, uint16(0x01), segment.ProtocolId)
			assert.Equal(t, uint32(len(tt.payload)), segment.PayloadLength)
			assert.True(t, bytes.Equal(tt.payload, segment.Payload))
		})
	}
}

func TestMuxerSendReceive(t *testing.T) {
	defer goleak.VerifyNone(t)
	muxA, connA, muxB, connB := newMuxerPair(t)
	defer shutdown([]*muxer.Muxer{muxA, muxB}, []net.Conn{connA, connB})

	sendChan, _, _ := muxA.RegisterProtocol(0x01)
	_, recvChan, _ := muxB.RegisterProtocol(0x01)
	muxA.Start()
	muxB.Start()

	payload := []byte("test message")
	sendChan <- muxer.NewSegment(0x01, payload)

	select {
	case segment := <-recvChan:
		assert.Equal(t, uint16(0x01), segment.ProtocolId)
		assert.Equal(t, payload, segment.Payload)
	case err := <-muxB.ErrorChan():
		t.Fatalf("unexpected muxer error: %s", err)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive segment within timeout")
	}
}

func TestMuxerSegmentEncoding(t *testing.T) {
	defer goleak.VerifyNone(t)
	connA, connB := net.Pipe()
	m := muxer.New(connA)
	defer shutdown([]*muxer.Muxer{m}, []net.Conn{connA, connB})

	payload := []byte{0xaa, 0xbb, 0xcc}
	errChan := make(chan error, 1)
	go func() {
		errChan <- m.Send(muxer.NewSegment(0x0102, payload))
	}()
	buf := make([]byte, muxer.SegmentHeaderLength+len(payload))
	_, err := connB.Read(buf)
	require.NoError(t, err)
	require.NoError(t, <-errChan)

	var header muxer.SegmentHeader
	require.NoError(t, binary.Read(bytes.NewReader(buf), binary.BigEndian, &header))
	assert.Equal(t, uint16(0x0102), header.ProtocolId)
	assert.Equal(t, uint32(3), header.PayloadLength)
	assert.Equal(t, payload, buf[muxer.SegmentHeaderLength:])
}

func TestMuxerReadErrors(t *testing.T) {
	tests := []struct {
		name          string
		header        muxer.SegmentHeader
		errorContains string
	}{
		{
			name:          "zero byte payload",
			header:        muxer.SegmentHeader{ProtocolId: 0x01, PayloadLength: 0},
			errorContains: "zero-byte segment payload",
		},
		{
			name:          "payload too large",
			header:        muxer.SegmentHeader{ProtocolId: 0x01, PayloadLength: muxer.SegmentMaxPayloadLength + 1},
			errorContains: "exceeds maximum",
		},
		{
			name:          "unknown protocol",
			header:        muxer.SegmentHeader{ProtocolId: 0x99, PayloadLength: 1},
			errorContains: "unknown protocol ID 153",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			connA, connB := net.Pipe()
			m := muxer.New(connA)
			defer shutdown([]*muxer.Muxer{m}, []net.Conn{connA, connB})
			_, _, _ = m.RegisterProtocol(0x01)
			m.Start()

			buf := &bytes.Buffer{}
			require.NoError(t, binary.Write(buf, binary.BigEndian, tt.header))
			if tt.header.PayloadLength == 1 {
				buf.WriteByte(0x00)
			}
			go func() {
				_, _ = connB.Write(buf.Bytes())
			}()

			select {
			case err := <-m.ErrorChan():
				assert.True(
					t,
					strings.Contains(err.Error(), tt.errorContains),
					"unexpected error: %s", err,
				)
			case <-time.After(2 * time.Second):
				t.Fatal("did not receive error within timeout")
			}
			assert.True(t, m.IsDone())
		})
	}
}

func TestMuxerConnectionClosed(t *testing.T) {
	defer goleak.VerifyNone(t)
	connA, connB := net.Pipe()
	m := muxer.New(connA)
	defer m.Stop()
	m.Start()
	connB.Close()
	select {
	case err := <-m.ErrorChan():
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive error within timeout")
	}
	connA.Close()
}

func TestRegisterAfterStop(t *testing.T) {
	defer goleak.VerifyNone(t)
	connA, connB := net.Pipe()
	m := muxer.New(connA)
	defer shutdown(nil, []net.Conn{connA, connB})
	m.Stop()
	// Stop is idempotent
	m.Stop()
	sendChan, recvChan, doneChan := m.RegisterProtocol(0x01)
	assert.Nil(t, sendChan)
	assert.Nil(t, recvChan)
	assert.Nil(t, doneChan)
	assert.ErrorIs(t, m.Send(muxer.NewSegment(0x01, []byte{0x01})), muxer.ErrMuxerShuttingDown)
}
