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

package bitswap_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/muxer"
	"github.com/blinklabs-io/goblockswap/peer"
	"github.com/blinklabs-io/goblockswap/protocol"
	"github.com/blinklabs-io/goblockswap/protocol/bitswap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type testEndpoint struct {
	conn    net.Conn
	muxer   *muxer.Muxer
	bitswap *bitswap.Bitswap
}

func newTestEndpoint(conn net.Conn, cfg bitswap.Config) *testEndpoint {
	m := muxer.New(conn)
	return &testEndpoint{
		conn:  conn,
		muxer: m,
		bitswap: bitswap.New(
			protocol.ProtocolOptions{
				Muxer:     m,
				ErrorChan: make(chan error, 10),
			},
			&cfg,
		),
	}
}

func (e *testEndpoint) stop() {
	e.bitswap.Stop()
	e.muxer.Stop()
	e.conn.Close()
}

func TestConfigOptions(t *testing.T) {
	t.Run("Default config", func(t *testing.T) {
		cfg := bitswap.NewConfig()
		assert.Equal(t, protocol.DefaultSendQueueSize, cfg.SendQueueSize)
		assert.Nil(t, cfg.WantFunc)
	})

	t.Run("Custom config", func(t *testing.T) {
		cfg := bitswap.NewConfig(
			bitswap.WithSendQueueSize(10),
			bitswap.WithWantFunc(func(bitswap.CallbackContext, *bitswap.MsgWant) error { return nil }),
			bitswap.WithBlockFunc(func(bitswap.CallbackContext, *bitswap.MsgBlock) error { return nil }),
		)
		assert.Equal(t, 10, cfg.SendQueueSize)
		assert.NotNil(t, cfg.WantFunc)
		assert.NotNil(t, cfg.BlockFunc)
	})
}

func TestBitswapExchange(t *testing.T) {
	defer goleak.VerifyNone(t)
	kpA, err := peer.GenerateKeyPair()
	require.NoError(t, err)
	kpB, err := peer.GenerateKeyPair()
	require.NoError(t, err)
	blk := testBlock()

	type wantEvent struct {
		peer peer.Id
		msg  *bitswap.MsgWant
	}
	wantChan := make(chan wantEvent, 1)
	blockChan := make(chan *bitswap.MsgBlock, 1)
	cancelChan := make(chan block.Id, 1)
	decodeErrChan := make(chan error, 1)

	connA, connB := net.Pipe()
	sideA := newTestEndpoint(connA, bitswap.NewConfig(
		bitswap.WithBlockFunc(func(_ bitswap.CallbackContext, msg *bitswap.MsgBlock) error {
			blockChan <- msg
			return nil
		}),
	))
	sideB := newTestEndpoint(connB, bitswap.NewConfig(
		bitswap.WithWantFunc(func(ctx bitswap.CallbackContext, msg *bitswap.MsgWant) error {
			wantChan <- wantEvent{peer: ctx.Peer, msg: msg}
			return ctx.Bitswap.SendBlock(blk)
		}),
		bitswap.WithCancelFunc(func(_ bitswap.CallbackContext, msg *bitswap.MsgCancel) error {
			cancelChan <- msg.Cid
			return nil
		}),
		bitswap.WithDecodeErrorFunc(func(_ bitswap.CallbackContext, err error) {
			decodeErrChan <- err
		}),
	))
	defer sideA.stop()
	defer sideB.stop()
	sideA.bitswap.Start(kpB.Id())
	sideB.bitswap.Start(kpA.Id())
	sideA.muxer.Start()
	sideB.muxer.Start()

	require.NoError(t, sideA.bitswap.Want(blk.Id(), 10, bitswap.WantTypeBlock))
	select {
	case evt := <-wantChan:
		assert.Equal(t, kpA.Id(), evt.peer)
		assert.Equal(t, blk.Id(), evt.msg.Cid)
		assert.Equal(t, int32(10), evt.msg.Priority)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive want within timeout")
	}
	select {
	case msg := <-blockChan:
		assert.Equal(t, blk.Id(), msg.Cid)
		assert.Equal(t, blk.Data(), msg.Data)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive block within timeout")
	}

	// A malformed message is reported and dropped without closing the connection
	require.NoError(t, sideA.muxer.Send(muxer.NewSegment(bitswap.ProtocolId, []byte{0x82, 0x02, 0x01})))
	select {
	case err := <-decodeErrChan:
		var decodeErr *block.DecodeError
		assert.True(t, errors.As(err, &decodeErr))
		assert.Equal(t, 2, decodeErr.Offset)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive decode error within timeout")
	}

	require.NoError(t, sideA.bitswap.Cancel(blk.Id()))
	select {
	case id := <-cancelChan:
		assert.Equal(t, blk.Id(), id)
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive cancel within timeout")
	}
}

func TestMissingCallbackIsFatal(t *testing.T) {
	defer goleak.VerifyNone(t)
	connA, connB := net.Pipe()
	errorChan := make(chan error, 10)
	mA := muxer.New(connA)
	bsA := bitswap.New(protocol.ProtocolOptions{Muxer: mA, ErrorChan: make(chan error, 10)}, nil)
	mB := muxer.New(connB)
	bsB := bitswap.New(protocol.ProtocolOptions{Muxer: mB, ErrorChan: errorChan}, nil)
	defer func() {
		bsA.Stop()
		bsB.Stop()
		mA.Stop()
		mB.Stop()
		connA.Close()
		connB.Close()
	}()
	bsA.Start(peer.Id{})
	bsB.Start(peer.Id{})
	mA.Start()
	mB.Start()
	require.NoError(t, bsA.Have(testBlock().Id()))
	select {
	case err := <-errorChan:
		assert.Contains(t, err.Error(), "no callback function is defined")
	case <-time.After(2 * time.Second):
		t.Fatal("did not receive error within timeout")
	}
}
