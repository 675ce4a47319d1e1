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
	"testing"

	"github.com/blinklabs-io/goblockswap/block"
	"github.com/blinklabs-io/goblockswap/cbor"
	"github.com/blinklabs-io/goblockswap/protocol/bitswap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBlock() *block.Block {
	return block.NewRawBlock([]byte("bitswap test block"))
}

func TestMsgWantFromCbor(t *testing.T) {
	blk := testBlock()
	data, err := cbor.Encode(bitswap.NewMsgWant(blk.Id(), -5, bitswap.WantTypeHave))
	require.NoError(t, err)
	msg, err := bitswap.NewMsgFromCbor(bitswap.MessageTypeWant, data)
	require.NoError(t, err)
	want, ok := msg.(*bitswap.MsgWant)
	require.True(t, ok)
	assert.Equal(t, blk.Id(), want.Cid)
	assert.Equal(t, int32(-5), want.Priority)
	assert.Equal(t, bitswap.WantTypeHave, want.WantType)
	assert.Equal(t, data, want.Cbor())
}

func TestMsgBlockFromCbor(t *testing.T) {
	blk := testBlock()
	data, err := cbor.Encode(bitswap.NewMsgBlock(blk.Id(), blk.Data()))
	require.NoError(t, err)
	msg, err := bitswap.NewMsgFromCbor(bitswap.MessageTypeBlock, data)
	require.NoError(t, err)
	blockMsg, ok := msg.(*bitswap.MsgBlock)
	require.True(t, ok)
	assert.Equal(t, blk.Id(), blockMsg.Cid)
	assert.Equal(t, blk.Data(), blockMsg.Data)
	assert.True(t, block.Verify(blockMsg.Data, blockMsg.Cid))
}

func TestNewMsgFromCborUnknownType(t *testing.T) {
	msg, err := bitswap.NewMsgFromCbor(99, []byte{0x81, 0x18, 0x63})
	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestNewMsgFromCborDecodeErrors(t *testing.T) {
	blk := testBlock()
	invalidWantType, err := cbor.Encode(bitswap.NewMsgWant(blk.Id(), 1, bitswap.WantType(7)))
	require.NoError(t, err)
	cancel, err := cbor.Encode(bitswap.NewMsgCancel(blk.Id()))
	require.NoError(t, err)
	trailing := append(append([]byte{}, cancel...), 0x00)
	// Byte string holding a 36 byte identifier uses a 2 byte header
	badPriority := append([]byte{0x84, 0x00, 0x58, 0x24}, blk.Id().Bytes()...)
	badPriority = append(badPriority, 0x61, 'x', 0x00)

	tests := []struct {
		name    string
		msgType uint
		data    []byte
		offset  int
		errIs   error
	}{
		{
			name:    "wrong field count",
			msgType: bitswap.MessageTypeCancel,
			data:    []byte{0x83, 0x02, 0x41, 0x01, 0x00},
			offset:  0,
			errIs:   bitswap.ErrFieldCount,
		},
		{
			name:    "unsupported hash in identifier",
			msgType: bitswap.MessageTypeWant,
			data:    []byte{0x84, 0x00, 0x44, 0x01, 0x55, 0x13, 0x20, 0x0a, 0x00},
			offset:  5,
			errIs:   block.ErrUnsupportedHash,
		},
		{
			name:    "truncated identifier",
			msgType: bitswap.MessageTypeHave,
			data:    []byte{0x82, 0x03, 0x43, 0x01, 0x55, 0x12},
			offset:  6,
		},
		{
			name:    "priority is not an integer",
			msgType: bitswap.MessageTypeWant,
			data:    badPriority,
			offset:  40,
		},
		{
			name:    "invalid want type",
			msgType: bitswap.MessageTypeWant,
			data:    invalidWantType,
			offset:  len(invalidWantType) - 1,
			errIs:   bitswap.ErrInvalidWantType,
		},
		{
			name:    "trailing bytes",
			msgType: bitswap.MessageTypeCancel,
			data:    trailing,
			offset:  len(cancel),
			errIs:   block.ErrTrailingBytes,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := bitswap.NewMsgFromCbor(tt.msgType, tt.data)
			assert.Nil(t, msg)
			require.Error(t, err)
			var decodeErr *block.DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T: %s", err, err)
			assert.Equal(t, tt.offset, decodeErr.Offset)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
		})
	}
}
